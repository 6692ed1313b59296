package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/poolhall/go/internal/table"
	"github.com/rs/zerolog/log"
)

// StateProvider reads table state from the serialization point
type StateProvider interface {
	Snapshot(ctx context.Context) (table.Snapshot, error)
}

// StateHandler handles HTTP requests for table state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleTableState returns a read-only snapshot of the table
func (h *StateHandler) HandleTableState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snap, err := h.stateProvider.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to get table state")
		http.Error(w, "table state unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(r chi.Router) {
	r.Get("/api/table/state", h.HandleTableState)
}
