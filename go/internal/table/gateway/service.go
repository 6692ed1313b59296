package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/poolhall/go/internal/table"
	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/scheduler"
	"github.com/rs/zerolog/log"
)

// Mirror receives every event broadcast to all connections
type Mirror interface {
	Publish(event *events.Event)
	Connected() bool
}

// Service is the table gateway: it owns the hub, the connections and the table
type Service struct {
	hub               *Hub
	connectionManager *ConnectionManager
	table             *table.Table
	router            *table.Router
	mirror            Mirror

	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
	health       *HealthChecker
}

// Config holds configuration for the table gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Table            table.Config
	HubInboxSize     int
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the table gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Table:            table.DefaultConfig(),
		HubInboxSize:     1024,
	}
}

// NewService wires the hub, connection manager and table together.
// mirror may be nil.
func NewService(config Config, mirror Mirror) *Service {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Service{
		hub:    NewHub(config.HubInboxSize),
		mirror: mirror,
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, s)

	sched := scheduler.New(clock, func(fn func()) {
		if !s.hub.Submit(fn) {
			log.Debug().Msg("hub stopped - dropping scheduled callback")
		}
	})
	s.table = table.New(config.Table, sched, s.outbound())
	s.router = table.NewRouter(s.table)

	s.wsHandler = NewWebSocketHandler(s.connectionManager)
	s.stateHandler = NewStateHandler(s)
	s.health = NewHealthChecker(s)
	return s
}

func (s *Service) outbound() events.Broadcaster {
	if s.mirror == nil {
		return s.connectionManager
	}
	return &mirroredBroadcaster{Broadcaster: s.connectionManager, mirror: s.mirror}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting table gateway service")

	// The hub outlives ctx so the table can be stopped on its own loop
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	go s.connectionManager.Start(ctx)
	go s.hub.Run(hubCtx)

	if err := s.hub.Call(ctx, s.table.Start); err != nil {
		return fmt.Errorf("start table: %w", err)
	}

	<-ctx.Done()

	log.Info().Msg("table gateway service shutting down")
	return s.Stop()
}

// Stop cancels the table's scheduled tasks on the hub
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.hub.Call(ctx, s.table.Stop); err != nil {
		return fmt.Errorf("stop table: %w", err)
	}
	log.Info().Msg("table gateway service stopped")
	return nil
}

// HandleMessage submits a client frame to the hub
func (s *Service) HandleMessage(key string, message []byte) {
	if !s.hub.Submit(func() { s.router.Handle(key, message) }) {
		log.Debug().Str("conn_key", key).Msg("hub stopped - dropping client message")
	}
}

// HandleClose submits the teardown of a closed connection to the hub
func (s *Service) HandleClose(key string) {
	s.hub.Submit(func() { s.table.Disconnect(key) })
}

// Snapshot reads the table state on the hub
func (s *Service) Snapshot(ctx context.Context) (table.Snapshot, error) {
	var snap table.Snapshot
	if err := s.hub.Call(ctx, func() { snap = s.table.Snapshot() }); err != nil {
		return table.Snapshot{}, fmt.Errorf("read table snapshot: %w", err)
	}
	return snap, nil
}

// Sessions returns the number of live sessions, read on the hub
func (s *Service) Sessions(ctx context.Context) (int, error) {
	var n int
	if err := s.hub.Call(ctx, func() { n = s.table.SessionCount() }); err != nil {
		return 0, err
	}
	return n, nil
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r)
	s.stateHandler.RegisterStateRoutes(r)
	r.Get("/health", s.health.ServeHTTP)
	r.Get("/metrics", s.health.ServeMetrics)
	log.Info().Msg("table gateway routes registered")
}

// Stats returns connection statistics
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// mirroredBroadcaster copies table-wide events to the mirror
type mirroredBroadcaster struct {
	events.Broadcaster
	mirror Mirror
}

func (b *mirroredBroadcaster) Broadcast(event *events.Event) {
	b.Broadcaster.Broadcast(event)
	b.mirror.Publish(event)
}
