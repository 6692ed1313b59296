package gateway

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrHubStopped is returned when work is submitted after the hub loop exited
var ErrHubStopped = errors.New("hub stopped")

// Hub is the table's single serialization point. Inbound frames, connection
// closes and scheduler callbacks are all submitted as funcs and run one at a
// time on the goroutine executing Run.
type Hub struct {
	inbox   chan func()
	done    chan struct{}
	running atomic.Bool
	handled atomic.Uint64
}

// NewHub creates a hub whose inbox buffers size pending funcs
func NewHub(size int) *Hub {
	if size <= 0 {
		size = 256
	}
	return &Hub{
		inbox: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Run drains the inbox until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	log.Info().Int("inbox_size", cap(h.inbox)).Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("handled", h.handled.Load()).Msg("hub shutting down")
			return
		case fn := <-h.inbox:
			h.run(fn)
		}
	}
}

func (h *Hub) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered panic in hub handler")
		}
	}()
	fn()
	h.handled.Add(1)
}

// Submit queues fn for the loop. It blocks while the inbox is full and
// returns false once the loop has stopped.
func (h *Hub) Submit(fn func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.inbox <- fn:
		return true
	case <-h.done:
		return false
	}
}

// SubmitContext is Submit that gives up when ctx is done while the inbox is full
func (h *Hub) SubmitContext(ctx context.Context, fn func()) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.inbox <- fn:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and waits for it to finish
func (h *Hub) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := h.SubmitContext(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop is draining the inbox
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Handled returns how many funcs the loop has run
func (h *Hub) Handled() uint64 {
	return h.handled.Load()
}

// Pending returns the number of queued funcs
func (h *Hub) Pending() int {
	return len(h.inbox)
}
