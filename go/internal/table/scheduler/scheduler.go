package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Dispatcher hands a callback to the single-writer loop. It must not run fn inline
// on the timer goroutine unless the caller owns the loop.
type Dispatcher func(fn func())

// Scheduler arms one-shot and periodic tasks on a clockwork clock.
// Callbacks never run on timer goroutines: when a task fires, its callback is
// handed to the dispatcher so it executes on the same serialization point as
// every inbound message.
//
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Scheduler struct {
	clock    clockwork.Clock
	dispatch Dispatcher
}

// New creates a scheduler on clock that dispatches fired callbacks through dispatch
func New(clock clockwork.Clock, dispatch Dispatcher) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:    clock,
		dispatch: dispatch,
	}
}

// Now returns the scheduler clock's current time
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Task is a cancellation token for a scheduled callback
type Task struct {
	name      string
	stop      chan struct{}
	stopOnce  sync.Once
	cancelled atomic.Bool
}

func newTask(name string) *Task {
	return &Task{
		name: name,
		stop: make(chan struct{}),
	}
}

// Cancel stops the task. A callback that already fired but has not yet run on
// the loop is dropped. Cancel is safe to call more than once and on a nil task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	t.stopOnce.Do(func() { close(t.stop) })
}

// Cancelled reports whether Cancel was called
func (t *Task) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Name returns the task label used in logs
func (t *Task) Name() string {
	return t.name
}

// fire hands fn to the dispatcher, re-checking cancellation once it reaches the loop
func (t *Task) fire(dispatch Dispatcher, fn func()) {
	if t.cancelled.Load() {
		return
	}
	dispatch(func() {
		if t.cancelled.Load() {
			log.Debug().Str("task", t.name).Msg("dropping callback of cancelled task")
			return
		}
		fn()
	})
}

// After runs fn once, d from now
func (s *Scheduler) After(name string, d time.Duration, fn func()) *Task {
	task := newTask(name)
	timer := s.clock.NewTimer(d)

	go func() {
		select {
		case <-timer.Chan():
			log.Debug().Str("task", name).Msg("timer fired - dispatching")
			task.fire(s.dispatch, fn)
		case <-task.stop:
			stopAndDrainTimer(timer)
			log.Debug().Str("task", name).Msg("timer cancelled")
		}
	}()

	log.Debug().
		Str("task", name).
		Dur("duration", d).
		Msg("scheduled one-shot timer")
	return task
}

// Every runs fn every d until the task is cancelled
func (s *Scheduler) Every(name string, d time.Duration, fn func()) *Task {
	task := newTask(name)
	ticker := s.clock.NewTicker(d)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				task.fire(s.dispatch, fn)
			case <-task.stop:
				log.Debug().Str("task", name).Msg("ticker cancelled")
				return
			}
		}
	}()

	log.Debug().
		Str("task", name).
		Dur("interval", d).
		Msg("scheduled periodic task")
	return task
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
// This follows the pattern recommended in the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		// Timer already fired or was stopped, drain the channel
		select {
		case <-timer.Chan():
		default:
		}
	}
}
