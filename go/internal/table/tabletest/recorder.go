// Package tabletest provides fakes shared by the table packages' tests.
package tabletest

import (
	"sync"

	"github.com/mcdev12/poolhall/go/internal/table/events"
)

// Delivery is one recorded Broadcaster call
type Delivery struct {
	To     string // set for SendTo
	Except string // set for BroadcastExcept
	Event  *events.Event
}

// All reports whether the delivery went to every transport
func (d Delivery) All() bool {
	return d.To == "" && d.Except == ""
}

// Recorder is an events.Broadcaster that keeps every delivery in order
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Broadcast(event *events.Event) {
	r.record(Delivery{Event: event})
}

func (r *Recorder) SendTo(key string, event *events.Event) {
	r.record(Delivery{To: key, Event: event})
}

func (r *Recorder) BroadcastExcept(key string, event *events.Event) {
	r.record(Delivery{Except: key, Event: event})
}

func (r *Recorder) record(d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
}

// Deliveries returns a copy of everything recorded so far
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// OfType returns the recorded deliveries of one event type
func (r *Recorder) OfType(eventType events.EventType) []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries() {
		if d.Event.Type == eventType {
			out = append(out, d)
		}
	}
	return out
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []events.EventType {
	var out []events.EventType
	for _, d := range r.Deliveries() {
		out = append(out, d.Event.Type)
	}
	return out
}

// Reset drops everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
