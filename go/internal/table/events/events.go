package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event represents the envelope for every message the table sends to clients
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of outbound table event
type EventType string

const (
	EventTypeJoinAck          EventType = "JoinAck"
	EventTypeHeartbeatAck     EventType = "HeartbeatAck"
	EventTypeLatencyEcho      EventType = "LatencyEcho"
	EventTypeRoster           EventType = "Roster"
	EventTypeTableState       EventType = "TableState"
	EventTypeLockStateChanged EventType = "LockStateChanged"
	EventTypeCueExpired       EventType = "CueExpired"
	EventTypeShotStarted      EventType = "ShotStarted"
	EventTypeShotCompleted    EventType = "ShotCompleted"
	EventTypeStateReconciled  EventType = "StateReconciled"
	EventTypeSimulationEnded  EventType = "SimulationEnded"
	EventTypeTableReset       EventType = "TableReset"
	EventTypeReadyForShot     EventType = "ReadyForShot"
	EventTypeChatMessage      EventType = "ChatMessage"
	EventTypeChatHistory      EventType = "ChatHistory"
	EventTypeChatError        EventType = "ChatError"
	EventTypeScored           EventType = "Scored"
	EventTypeScoresCleared    EventType = "ScoresCleared"
	EventTypeScoreRemoved     EventType = "ScoreRemoved"
	EventTypeScoreboard       EventType = "Scoreboard"
	EventTypeError            EventType = "Error"
)

// Broadcaster delivers events to connected transports.
// Keys are opaque transport lookup keys; the table never holds a live connection.
type Broadcaster interface {
	// Broadcast sends the event to every connected transport
	Broadcast(event *Event)
	// SendTo sends the event to a single transport
	SendTo(key string, event *Event)
	// BroadcastExcept sends the event to every transport but one
	BroadcastExcept(key string, event *Event)
}

// New builds an event envelope around the marshalled payload
func New(eventType EventType, payload any, at time.Time) (*Event, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
		data = json.RawMessage("{}")
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		data = b
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// Decode parses event data into the payload type T
func Decode[T any](event *Event) (T, error) {
	var out T
	if event == nil {
		return out, fmt.Errorf("decode payload: nil event")
	}
	if err := json.Unmarshal(event.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return out, nil
}
