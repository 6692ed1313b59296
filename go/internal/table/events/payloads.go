package events

import (
	"encoding/json"
	"time"
)

// Event payload types shared between the table core and the gateway

// JoinAckPayload answers a Join request
type JoinAckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// HeartbeatAckPayload answers a Heartbeat with the refreshed liveness time in unix millis
type HeartbeatAckPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// RosterEntry is one participant in a roster broadcast
type RosterEntry struct {
	ID       string `json:"id"`
	HoldsCue bool   `json:"holds_cue"`
	IsOnline bool   `json:"is_online"`
}

// RosterPayload lists live participants in join order
type RosterPayload struct {
	Participants []RosterEntry `json:"participants"`
}

// TableStatePayload is the shared-state snapshot sent to a participant on join
type TableStatePayload struct {
	Payload         json.RawMessage `json:"payload,omitempty"`
	Simulating      bool            `json:"simulating"`
	HolderID        string          `json:"holder_id,omitempty"`
	ActiveShooterID string          `json:"active_shooter_id,omitempty"`
}

// LockStateChangedPayload is emitted on every cue acquire or release, forced or not
type LockStateChangedPayload struct {
	HolderID string `json:"holder_id,omitempty"`
	Held     bool   `json:"held"`
}

// CueExpiredPayload tells the former holder the cue was taken back after the hold timeout
type CueExpiredPayload struct {
	ParticipantID string `json:"participant_id"`
	HeldForSec    int    `json:"held_for_sec"`
}

// ShotStartedPayload carries the opaque shot inputs and the synchronized start time
type ShotStartedPayload struct {
	ShooterID   string          `json:"shooter_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	StartTimeMs int64           `json:"start_time_ms"`
}

// ShotCompletedPayload relays a participant's raw completion report to the others
type ShotCompletedPayload struct {
	ReporterID string          `json:"reporter_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// StateReconciledPayload carries the authoritative table payload after a shot
type StateReconciledPayload struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SimulationEndedPayload is emitted when the watchdog ends a shot nobody completed
type SimulationEndedPayload struct {
	ShooterID string `json:"shooter_id"`
	Reason    string `json:"reason"`
}

// TableResetPayload is emitted when the holder resets the table
type TableResetPayload struct {
	ResetBy string `json:"reset_by"`
}

// ReadyForShotPayload is emitted once the table has settled after a reset
type ReadyForShotPayload struct {
	HolderID string `json:"holder_id,omitempty"`
}

// ChatKind classifies chat messages
type ChatKind string

const (
	ChatKindSystem      ChatKind = "system"
	ChatKindInfo        ChatKind = "info"
	ChatKindError       ChatKind = "error"
	ChatKindParticipant ChatKind = "participant"
)

// ChatMessage is a single entry in the chat history
type ChatMessage struct {
	ID        uint64    `json:"id"`
	Kind      ChatKind  `json:"kind"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistoryPayload replays the bounded history to a joining participant
type ChatHistoryPayload struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatErrorPayload reports a rejected chat message to its sender only
type ChatErrorPayload struct {
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// ScoredPayload is emitted for every newly recorded pocketed ball
type ScoredPayload struct {
	PlayerID   string `json:"player_id"`
	BallNumber int    `json:"ball_number"`
	Category   string `json:"category,omitempty"`
	Total      int    `json:"total"`
}

// ScoresClearedPayload is emitted when the whole ledger is cleared
type ScoresClearedPayload struct {
	ClearedBy string `json:"cleared_by"`
}

// ScoreRemovedPayload is emitted when a departing participant's entries are dropped
type ScoreRemovedPayload struct {
	PlayerID string `json:"player_id"`
}

// Standing is one row of the scoreboard
type Standing struct {
	PlayerID string `json:"player_id"`
	Balls    []int  `json:"balls"`
	Count    int    `json:"count"`
}

// ScoreboardPayload answers a ScoreQuery
type ScoreboardPayload struct {
	Standings []Standing `json:"standings"`
}

// ErrorPayload reports a rejected request to its sender only
type ErrorPayload struct {
	Op      string `json:"op,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
