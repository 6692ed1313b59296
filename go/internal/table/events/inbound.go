package events

import (
	"encoding/json"
	"fmt"
)

// Inbound is the envelope of every client request
type Inbound struct {
	Type InboundType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// InboundType represents the type of a client request
type InboundType string

const (
	InboundJoin         InboundType = "Join"
	InboundHeartbeat    InboundType = "Heartbeat"
	InboundLatencyProbe InboundType = "LatencyProbe"
	InboundAcquireLock  InboundType = "AcquireLock"
	InboundReleaseLock  InboundType = "ReleaseLock"
	InboundShotStart    InboundType = "ShotStart"
	InboundShotComplete InboundType = "ShotComplete"
	InboundReset        InboundType = "Reset"
	InboundChatSend     InboundType = "ChatSend"
	InboundScoreReport  InboundType = "ScoreReport"
	InboundScoreClear   InboundType = "ScoreClear"
	InboundScoreQuery   InboundType = "ScoreQuery"
)

// IdentityPayload is the request body for operations that only name the caller
type IdentityPayload struct {
	ID string `json:"id"`
}

// ShotStartPayload is the request body of ShotStart
type ShotStartPayload struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Params  json.RawMessage `json:"params"`
}

// ShotCompletePayload is the request body of ShotComplete
type ShotCompletePayload struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ChatSendPayload is the request body of ChatSend
type ChatSendPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// PocketEvent is a single reported pocketed ball
type PocketEvent struct {
	BallNumber int    `json:"ball_number"`
	Category   string `json:"category"`
}

// ScoreReportPayload is the request body of ScoreReport
type ScoreReportPayload struct {
	ID     string        `json:"id"`
	Events []PocketEvent `json:"events"`
}

// DecodeInbound parses a raw client frame into its envelope
func DecodeInbound(b []byte) (Inbound, error) {
	if len(b) == 0 {
		return Inbound{}, fmt.Errorf("decode inbound: empty frame")
	}
	var in Inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return Inbound{}, fmt.Errorf("decode inbound: %w", err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("decode inbound: missing type")
	}
	return in, nil
}

// DecodePayload parses the request body into T
func DecodePayload[T any](in Inbound) (T, error) {
	var out T
	if len(in.Data) == 0 {
		return out, fmt.Errorf("empty payload for type %q", in.Type)
	}
	if err := json.Unmarshal(in.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", in.Type, err)
	}
	return out, nil
}
