package table

import (
	"errors"

	"github.com/mcdev12/poolhall/go/internal/table/chat"
	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/session"
	"github.com/rs/zerolog/log"
)

// Wire error codes sent to the initiating participant
const (
	CodeInvalidID      = "invalid_id"
	CodeDuplicateID    = "duplicate_id"
	CodeUnauthorized   = "unauthorized"
	CodeAlreadyHeld    = "already_held"
	CodeNotAuthorized  = "not_authorized"
	CodeRateLimited    = "rate_limited"
	CodeInvalidContent = "invalid_content"
	CodeInvalidShot    = "invalid_shot"
	CodeBadRequest     = "bad_request"
)

// Router decodes client frames and dispatches them to the table.
// Like the table, it must only be used from the serialization point.
type Router struct {
	table *Table
}

// NewRouter creates a router for t
func NewRouter(t *Table) *Router {
	return &Router{table: t}
}

// Handle processes one raw frame received on the connection identified by key
func (r *Router) Handle(key string, raw []byte) {
	in, err := events.DecodeInbound(raw)
	if err != nil {
		r.reject(key, "", err)
		return
	}

	if err := r.dispatch(key, in); err != nil {
		r.reject(key, in.Type, err)
	}
}

func (r *Router) dispatch(key string, in events.Inbound) error {
	t := r.table

	switch in.Type {
	case events.InboundLatencyProbe:
		var echo any
		if len(in.Data) > 0 {
			echo = in.Data
		}
		t.sendTo(key, events.EventTypeLatencyEcho, echo)
		return nil

	case events.InboundShotStart:
		p, err := events.DecodePayload[events.ShotStartPayload](in)
		if err != nil {
			return badRequest(err)
		}
		return t.ShotStart(key, p.ID, p.Payload, p.Params)

	case events.InboundShotComplete:
		p, err := events.DecodePayload[events.ShotCompletePayload](in)
		if err != nil {
			return badRequest(err)
		}
		return t.ShotComplete(key, p.ID, p.Payload)

	case events.InboundChatSend:
		p, err := events.DecodePayload[events.ChatSendPayload](in)
		if err != nil {
			return badRequest(err)
		}
		return t.SendChat(key, p.ID, p.Content)

	case events.InboundScoreReport:
		p, err := events.DecodePayload[events.ScoreReportPayload](in)
		if err != nil {
			return badRequest(err)
		}
		return t.ReportScores(key, p.ID, p.Events)
	}

	p, err := events.DecodePayload[events.IdentityPayload](in)
	if err != nil {
		return badRequest(err)
	}

	switch in.Type {
	case events.InboundJoin:
		return t.Join(key, p.ID)
	case events.InboundHeartbeat:
		return t.Heartbeat(key, p.ID)
	case events.InboundAcquireLock:
		return t.AcquireLock(key, p.ID)
	case events.InboundReleaseLock:
		t.ReleaseLock(key, p.ID)
		return nil
	case events.InboundReset:
		return t.Reset(key, p.ID)
	case events.InboundScoreClear:
		return t.ClearScores(key, p.ID)
	case events.InboundScoreQuery:
		return t.QueryScores(key, p.ID)
	default:
		return &requestError{msg: "unknown message type " + string(in.Type)}
	}
}

// reject reports a failed request to the initiator only
func (r *Router) reject(key string, op events.InboundType, err error) {
	code := ErrorCode(err)
	log.Debug().
		Err(err).
		Str("conn_key", key).
		Str("op", string(op)).
		Str("code", code).
		Msg("request rejected")

	t := r.table
	switch op {
	case events.InboundJoin:
		t.sendTo(key, events.EventTypeJoinAck, events.JoinAckPayload{
			Success: false,
			Message: err.Error(),
		})
	case events.InboundChatSend:
		payload := events.ChatErrorPayload{Message: err.Error()}
		var rl *chat.RateLimitError
		if errors.As(err, &rl) {
			payload.RetryAfterMs = rl.Remaining.Milliseconds()
		}
		t.sendTo(key, events.EventTypeChatError, payload)
	default:
		t.sendTo(key, events.EventTypeError, events.ErrorPayload{
			Op:      string(op),
			Code:    code,
			Message: err.Error(),
		})
	}
}

// ErrorCode maps an operation error to its wire code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		return CodeInvalidID
	case errors.Is(err, session.ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, session.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrAlreadyHeld):
		return CodeAlreadyHeld
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, chat.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, chat.ErrInvalidContent):
		return CodeInvalidContent
	case errors.Is(err, ErrInvalidShot):
		return CodeInvalidShot
	default:
		return CodeBadRequest
	}
}

// requestError is a frame that could not be turned into an operation
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error {
	return e.err
}

func badRequest(err error) error {
	return &requestError{msg: "malformed request", err: err}
}
