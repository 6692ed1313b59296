package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/rs/zerolog/log"
)

// SystemSender is the sender name used for server-originated notices
const SystemSender = "system"

var (
	ErrRateLimited    = errors.New("chat rate limited")
	ErrInvalidContent = errors.New("invalid chat content")
)

// RateLimitError is returned when a participant chats again before the minimum interval
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	return fmt.Sprintf("please wait %d seconds before sending another message", secs)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Config holds the chat moderation limits
type Config struct {
	HistorySize    int
	MaxLength      int
	MinInterval    time.Duration
	ForbiddenTerms []string
}

// DefaultConfig returns the default chat limits
func DefaultConfig() Config {
	return Config{
		HistorySize:    100,
		MaxLength:      200,
		MinInterval:    5 * time.Second,
		ForbiddenTerms: []string{"fuck", "shit", "bitch", "asshole"},
	}
}

// Relay moderates chat, keeps the bounded history and broadcasts messages.
// It is not safe for concurrent use.
type Relay struct {
	config  Config
	out     events.Broadcaster
	filter  *Filter
	history []events.ChatMessage
	nextID  uint64
}

// NewRelay creates a relay that broadcasts through out
func NewRelay(config Config, out events.Broadcaster) *Relay {
	return &Relay{
		config: config,
		out:    out,
		filter: NewFilter(config.ForbiddenTerms),
	}
}

// CheckRate enforces the minimum interval between two participant messages
func (r *Relay) CheckRate(lastChat, now time.Time) error {
	if lastChat.IsZero() {
		return nil
	}
	elapsed := now.Sub(lastChat)
	if elapsed < r.config.MinInterval {
		return &RateLimitError{Remaining: r.config.MinInterval - elapsed}
	}
	return nil
}

// Validate trims content and checks it against the length limit and the filter
func (r *Relay) Validate(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidContent)
	}
	if n := utf8.RuneCountInString(trimmed); n > r.config.MaxLength {
		return "", fmt.Errorf("%w: message is longer than %d characters", ErrInvalidContent, r.config.MaxLength)
	}
	if r.filter.Match(trimmed) {
		return "", fmt.Errorf("%w: message contains inappropriate language", ErrInvalidContent)
	}
	return trimmed, nil
}

// Post appends a message to the history and broadcasts it to every participant.
// Callers are responsible for validating participant messages first.
func (r *Relay) Post(kind events.ChatKind, sender, content string, now time.Time) events.ChatMessage {
	r.nextID++
	msg := events.ChatMessage{
		ID:        r.nextID,
		Kind:      kind,
		Sender:    sender,
		Content:   content,
		Timestamp: now.UTC(),
	}

	r.history = append(r.history, msg)
	if len(r.history) > r.config.HistorySize {
		r.history = r.history[len(r.history)-r.config.HistorySize:]
	}

	event, err := events.New(events.EventTypeChatMessage, msg, now)
	if err != nil {
		log.Error().Err(err).Uint64("message_id", msg.ID).Msg("failed to build chat event")
		return msg
	}
	r.out.Broadcast(event)
	return msg
}

// Notice posts a server-originated message, bypassing rate limits and the filter
func (r *Relay) Notice(kind events.ChatKind, now time.Time, format string, args ...any) events.ChatMessage {
	return r.Post(kind, SystemSender, fmt.Sprintf(format, args...), now)
}

// History returns a snapshot of the bounded history, oldest first
func (r *Relay) History() []events.ChatMessage {
	out := make([]events.ChatMessage, len(r.history))
	copy(out, r.history)
	return out
}

// Len returns the current history length
func (r *Relay) Len() int {
	return len(r.history)
}
