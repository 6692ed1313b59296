package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcdev12/poolhall/go/internal/table/events"
)

// MaxIDLength is the longest display id a participant may choose, in runes
const MaxIDLength = 20

var (
	ErrInvalidID    = errors.New("invalid participant id")
	ErrDuplicateID  = errors.New("participant id already in use")
	ErrUnauthorized = errors.New("unauthorized")
)

// Session is a live participant's server-side record
type Session struct {
	ID  string
	Key string // transport lookup key, owned by the transport layer

	HoldsCue bool

	JoinedAt     time.Time
	LastSeen     time.Time
	LastChat     time.Time
	LockActivity time.Time // last acquire or shot activity while holding the cue
}

// IsOnline reports whether the session refreshed its liveness within timeout
func (s *Session) IsOnline(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeen) < timeout
}

// IsStale reports whether the session's liveness is older than timeout
func (s *Session) IsStale(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeen) > timeout
}

// Registry owns the set of live sessions, kept in join order.
// It is not safe for concurrent use.
type Registry struct {
	sessions map[string]*Session
	byKey    map[string]string
	order    []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byKey:    make(map[string]string),
	}
}

// NormalizeID trims the raw id and checks its length
func NormalizeID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	if n := utf8.RuneCountInString(id); n > MaxIDLength {
		return "", fmt.Errorf("%w: id must be at most %d characters, got %d", ErrInvalidID, MaxIDLength, n)
	}
	return id, nil
}

// Add creates a session for id bound to the transport key
func (r *Registry) Add(key, rawID string, now time.Time) (*Session, error) {
	id, err := NormalizeID(rawID)
	if err != nil {
		return nil, err
	}
	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	if existing, bound := r.byKey[key]; bound {
		return nil, fmt.Errorf("%w: connection already joined as %q", ErrDuplicateID, existing)
	}

	s := &Session{
		ID:       id,
		Key:      key,
		JoinedAt: now,
		LastSeen: now,
	}
	r.sessions[id] = s
	r.byKey[key] = id
	r.order = append(r.order, id)
	return s, nil
}

// Get returns the session for id
func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[strings.TrimSpace(id)]
	return s, ok
}

// ByKey returns the session bound to a transport key
func (r *Registry) ByKey(key string) (*Session, bool) {
	id, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// Authorize returns the session for id if it is live and bound to key
func (r *Registry) Authorize(key, id string) (*Session, error) {
	s, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: no live session %q", ErrUnauthorized, strings.TrimSpace(id))
	}
	if s.Key != key {
		return nil, fmt.Errorf("%w: session %q belongs to another connection", ErrUnauthorized, s.ID)
	}
	return s, nil
}

// Remove deletes the session for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	if r.byKey[s.Key] == id {
		delete(r.byKey, s.Key)
	}
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return len(r.sessions)
}

// All returns the live sessions in join order
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Stale returns the sessions whose liveness is older than timeout, in join order
func (r *Registry) Stale(now time.Time, timeout time.Duration) []*Session {
	var stale []*Session
	for _, s := range r.All() {
		if s.IsStale(now, timeout) {
			stale = append(stale, s)
		}
	}
	return stale
}

// Roster builds the roster broadcast entries in join order
func (r *Registry) Roster(now time.Time, timeout time.Duration) []events.RosterEntry {
	entries := make([]events.RosterEntry, 0, len(r.order))
	for _, s := range r.All() {
		entries = append(entries, events.RosterEntry{
			ID:       s.ID,
			HoldsCue: s.HoldsCue,
			IsOnline: s.IsOnline(now, timeout),
		})
	}
	return entries
}
