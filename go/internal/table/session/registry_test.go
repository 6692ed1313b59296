package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "alice", want: "alice"},
		{name: "trimmed", raw: "  bob ", want: "bob"},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "max length", raw: strings.Repeat("a", MaxIDLength), want: strings.Repeat("a", MaxIDLength)},
		{name: "too long", raw: strings.Repeat("a", MaxIDLength+1), wantErr: true},
		{name: "multibyte counted as runes", raw: strings.Repeat("é", MaxIDLength), want: strings.Repeat("é", MaxIDLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeID(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryRejectsDuplicateIDWithoutChangingState(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Add("k1", "alice", t0)
	require.NoError(t, err)

	_, err = r.Add("k2", "alice", t0)
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = r.Add("k2", " alice ", t0)
	require.ErrorIs(t, err, ErrDuplicateID)

	assert.Equal(t, 1, r.Len())
	s, ok := r.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "k1", s.Key)
	_, bound := r.ByKey("k2")
	assert.False(t, bound)
}

func TestRegistryRejectsSecondJoinOnSameConnection(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Add("k1", "alice", t0)
	require.NoError(t, err)

	_, err = r.Add("k1", "bob", t0)
	require.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryAuthorize(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Add("k1", "alice", t0)
	require.NoError(t, err)

	s, err := r.Authorize("k1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", s.ID)

	_, err = r.Authorize("k2", "alice")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.Authorize("k1", "nobody")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegistryRemoveIsIdempotentAndKeepsOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for i, id := range []string{"a", "b", "c"} {
		_, err := r.Add(string(rune('1'+i)), id, t0)
		require.NoError(t, err)
	}

	removed, ok := r.Remove("b")
	require.True(t, ok)
	assert.Equal(t, "b", removed.ID)

	_, ok = r.Remove("b")
	assert.False(t, ok)

	ids := []string{}
	for _, s := range r.All() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	// the freed id and key can be reused
	_, err := r.Add("2", "b", t0)
	require.NoError(t, err)
}

func TestRegistryStaleAndRoster(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a, err := r.Add("k1", "a", t0)
	require.NoError(t, err)
	b, err := r.Add("k2", "b", t0)
	require.NoError(t, err)

	b.LastSeen = t0.Add(50 * time.Second)
	a.HoldsCue = true
	now := t0.Add(61 * time.Second)

	stale := r.Stale(now, time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, "a", stale[0].ID)

	roster := r.Roster(now, time.Minute)
	require.Len(t, roster, 2)
	assert.Equal(t, "a", roster[0].ID)
	assert.True(t, roster[0].HoldsCue)
	assert.False(t, roster[0].IsOnline)
	assert.Equal(t, "b", roster[1].ID)
	assert.True(t, roster[1].IsOnline)
}

func TestSessionStaleBoundary(t *testing.T) {
	t.Parallel()

	s := &Session{LastSeen: t0}
	assert.False(t, s.IsStale(t0.Add(time.Minute), time.Minute))
	assert.True(t, s.IsStale(t0.Add(time.Minute+time.Millisecond), time.Minute))
	assert.False(t, s.IsOnline(t0.Add(time.Minute), time.Minute))
}
