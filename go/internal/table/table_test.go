package table

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/scheduler"
	"github.com/mcdev12/poolhall/go/internal/table/session"
	"github.com/mcdev12/poolhall/go/internal/table/tabletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness plays the role of the hub: scheduled callbacks land in queue and
// only run when the test drains them, on the test goroutine.
type harness struct {
	t     *testing.T
	clock *clockwork.FakeClock
	queue chan func()
	out   *tabletest.Recorder
	table *Table
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	queue := make(chan func(), 64)
	sched := scheduler.New(clock, func(fn func()) { queue <- fn })
	out := tabletest.NewRecorder()
	tbl := New(DefaultConfig(), sched, out)
	t.Cleanup(tbl.Stop)

	return &harness{t: t, clock: clock, queue: queue, out: out, table: tbl}
}

func (h *harness) join(key, id string) {
	h.t.Helper()
	require.NoError(h.t, h.table.Join(key, id))
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}

// runPending runs n dispatched callbacks, failing if they do not arrive
func (h *harness) runPending(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		select {
		case fn := <-h.queue:
			fn()
		case <-time.After(time.Second):
			h.t.Fatalf("timed out waiting for scheduled callback %d of %d", i+1, n)
		}
	}
}

func (h *harness) expectNoPending() {
	h.t.Helper()
	select {
	case <-h.queue:
		h.t.Fatal("unexpected scheduled callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) holders() []string {
	var ids []string
	for _, s := range h.table.sessions.All() {
		if s.HoldsCue {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func lastRoster(t *testing.T, out *tabletest.Recorder) []events.RosterEntry {
	t.Helper()
	rosters := out.OfType(events.EventTypeRoster)
	require.NotEmpty(t, rosters)
	p, err := events.Decode[events.RosterPayload](rosters[len(rosters)-1].Event)
	require.NoError(t, err)
	return p.Participants
}

func TestJoinRepliesInOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.join("k1", "alice")
	h.out.Reset()
	h.join("k2", "  bob ")

	deliveries := h.out.Deliveries()
	require.Len(t, deliveries, 5)
	assert.Equal(t, []events.EventType{
		events.EventTypeJoinAck,
		events.EventTypeChatHistory,
		events.EventTypeTableState,
		events.EventTypeRoster,
		events.EventTypeChatMessage,
	}, h.out.Types())
	for _, d := range deliveries[:3] {
		assert.Equal(t, "k2", d.To)
	}
	assert.True(t, deliveries[3].All())

	ack, err := events.Decode[events.JoinAckPayload](deliveries[0].Event)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "bob", ack.ID)

	// the replay is taken before bob's own notice
	history, err := events.Decode[events.ChatHistoryPayload](deliveries[1].Event)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "alice joined the table", history.Messages[0].Content)

	roster := lastRoster(t, h.out)
	require.Len(t, roster, 2)
	assert.Equal(t, "alice", roster[0].ID)
	assert.Equal(t, "bob", roster[1].ID)
	assert.True(t, roster[1].IsOnline)
}

func TestJoinDuplicateLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.join("k1", "alice")
	h.out.Reset()

	err := h.table.Join("k2", "alice")
	require.ErrorIs(t, err, session.ErrDuplicateID)
	assert.Equal(t, 1, h.table.SessionCount())
	assert.Empty(t, h.out.Deliveries())

	err = h.table.Join("k1", "alice2")
	require.ErrorIs(t, err, session.ErrDuplicateID)

	err = h.table.Join("k3", "")
	require.ErrorIs(t, err, session.ErrInvalidID)
	err = h.table.Join("k3", "abcdefghijklmnopqrstu")
	require.ErrorIs(t, err, session.ErrInvalidID)

	assert.Equal(t, 1, h.table.SessionCount())
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("k1", "alice")

	require.ErrorIs(t, h.table.Heartbeat("k2", "alice"), session.ErrUnauthorized)
	require.ErrorIs(t, h.table.Heartbeat("k1", "ghost"), session.ErrUnauthorized)

	h.advance(10 * time.Second)
	h.out.Reset()
	require.NoError(t, h.table.Heartbeat("k1", "alice"))

	acks := h.out.OfType(events.EventTypeHeartbeatAck)
	require.Len(t, acks, 1)
	assert.Equal(t, "k1", acks[0].To)
	ack, err := events.Decode[events.HeartbeatAckPayload](acks[0].Event)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().UnixMilli(), ack.Timestamp)

	s, _ := h.table.sessions.Get("alice")
	assert.Equal(t, h.clock.Now(), s.LastSeen)
}

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("k1", "alice")
	h.join("k2", "bob")
	h.out.Reset()

	require.NoError(t, h.table.AcquireLock("k1", "alice"))
	assert.Equal(t, "alice", h.table.HolderID())
	assert.Equal(t, []string{"alice"}, h.holders())

	changes := h.out.OfType(events.EventTypeLockStateChanged)
	require.Len(t, changes, 1)
	lock, err := events.Decode[events.LockStateChangedPayload](changes[0].Event)
	require.NoError(t, err)
	assert.Equal(t, events.LockStateChangedPayload{HolderID: "alice", Held: true}, lock)
	assert.True(t, lastRoster(t, h.out)[0].HoldsCue)

	require.ErrorIs(t, h.table.AcquireLock("k2", "bob"), ErrAlreadyHeld)
	require.ErrorIs(t, h.table.AcquireLock("k1", "alice"), ErrAlreadyHeld)
	require.ErrorIs(t, h.table.AcquireLock("k1", "bob"), session.ErrUnauthorized)

	// releases from anyone but the holder are silently ignored
	h.out.Reset()
	h.table.ReleaseLock("k2", "bob")
	h.table.ReleaseLock("k2", "alice")
	assert.Empty(t, h.out.Deliveries())
	assert.Equal(t, "alice", h.table.HolderID())

	h.table.ReleaseLock("k1", "alice")
	assert.Empty(t, h.table.HolderID())
	assert.Empty(t, h.holders())
	changes = h.out.OfType(events.EventTypeLockStateChanged)
	require.Len(t, changes, 1)
	lock, err = events.Decode[events.LockStateChangedPayload](changes[0].Event)
	require.NoError(t, err)
	assert.False(t, lock.Held)
	require.Len(t, h.out.OfType(events.EventTypeRoster), 1)

	require.NoError(t, h.table.AcquireLock("k2", "bob"))
}

func TestAtMostOneHolderUnderInterleaving(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ids := []string{"alice", "bob", "carol", "dave"}
	keys := map[string]string{"alice": "k1", "bob": "k2", "carol": "k3", "dave": "k4"}
	for _, id := range ids {
		h.join(keys[id], id)
	}

	// deterministic pseudo-random walk over acquire/release/teardown/rejoin
	state := uint32(7)
	next := func(n int) int {
		state = state*1103515245 + 12345
		return int(state>>16) % n
	}

	for step := 0; step < 500; step++ {
		id := ids[next(len(ids))]
		key := keys[id]
		switch next(4) {
		case 0:
			_ = h.table.AcquireLock(key, id)
		case 1:
			h.table.ReleaseLock(key, id)
		case 2:
			h.table.Disconnect(key)
		case 3:
			_ = h.table.Join(key, id)
		}

		holders := h.holders()
		require.LessOrEqual(t, len(holders), 1, "step %d", step)
		if len(holders) == 1 {
			require.Equal(t, holders[0], h.table.HolderID(), "step %d", step)
		} else {
			require.Empty(t, h.table.HolderID(), "step %d", step)
		}
	}
}

func TestLeaveCascades(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("k1", "alice")
	h.join("k2", "bob")
	h.join("k3", "carol")
	require.NoError(t, h.table.AcquireLock("k1", "alice"))
	require.NoError(t, h.table.ReportScores("k1", "alice", []events.PocketEvent{{BallNumber: 3}}))
	h.out.Reset()

	h.table.Disconnect("k1")

	assert.Equal(t, []events.EventType{
		events.EventTypeLockStateChanged,
		events.EventTypeScoreRemoved,
		events.EventTypeRoster,
		events.EventTypeChatMessage,
	}, h.out.Types())
	assert.Empty(t, h.table.HolderID())
	assert.Equal(t, 2, h.table.SessionCount())
	assert.Equal(t, 0, h.table.ledger.Len())

	// teardown is idempotent
	h.out.Reset()
	h.table.Disconnect("k1")
	assert.False(t, h.table.Leave("alice", "timeout"))
	assert.Empty(t, h.out.Deliveries())
}

func TestLeaveWithOneRemainingSkipsScoreRemoved(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("k1", "alice")
	h.join("k2", "bob")
	require.NoError(t, h.table.AcquireLock("k1", "alice"))
	require.NoError(t, h.table.ReportScores("k1", "alice", []events.PocketEvent{{BallNumber: 3}}))
	h.out.Reset()

	require.True(t, h.table.Leave("alice", "disconnected"))
	assert.Empty(t, h.out.OfType(events.EventTypeScoreRemoved))
	assert.Len(t, h.out.OfType(events.EventTypeRoster), 1)
	assert.Equal(t, 0, h.table.ledger.Len())
}

func TestSweepEvictsStaleHolder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.table.Start()

	h.join("k1", "alice")
	h.join("k2", "bob")
	require.NoError(t, h.table.AcquireLock("k1", "alice"))

	// bob keeps heartbeating, alice goes silent
	for i := 0; i < 2; i++ {
		require.NoError(t, h.table.Heartbeat("k2", "bob"))
		h.advance(30 * time.Second)
		h.runPending(1)
	}
	assert.Equal(t, 2, h.table.SessionCount(), "60s of silence is not yet stale")

	h.out.Reset()
	require.NoError(t, h.table.Heartbeat("k2", "bob"))
	h.advance(30 * time.Second)
	h.runPending(1)

	assert.Equal(t, 1, h.table.SessionCount())
	assert.Empty(t, h.table.HolderID())
	assert.Empty(t, h.holders())

	rosters := h.out.OfType(events.EventTypeRoster)
	require.Len(t, rosters, 1)
	roster := lastRoster(t, h.out)
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].ID)
	assert.Len(t, h.out.OfType(events.EventTypeLockStateChanged), 1)

	history := h.table.ChatHistory()
	assert.Equal(t, "alice left the table (timeout)", history[len(history)-1].Content)
}

func TestSweepExpiresLongHold(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.table.Start()

	h.join("k1", "alice")
	require.NoError(t, h.table.AcquireLock("k1", "alice"))

	// 120s of holding is still within the limit
	for i := 0; i < 4; i++ {
		require.NoError(t, h.table.Heartbeat("k1", "alice"))
		h.advance(30 * time.Second)
		h.runPending(1)
	}
	require.Equal(t, "alice", h.table.HolderID())

	h.out.Reset()
	require.NoError(t, h.table.Heartbeat("k1", "alice"))
	h.advance(30 * time.Second)
	h.runPending(1)

	assert.Empty(t, h.table.HolderID())
	assert.Equal(t, 1, h.table.SessionCount(), "the holder is not evicted")

	expired := h.out.OfType(events.EventTypeCueExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "k1", expired[0].To)
	p, err := events.Decode[events.CueExpiredPayload](expired[0].Event)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ParticipantID)
	assert.Equal(t, 150, p.HeldForSec)

	assert.Len(t, h.out.OfType(events.EventTypeRoster), 1)
	assert.False(t, lastRoster(t, h.out)[0].HoldsCue)
	assert.True(t, lastRoster(t, h.out)[0].IsOnline)
}

func TestShotActivityExtendsHold(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.table.Start()

	h.join("k1", "alice")
	require.NoError(t, h.table.AcquireLock("k1", "alice"))

	for i := 0; i < 3; i++ {
		require.NoError(t, h.table.Heartbeat("k1", "alice"))
		h.advance(30 * time.Second)
		h.runPending(1)
	}

	require.NoError(t, h.table.ShotStart("k1", "alice", nil, nil))
	require.NoError(t, h.table.ShotComplete("k1", "alice", nil))

	for i := 0; i < 4; i++ {
		require.NoError(t, h.table.Heartbeat("k1", "alice"))
		h.advance(30 * time.Second)
		h.runPending(1)
	}
	assert.Equal(t, "alice", h.table.HolderID())
}

func TestStopCancelsSweep(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.table.Start()
	h.table.Stop()

	h.advance(time.Minute)
	h.expectNoPending()
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.join("k1", "alice")
	require.NoError(t, h.table.AcquireLock("k1", "alice"))
	require.NoError(t, h.table.ShotStart("k1", "alice", []byte(`{"balls":[]}`), nil))
	require.NoError(t, h.table.ReportScores("k1", "alice", []events.PocketEvent{{BallNumber: 8}}))

	snap := h.table.Snapshot()
	assert.Equal(t, "alice", snap.HolderID)
	assert.True(t, snap.Simulating)
	assert.Equal(t, "alice", snap.ActiveShooterID)
	assert.JSONEq(t, `{"balls":[]}`, string(snap.Payload))
	require.Len(t, snap.Standings, 1)
	assert.Equal(t, 1, snap.Standings[0].Count)
	require.Len(t, snap.Participants, 1)
}
