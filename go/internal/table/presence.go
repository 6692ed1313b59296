package table

import (
	"time"

	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/session"
	"github.com/rs/zerolog/log"
)

// Join registers a participant on the connection identified by key.
// On success the caller receives the ack, the chat history as it was before
// the join notice and the current table state; everyone receives the roster.
func (t *Table) Join(key, id string) error {
	now := t.now()
	s, err := t.sessions.Add(key, id, now)
	if err != nil {
		return err
	}

	history := t.relay.History()

	t.sendTo(key, events.EventTypeJoinAck, events.JoinAckPayload{
		Success: true,
		Message: "joined the table",
		ID:      s.ID,
	})
	t.sendTo(key, events.EventTypeChatHistory, events.ChatHistoryPayload{Messages: history})
	t.sendTo(key, events.EventTypeTableState, t.tableState())
	t.broadcastRoster(now)
	t.relay.Notice(events.ChatKindSystem, now, "%s joined the table", s.ID)

	log.Info().
		Str("participant_id", s.ID).
		Str("conn_key", key).
		Int("participants", t.sessions.Len()).
		Msg("participant joined")
	return nil
}

// Heartbeat refreshes the caller's liveness
func (t *Table) Heartbeat(key, id string) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}
	now := t.now()
	s.LastSeen = now
	t.sendTo(key, events.EventTypeHeartbeatAck, events.HeartbeatAckPayload{Timestamp: now.UnixMilli()})
	return nil
}

// Disconnect tears down whatever session the closed connection was bound to
func (t *Table) Disconnect(key string) {
	s, ok := t.sessions.ByKey(key)
	if !ok {
		return
	}
	t.Leave(s.ID, "disconnected")
}

// Leave removes the participant and cascades into the cue and the ledger.
// Leaving an id that is not live is a no-op.
func (t *Table) Leave(id, reason string) bool {
	s, ok := t.sessions.Remove(id)
	if !ok {
		return false
	}
	now := t.now()

	if t.holderID == s.ID {
		t.releaseCue(s)
	}
	if t.ledger.Remove(s.ID) && t.sessions.Len() > 1 {
		t.emit(events.EventTypeScoreRemoved, events.ScoreRemovedPayload{PlayerID: s.ID})
	}

	t.broadcastRoster(now)
	t.relay.Notice(events.ChatKindSystem, now, "%s left the table (%s)", s.ID, reason)

	log.Info().
		Str("participant_id", s.ID).
		Str("reason", reason).
		Int("participants", t.sessions.Len()).
		Msg("participant left")
	return true
}

// Sweep evicts stale participants and force-releases a cue held too long
func (t *Table) Sweep() {
	now := t.now()

	for _, s := range t.sessions.Stale(now, t.cfg.ParticipantTimeout) {
		log.Info().
			Str("participant_id", s.ID).
			Dur("silent_for", now.Sub(s.LastSeen)).
			Msg("evicting stale participant")
		t.Leave(s.ID, "timeout")
	}

	if t.holderID == "" {
		return
	}
	holder, ok := t.sessions.Get(t.holderID)
	if !ok {
		log.Warn().Str("holder_id", t.holderID).Msg("cue holder has no session - clearing")
		t.holderID = ""
		return
	}
	t.expireHold(holder, now)
}

// expireHold takes the cue back from a live holder whose last cue activity is too old
func (t *Table) expireHold(holder *session.Session, now time.Time) {
	held := now.Sub(holder.LockActivity)
	if held <= t.cfg.CueHoldTimeout {
		return
	}

	t.releaseCue(holder)
	t.sendTo(holder.Key, events.EventTypeCueExpired, events.CueExpiredPayload{
		ParticipantID: holder.ID,
		HeldForSec:    int(held / time.Second),
	})
	t.broadcastRoster(now)
	t.relay.Notice(events.ChatKindInfo, now, "%s held the cue too long and lost it", holder.ID)

	log.Info().
		Str("participant_id", holder.ID).
		Dur("held", held).
		Msg("cue hold expired")
}
