package table

import (
	"fmt"

	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/session"
	"github.com/rs/zerolog/log"
)

// AcquireLock gives the cue to the caller if nobody holds it.
// There is no queue: the first request after a release wins.
func (t *Table) AcquireLock(key, id string) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}
	if t.holderID != "" {
		return fmt.Errorf("%w by %q", ErrAlreadyHeld, t.holderID)
	}

	now := t.now()
	t.holderID = s.ID
	s.HoldsCue = true
	s.LastSeen = now
	s.LockActivity = now

	t.broadcastRoster(now)
	t.emit(events.EventTypeLockStateChanged, events.LockStateChangedPayload{
		HolderID: s.ID,
		Held:     true,
	})
	t.relay.Notice(events.ChatKindSystem, now, "%s picked up the cue", s.ID)

	log.Debug().Str("participant_id", s.ID).Msg("cue acquired")
	return nil
}

// ReleaseLock hands the cue back. Requests from anyone but the holder are ignored.
func (t *Table) ReleaseLock(key, id string) {
	s, err := t.sessions.Authorize(key, id)
	if err != nil || t.holderID != s.ID {
		log.Debug().
			Str("participant_id", id).
			Str("holder_id", t.holderID).
			Msg("ignoring release from non-holder")
		return
	}

	now := t.now()
	s.LastSeen = now
	t.releaseCue(s)
	t.broadcastRoster(now)
	t.relay.Notice(events.ChatKindSystem, now, "%s put down the cue", s.ID)

	log.Debug().Str("participant_id", s.ID).Msg("cue released")
}

// releaseCue clears the holder. It is shared by client releases and forced
// releases, which emit the same LockStateChanged shape.
func (t *Table) releaseCue(s *session.Session) {
	s.HoldsCue = false
	t.holderID = ""
	// A pending ReadyForShot belongs to the holder that reset the table
	t.shot.settle.Cancel()
	t.shot.settle = nil
	t.emit(events.EventTypeLockStateChanged, events.LockStateChangedPayload{Held: false})
}

// HolderID returns the id of the participant holding the cue, if any
func (t *Table) HolderID() string {
	return t.holderID
}
