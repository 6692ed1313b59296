package table

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/session"
	"github.com/rs/zerolog/log"
)

// ShotStart begins a shot for the cue holder. Every participant, the shooter
// included, is told to start simulating at the same instant: now plus the skew.
func (t *Table) ShotStart(key, id string, payload, params json.RawMessage) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}
	if t.holderID != s.ID {
		return fmt.Errorf("%w: %q does not hold the cue", ErrInvalidShot, s.ID)
	}
	if t.shot.simulating {
		return fmt.Errorf("%w: shot by %q still in progress", ErrInvalidShot, t.shot.activeHolderID)
	}

	now := t.now()
	t.shot.watchdog.Cancel()
	t.shot.settle.Cancel()
	t.shot.settle = nil

	t.shot.seq++
	seq := t.shot.seq
	t.shot.simulating = true
	t.shot.activeHolderID = s.ID
	// A shot without a layout is taken from the current one
	if hasPayload(payload) {
		t.shot.payload = clonePayload(payload)
	}
	s.LastSeen = now
	s.LockActivity = now

	startAt := now.Add(t.cfg.ShotStartSkew)
	t.emit(events.EventTypeShotStarted, events.ShotStartedPayload{
		ShooterID:   s.ID,
		Payload:     clonePayload(t.shot.payload),
		Params:      params,
		StartTimeMs: startAt.UnixMilli(),
	})

	shooter := s.ID
	t.shot.watchdog = t.sched.After("shot-watchdog", t.cfg.ShotWatchdog, func() {
		t.watchdogExpired(seq, shooter)
	})

	log.Debug().
		Str("participant_id", s.ID).
		Uint64("shot", seq).
		Time("start_at", startAt).
		Msg("shot started")
	return nil
}

// ShotComplete ends the current shot with the reporter's final positions.
// An empty payload keeps the positions the table already has.
func (t *Table) ShotComplete(key, id string, final json.RawMessage) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}

	now := t.now()
	t.shot.watchdog.Cancel()
	t.shot.watchdog = nil
	t.shot.simulating = false
	t.shot.activeHolderID = ""
	if hasPayload(final) {
		t.shot.payload = clonePayload(final)
	}
	s.LastSeen = now
	if s.HoldsCue {
		s.LockActivity = now
	}

	t.emit(events.EventTypeStateReconciled, events.StateReconciledPayload{
		Payload: clonePayload(t.shot.payload),
	})
	t.emitExcept(key, events.EventTypeShotCompleted, events.ShotCompletedPayload{
		ReporterID: s.ID,
		Payload:    final,
	})

	log.Debug().Str("participant_id", s.ID).Uint64("shot", t.shot.seq).Msg("shot completed")
	return nil
}

// watchdogExpired ends a shot whose completion never arrived. The last known
// payload stays authoritative.
func (t *Table) watchdogExpired(seq uint64, shooter string) {
	if !t.shot.simulating || t.shot.seq != seq || t.shot.activeHolderID != shooter {
		log.Debug().Uint64("shot", seq).Msg("stale shot watchdog - ignoring")
		return
	}

	t.shot.watchdog = nil
	t.shot.simulating = false
	t.shot.activeHolderID = ""

	t.emit(events.EventTypeSimulationEnded, events.SimulationEndedPayload{
		ShooterID: shooter,
		Reason:    "timeout",
	})

	log.Warn().
		Str("participant_id", shooter).
		Uint64("shot", seq).
		Dur("watchdog", t.cfg.ShotWatchdog).
		Msg("shot completion not received - ending simulation")
}

// Reset clears the table and the scores. The holder keeps the cue and is told
// to shoot again once the settle delay has passed.
func (t *Table) Reset(key, id string) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}
	if t.holderID != s.ID {
		return fmt.Errorf("%w: only the cue holder can reset the table", session.ErrUnauthorized)
	}

	now := t.now()
	t.shot.watchdog.Cancel()
	t.shot.settle.Cancel()
	t.shot.watchdog = nil
	t.shot.payload = nil
	t.shot.simulating = false
	t.shot.activeHolderID = ""
	t.ledger.Clear()
	s.LastSeen = now

	t.emit(events.EventTypeTableReset, events.TableResetPayload{ResetBy: s.ID})
	t.emit(events.EventTypeScoresCleared, events.ScoresClearedPayload{ClearedBy: s.ID})
	t.relay.Notice(events.ChatKindSystem, now, "%s reset the table", s.ID)

	t.shot.settle = t.sched.After("reset-settle", t.cfg.ResetSettleDelay, func() {
		t.shot.settle = nil
		t.emit(events.EventTypeReadyForShot, events.ReadyForShotPayload{HolderID: t.holderID})
	})

	log.Info().Str("participant_id", s.ID).Msg("table reset")
	return nil
}
