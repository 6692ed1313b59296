package table

import (
	"fmt"

	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/score"
	"github.com/rs/zerolog/log"
)

// ReportScores records pocketed balls for the caller, who must hold the cue
// or be the shooter of the running shot. Reserved, invalid and duplicate
// balls are skipped without an error.
func (t *Table) ReportScores(key, id string, pocketed []events.PocketEvent) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}
	if s.ID != t.holderID && s.ID != t.shot.activeHolderID {
		return fmt.Errorf("%w: %q is neither the cue holder nor the shooter", ErrNotAuthorized, s.ID)
	}

	now := t.now()
	for _, ev := range pocketed {
		outcome := t.ledger.Record(s.ID, ev.BallNumber)
		switch outcome {
		case score.Recorded:
			t.emit(events.EventTypeScored, events.ScoredPayload{
				PlayerID:   s.ID,
				BallNumber: ev.BallNumber,
				Category:   ev.Category,
				Total:      t.ledger.Count(s.ID),
			})
			t.relay.Notice(events.ChatKindInfo, now, "%s pocketed the %d ball", s.ID, ev.BallNumber)
		case score.SkippedInvalid:
			log.Warn().
				Str("participant_id", s.ID).
				Int("ball", ev.BallNumber).
				Msg("skipping invalid ball number")
		case score.SkippedDuplicate:
			log.Debug().
				Str("participant_id", s.ID).
				Int("ball", ev.BallNumber).
				Msg("ball already recorded")
		}
	}
	return nil
}

// ClearScores empties the ledger. Only the cue holder may do this.
func (t *Table) ClearScores(key, id string) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}
	if s.ID != t.holderID {
		return fmt.Errorf("%w: only the cue holder can clear scores", ErrNotAuthorized)
	}

	t.ledger.Clear()
	t.emit(events.EventTypeScoresCleared, events.ScoresClearedPayload{ClearedBy: s.ID})
	log.Info().Str("participant_id", s.ID).Msg("scores cleared")
	return nil
}

// QueryScores sends the current standings to the caller only
func (t *Table) QueryScores(key, id string) error {
	if _, err := t.sessions.Authorize(key, id); err != nil {
		return err
	}
	t.sendTo(key, events.EventTypeScoreboard, events.ScoreboardPayload{Standings: t.standings()})
	return nil
}
