package table

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/poolhall/go/internal/table/chat"
	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/mcdev12/poolhall/go/internal/table/scheduler"
	"github.com/mcdev12/poolhall/go/internal/table/score"
	"github.com/mcdev12/poolhall/go/internal/table/session"
	"github.com/rs/zerolog/log"
)

// Config holds the timings of one table
type Config struct {
	LivenessCheckInterval time.Duration
	ParticipantTimeout    time.Duration
	CueHoldTimeout        time.Duration
	ShotStartSkew         time.Duration
	ShotWatchdog          time.Duration
	ResetSettleDelay      time.Duration
	Chat                  chat.Config
}

// DefaultConfig returns the timings used when no rules file is given
func DefaultConfig() Config {
	return Config{
		LivenessCheckInterval: 30 * time.Second,
		ParticipantTimeout:    60 * time.Second,
		CueHoldTimeout:        120 * time.Second,
		ShotStartSkew:         100 * time.Millisecond,
		ShotWatchdog:          6 * time.Second,
		ResetSettleDelay:      500 * time.Millisecond,
		Chat:                  chat.DefaultConfig(),
	}
}

// shotState is the shared table state owned by the shot lifecycle
type shotState struct {
	payload        json.RawMessage
	simulating     bool
	activeHolderID string
	watchdog       *scheduler.Task
	settle         *scheduler.Task
	seq            uint64
}

// Table is the authoritative state of one pool table.
//
// Table has no internal locking. Every method, and every callback it arms on
// the scheduler, must run on the same serialization point (see gateway.Hub).
type Table struct {
	cfg   Config
	sched *scheduler.Scheduler
	out   events.Broadcaster

	sessions *session.Registry
	relay    *chat.Relay
	ledger   *score.Ledger

	holderID string
	shot     shotState

	sweep *scheduler.Task
}

// New creates a table that emits through out and schedules on sched
func New(cfg Config, sched *scheduler.Scheduler, out events.Broadcaster) *Table {
	return &Table{
		cfg:      cfg,
		sched:    sched,
		out:      out,
		sessions: session.NewRegistry(),
		relay:    chat.NewRelay(cfg.Chat, out),
		ledger:   score.NewLedger(),
	}
}

// Start arms the periodic liveness sweep
func (t *Table) Start() {
	t.sweep.Cancel()
	t.sweep = t.sched.Every("liveness-sweep", t.cfg.LivenessCheckInterval, t.Sweep)
	log.Info().
		Dur("interval", t.cfg.LivenessCheckInterval).
		Dur("participant_timeout", t.cfg.ParticipantTimeout).
		Dur("cue_hold_timeout", t.cfg.CueHoldTimeout).
		Msg("table started")
}

// Stop cancels every scheduled task owned by the table
func (t *Table) Stop() {
	t.sweep.Cancel()
	t.shot.watchdog.Cancel()
	t.shot.settle.Cancel()
	t.sweep, t.shot.watchdog, t.shot.settle = nil, nil, nil
	log.Info().Msg("table stopped")
}

// Snapshot is a read-only view of the table
type Snapshot struct {
	Participants    []events.RosterEntry `json:"participants"`
	HolderID        string               `json:"holder_id,omitempty"`
	Simulating      bool                 `json:"simulating"`
	ActiveShooterID string               `json:"active_shooter_id,omitempty"`
	Payload         json.RawMessage      `json:"payload,omitempty"`
	Standings       []events.Standing    `json:"standings"`
	ChatMessages    int                  `json:"chat_messages"`
}

// Snapshot returns a copy of the current table state
func (t *Table) Snapshot() Snapshot {
	return Snapshot{
		Participants:    t.sessions.Roster(t.now(), t.cfg.ParticipantTimeout),
		HolderID:        t.holderID,
		Simulating:      t.shot.simulating,
		ActiveShooterID: t.shot.activeHolderID,
		Payload:         clonePayload(t.shot.payload),
		Standings:       t.standings(),
		ChatMessages:    t.relay.Len(),
	}
}

// SessionCount returns the number of live sessions
func (t *Table) SessionCount() int {
	return t.sessions.Len()
}

func (t *Table) now() time.Time {
	return t.sched.Now()
}

func (t *Table) emit(eventType events.EventType, payload any) {
	event, err := events.New(eventType, payload, t.now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	t.out.Broadcast(event)
}

func (t *Table) emitExcept(key string, eventType events.EventType, payload any) {
	event, err := events.New(eventType, payload, t.now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	t.out.BroadcastExcept(key, event)
}

func (t *Table) sendTo(key string, eventType events.EventType, payload any) {
	event, err := events.New(eventType, payload, t.now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	t.out.SendTo(key, event)
}

func (t *Table) broadcastRoster(now time.Time) {
	t.emit(events.EventTypeRoster, events.RosterPayload{
		Participants: t.sessions.Roster(now, t.cfg.ParticipantTimeout),
	})
}

func (t *Table) tableState() events.TableStatePayload {
	return events.TableStatePayload{
		Payload:         clonePayload(t.shot.payload),
		Simulating:      t.shot.simulating,
		HolderID:        t.holderID,
		ActiveShooterID: t.shot.activeHolderID,
	}
}

func (t *Table) standings() []events.Standing {
	rows := t.ledger.Standings()
	out := make([]events.Standing, 0, len(rows))
	for _, row := range rows {
		out = append(out, events.Standing{
			PlayerID: row.PlayerID,
			Balls:    row.Balls,
			Count:    len(row.Balls),
		})
	}
	return out
}

func clonePayload(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}

// hasPayload reports whether a client-supplied payload carries a value
func hasPayload(p json.RawMessage) bool {
	return len(p) > 0 && string(p) != "null"
}
