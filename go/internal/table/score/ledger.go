package score

import "sort"

const (
	// ReservedBall is the cue ball; it is never scored
	ReservedBall = 0
	MinBall      = 1
	MaxBall      = 15
)

// Outcome describes what Record did with a reported ball
type Outcome int

const (
	Recorded Outcome = iota
	SkippedReserved
	SkippedInvalid
	SkippedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case SkippedReserved:
		return "skipped_reserved"
	case SkippedInvalid:
		return "skipped_invalid"
	case SkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

// Standing is one participant's row in the ledger
type Standing struct {
	PlayerID string
	Balls    []int
}

// Ledger records which balls each participant pocketed. A ball is recorded
// at most once per participant, so duplicate reports are harmless.
// It is not safe for concurrent use.
type Ledger struct {
	balls map[string][]int
	seen  map[string]map[int]struct{}
	order []string // participants in order of their first recorded ball
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		balls: make(map[string][]int),
		seen:  make(map[string]map[int]struct{}),
	}
}

// Record adds ball to playerID's set
func (l *Ledger) Record(playerID string, ball int) Outcome {
	if ball == ReservedBall {
		return SkippedReserved
	}
	if ball < MinBall || ball > MaxBall {
		return SkippedInvalid
	}

	seen, ok := l.seen[playerID]
	if !ok {
		seen = make(map[int]struct{})
		l.seen[playerID] = seen
		l.order = append(l.order, playerID)
	}
	if _, dup := seen[ball]; dup {
		return SkippedDuplicate
	}

	seen[ball] = struct{}{}
	l.balls[playerID] = append(l.balls[playerID], ball)
	return Recorded
}

// Count returns how many balls playerID has recorded
func (l *Ledger) Count(playerID string) int {
	return len(l.balls[playerID])
}

// Has reports whether playerID has any entries
func (l *Ledger) Has(playerID string) bool {
	return len(l.balls[playerID]) > 0
}

// Remove drops playerID's entries and reports whether there were any
func (l *Ledger) Remove(playerID string) bool {
	if _, ok := l.seen[playerID]; !ok {
		return false
	}
	had := len(l.balls[playerID]) > 0
	delete(l.balls, playerID)
	delete(l.seen, playerID)
	for i, id := range l.order {
		if id == playerID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return had
}

// Clear drops every entry
func (l *Ledger) Clear() {
	l.balls = make(map[string][]int)
	l.seen = make(map[string]map[int]struct{})
	l.order = nil
}

// Len returns the number of participants with entries
func (l *Ledger) Len() int {
	return len(l.order)
}

// Standings returns a snapshot ordered by descending ball count,
// ties broken by who scored first
func (l *Ledger) Standings() []Standing {
	out := make([]Standing, 0, len(l.order))
	for _, id := range l.order {
		balls := make([]int, len(l.balls[id]))
		copy(balls, l.balls[id])
		out = append(out, Standing{PlayerID: id, Balls: balls})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Balls) > len(out[j].Balls)
	})
	return out
}
