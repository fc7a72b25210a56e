package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// NoAction is the move text recorded when a player fails to move.
const NoAction = "(no action)"

// Move is one player's contribution to a turn transcript.
type Move struct {
	Player string `json:"player"`
	Entity string `json:"entity"` // entity the player controls
	Text   string `json:"text"`
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScoreRecord captures one (rule, entity) scoring outcome.
type ScoreRecord struct {
	Rule      string          `json:"rule"`
	Entity    string          `json:"entity"`
	Judgment  *scenario.Value `json:"judgment,omitempty"`  // raw judgment, nil if none was obtained
	Previous  *scenario.Value `json:"previous,omitempty"`  // value at the start of the turn
	Committed *scenario.Value `json:"committed,omitempty"` // nil when failed
	Failed    bool            `json:"failed,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// TurnRecord is the audit entry for one committed turn.
type TurnRecord struct {
	Turn        int           `json:"turn"`
	Date        string        `json:"date,omitempty"`
	Moves       []Move        `json:"moves"`
	Scores      []ScoreRecord `json:"scores,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Clone returns a deep copy of r.
func (r TurnRecord) Clone() TurnRecord {
	out := r
	out.Moves = append([]Move(nil), r.Moves...)
	if r.Scores != nil {
		out.Scores = make([]ScoreRecord, len(r.Scores))
		for i, s := range r.Scores {
			s.Judgment = cloneValue(s.Judgment)
			s.Previous = cloneValue(s.Previous)
			s.Committed = cloneValue(s.Committed)
			out.Scores[i] = s
		}
	}
	return out
}

// FailedScores counts the score records marked failed.
func (r TurnRecord) FailedScores() int {
	n := 0
	for _, s := range r.Scores {
		if s.Failed {
			n++
		}
	}
	return n
}

func cloneValue(v *scenario.Value) *scenario.Value {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Update is a proposed write of one entity attribute.
type Update struct {
	Entity    string
	Attribute string
	Value     scenario.Value
}

// WorldState is the mutable aggregate a game runs on. It is not safe for
// concurrent use; the turn engine serializes access.
type WorldState struct {
	ID        uuid.UUID
	Scenario  *scenario.Scenario // read-only
	Entities  scenario.Entities
	Turn      int // committed turns
	History   []TurnRecord
	Ended     bool
	EndReason string
}

// New derives a fresh world from scn. The scenario's entities are copied so
// the template is never mutated.
func New(scn *scenario.Scenario) *WorldState {
	return &WorldState{
		ID:       uuid.New(),
		Scenario: scn,
		Entities: scn.Entities.Clone(),
		History:  make([]TurnRecord, 0),
	}
}

// Apply writes a batch of updates. Updates for unknown entities are
// returned as an error after the known ones have been applied.
func (ws *WorldState) Apply(updates []Update) error {
	var errs []error
	for _, u := range updates {
		e, ok := ws.Entities[u.Entity]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown entity %q", u.Entity))
			continue
		}
		if e == nil {
			e = make(scenario.Entity)
			ws.Entities[u.Entity] = e
		}
		e[u.Attribute] = u.Value
	}
	return errors.Join(errs...)
}

// Append records a committed turn and advances the turn counter.
func (ws *WorldState) Append(rec TurnRecord) {
	ws.History = append(ws.History, rec)
	ws.Turn = rec.Turn
}

// End marks the world terminal.
func (ws *WorldState) End(reason string) {
	ws.Ended = true
	ws.EndReason = reason
}

// LastTurn returns the most recent turn record.
func (ws *WorldState) LastTurn() (TurnRecord, bool) {
	if len(ws.History) == 0 {
		return TurnRecord{}, false
	}
	return ws.History[len(ws.History)-1], true
}

// Snapshot returns a deep, serializable copy of ws.
func (ws *WorldState) Snapshot() *Snapshot {
	hist := make([]TurnRecord, len(ws.History))
	for i, r := range ws.History {
		hist[i] = r.Clone()
	}
	return &Snapshot{
		ID:        ws.ID,
		Scenario:  ws.Scenario.Clone(),
		Turn:      ws.Turn,
		Entities:  ws.Entities.Clone(),
		History:   hist,
		Ended:     ws.Ended,
		EndReason: ws.EndReason,
		SavedAt:   time.Now().UTC(),
	}
}
