package scoring

import (
	"sort"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// EntityScore is the outcome of one (rule, entity) unit.
type EntityScore struct {
	Entity    string
	Judgment  *scenario.Value
	Previous  *scenario.Value
	Committed *scenario.Value
	Err       error
}

// Failed reports whether the unit produced no committed value.
func (s EntityScore) Failed() bool {
	return s.Err != nil || s.Committed == nil
}

// Outcome collects one rule's scores, ordered by entity key.
type Outcome struct {
	Rule   scenario.ScoringRule
	Scores []EntityScore
}

// Failed reports whether any entity failed for this rule.
func (o *Outcome) Failed() bool {
	for _, s := range o.Scores {
		if s.Failed() {
			return true
		}
	}
	return false
}

// Score returns the score for entity.
func (o *Outcome) Score(entity string) (EntityScore, bool) {
	i := sort.Search(len(o.Scores), func(i int) bool { return o.Scores[i].Entity >= entity })
	if i < len(o.Scores) && o.Scores[i].Entity == entity {
		return o.Scores[i], true
	}
	return EntityScore{}, false
}

// Result maps rule name to outcome.
type Result struct {
	Outcomes map[string]*Outcome
}

func newResult(rules []scenario.ScoringRule, entities []string) *Result {
	res := &Result{Outcomes: make(map[string]*Outcome, len(rules))}
	for _, r := range rules {
		out := &Outcome{Rule: r, Scores: make([]EntityScore, len(entities))}
		for i, e := range entities {
			out.Scores[i].Entity = e
		}
		res.Outcomes[r.Name] = out
	}
	return res
}

func (r *Result) ruleNames() []string {
	names := make([]string, 0, len(r.Outcomes))
	for name := range r.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Updates lists the proposed writes of every non-failed unit, ordered by
// rule then entity. The attribute written is the rule name.
func (r *Result) Updates() []state.Update {
	var out []state.Update
	for _, name := range r.ruleNames() {
		for _, s := range r.Outcomes[name].Scores {
			if s.Failed() {
				continue
			}
			out = append(out, state.Update{Entity: s.Entity, Attribute: name, Value: *s.Committed})
		}
	}
	return out
}

// Records converts the result into turn-record entries, failures included.
func (r *Result) Records() []state.ScoreRecord {
	var out []state.ScoreRecord
	for _, name := range r.ruleNames() {
		for _, s := range r.Outcomes[name].Scores {
			rec := state.ScoreRecord{
				Rule:      name,
				Entity:    s.Entity,
				Judgment:  s.Judgment,
				Previous:  s.Previous,
				Committed: s.Committed,
				Failed:    s.Failed(),
			}
			if s.Err != nil {
				rec.Error = s.Err.Error()
			}
			if rec.Failed {
				rec.Committed = nil
			}
			out = append(out, rec)
		}
	}
	return out
}

// FailedCount counts failed units.
func (r *Result) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		for _, s := range o.Scores {
			if s.Failed() {
				n++
			}
		}
	}
	return n
}
