package scenario

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/laissez-faire/pkg/formula"
)

// ErrScenarioLoad is matched by every scenario construction failure.
var ErrScenarioLoad = errors.New("scenario load failed")

// reservedKeys are the top-level scenario fields an entity collection may not shadow.
var reservedKeys = map[string]bool{
	"name": true, "description": true, "start_date": true, "player_entity_key": true,
	"parameters": true, "scoring_parameters": true, "scorecard": true, "players": true,
	"max_turns": true, "default_provider": true, "end_conditions": true,
}

// LoadError lists everything wrong with a scenario document.
type LoadError struct {
	Name     string
	Problems []string
	Err      error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("scenario")
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	b.WriteString(" is invalid: ")
	b.WriteString(strings.Join(e.Problems, "; "))
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrScenarioLoad }

// Validate checks the scenario invariants the engine relies on.
func (s *Scenario) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Name == "" {
		add("name is required")
	}
	if s.StartDate != "" {
		if _, err := time.Parse(time.DateOnly, s.StartDate); err != nil {
			add("start_date %q must be YYYY-MM-DD", s.StartDate)
		}
	}
	if s.MaxTurns < 0 {
		add("max_turns must not be negative")
	}

	if s.PlayerEntityKey == "" {
		add("player_entity_key is required")
	} else if reservedKeys[s.PlayerEntityKey] {
		add("player_entity_key %q collides with a scenario field", s.PlayerEntityKey)
	} else if s.Entities == nil {
		add("entity collection %q is missing", s.PlayerEntityKey)
	}
	for _, key := range s.Entities.Keys() {
		if key == "" {
			add("entity keys must not be empty")
		}
		if s.Entities[key] == nil {
			add("entity %q must be an object", key)
			continue
		}
		for _, attr := range s.Entities[key].Keys() {
			if strings.ContainsAny(attr, "{}.") {
				add("entity %q attribute %q must not contain '.', '{' or '}'", key, attr)
			}
		}
	}

	seen := make(map[string]bool, len(s.Players))
	for i, p := range s.Players {
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			add("player %s has no name", label)
		}
		if seen[p.Name] && p.Name != "" {
			add("player name %q is duplicated", p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case PlayerHuman, PlayerAI:
		default:
			add("player %s has invalid type %q (want human or ai)", label, p.Type)
		}
		if _, ok := s.Entities[p.Controls]; !ok {
			add("player %s controls unknown entity %q", label, p.Controls)
		}
	}

	for _, rule := range s.Rules() {
		for _, problem := range rule.problems() {
			add("scoring parameter %q: %s", rule.Name, problem)
		}
	}

	if s.Scorecard != nil {
		switch s.Scorecard.Type() {
		case RenderText, RenderJSON:
		default:
			add("scorecard render_type %q must be text or json", s.Scorecard.RenderType)
		}
	}

	for i, c := range s.EndConditions {
		if c.Entity == "" || c.Attribute == "" {
			add("end condition #%d needs entity and attribute", i)
			continue
		}
		if _, ok := s.Entities[c.Entity]; !ok {
			add("end condition #%d refers to unknown entity %q", i, c.Entity)
		}
		if c.AtLeast == nil && c.AtMost == nil && c.Equals == nil {
			add("end condition #%d sets none of at_least, at_most, equals", i)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &LoadError{Name: s.Name, Problems: problems}
}

func (r ScoringRule) problems() []string {
	var out []string
	schema := r.Schema()
	switch schema.Type {
	case PrimitiveInteger, PrimitiveNumber, PrimitiveString, PrimitiveBoolean:
	default:
		out = append(out, fmt.Sprintf("tool_schema type %q must be integer, number, string or boolean", schema.Type))
	}
	if strings.TrimSpace(r.Prompt) == "" {
		out = append(out, "prompt is required")
	}

	switch r.Type {
	case RuleAbsolute:
		if r.Calculation != "" {
			out = append(out, "absolute rules must not have a calculation")
		}
	case RuleCalculated:
		if r.Calculation == "" {
			out = append(out, "calculated rules require a calculation")
			break
		}
		if !schema.Type.IsNumeric() {
			out = append(out, fmt.Sprintf("calculated rules need a numeric tool_schema, got %q", schema.Type))
		}
		if _, err := formula.Compile(r.Calculation); err != nil {
			out = append(out, err.Error())
		}
	default:
		out = append(out, fmt.Sprintf("type %q must be absolute or calculated", r.Type))
	}
	return out
}

// Met reports whether the condition holds for the given entities. Missing
// attributes never satisfy a condition.
func (c EndCondition) Met(es Entities) bool {
	v, ok := es.Get(c.Entity, c.Attribute)
	if !ok {
		return false
	}
	if c.Equals != nil && !v.Equal(*c.Equals) {
		return false
	}
	if c.AtLeast != nil || c.AtMost != nil {
		n, ok := v.Number()
		if !ok {
			return false
		}
		if c.AtLeast != nil && n < *c.AtLeast {
			return false
		}
		if c.AtMost != nil && n > *c.AtMost {
			return false
		}
	}
	return c.AtLeast != nil || c.AtMost != nil || c.Equals != nil
}

// String describes the condition for logs and transcripts.
func (c EndCondition) String() string {
	var parts []string
	if c.AtLeast != nil {
		parts = append(parts, fmt.Sprintf(">= %s", NewNumber(*c.AtLeast)))
	}
	if c.AtMost != nil {
		parts = append(parts, fmt.Sprintf("<= %s", NewNumber(*c.AtMost)))
	}
	if c.Equals != nil {
		parts = append(parts, fmt.Sprintf("== %s", c.Equals))
	}
	return fmt.Sprintf("%s.%s %s", c.Entity, c.Attribute, strings.Join(parts, " and "))
}
