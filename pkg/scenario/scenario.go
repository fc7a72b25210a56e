package scenario

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// PlayerType distinguishes human players from LLM-backed ones.
type PlayerType string

const (
	PlayerHuman PlayerType = "human"
	PlayerAI    PlayerType = "ai"
)

// RuleType selects how a scoring rule turns a judgment into a committed value.
type RuleType string

const (
	RuleAbsolute   RuleType = "absolute"   // committed value is the judgment itself
	RuleCalculated RuleType = "calculated" // committed value is calculation(current_value, llm_judgement)
)

// Primitive is the declared type of a judgment value.
type Primitive string

const (
	PrimitiveInteger Primitive = "integer"
	PrimitiveNumber  Primitive = "number"
	PrimitiveString  Primitive = "string"
	PrimitiveBoolean Primitive = "boolean"
)

// IsNumeric reports whether p is integer or number.
func (p Primitive) IsNumeric() bool {
	return p == PrimitiveInteger || p == PrimitiveNumber
}

// RenderType selects the scorecard projection.
type RenderType string

const (
	RenderText RenderType = "text"
	RenderJSON RenderType = "json"
)

// DaysPerTurn is the in-game time that passes each turn.
const DaysPerTurn = 30

// PlayerSpec describes a participant and the entity it controls.
type PlayerSpec struct {
	Name         string     `json:"name"`
	Type         PlayerType `json:"type"`
	Controls     string     `json:"controls"`
	Provider     string     `json:"provider,omitempty"`      // judgment provider for AI players
	SystemPrompt string     `json:"system_prompt,omitempty"` // behavioral prompt
}

// IsAI reports whether the player's moves come from a judgment provider.
func (p PlayerSpec) IsAI() bool {
	return p.Type == PlayerAI
}

// ToolSchema describes the primitive type a judgment must have.
type ToolSchema struct {
	Type        Primitive `json:"type"`
	Description string    `json:"description,omitempty"`
}

// ScoringRule is a scenario-defined recipe for updating one attribute per turn.
type ScoringRule struct {
	Name        string      `json:"-"` // key in scoring_parameters
	Type        RuleType    `json:"type"`
	Prompt      string      `json:"prompt"`
	Calculation string      `json:"calculation,omitempty"`
	ToolSchema  *ToolSchema `json:"tool_schema,omitempty"`
}

// Schema returns the rule's tool schema, defaulting to an undescribed number.
func (r ScoringRule) Schema() ToolSchema {
	if r.ToolSchema == nil || r.ToolSchema.Type == "" {
		s := ToolSchema{Type: PrimitiveNumber}
		if r.ToolSchema != nil {
			s.Description = r.ToolSchema.Description
		}
		return s
	}
	return *r.ToolSchema
}

// ScorecardSpec describes how the scorecard is projected.
type ScorecardSpec struct {
	RenderType RenderType `json:"render_type,omitempty"`
	Template   string     `json:"template,omitempty"`
}

// UnmarshalJSON tolerates structured (non-string) templates, which older
// scenario files carry for json scorecards. Those are ignored: json
// scorecards are a direct snapshot of entity attributes.
func (s *ScorecardSpec) UnmarshalJSON(data []byte) error {
	var aux struct {
		RenderType RenderType      `json:"render_type"`
		Template   json.RawMessage `json:"template"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.RenderType = aux.RenderType
	s.Template = ""
	if len(aux.Template) > 0 && aux.Template[0] == '"' {
		if err := json.Unmarshal(aux.Template, &s.Template); err != nil {
			return err
		}
	}
	return nil
}

// Type returns the render type, defaulting to text.
func (s ScorecardSpec) Type() RenderType {
	if s.RenderType == "" {
		return RenderText
	}
	return s.RenderType
}

// EndCondition ends the game when an entity attribute crosses a threshold.
// At least one comparison must be set; all set comparisons must hold.
type EndCondition struct {
	Entity    string   `json:"entity"`
	Attribute string   `json:"attribute"`
	AtLeast   *float64 `json:"at_least,omitempty"`
	AtMost    *float64 `json:"at_most,omitempty"`
	Equals    *Value   `json:"equals,omitempty"`
}

// Scenario is the immutable template for a game. The entity collection is
// stored in the JSON document under the key named by PlayerEntityKey.
type Scenario struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description,omitempty"`
	StartDate         string                 `json:"start_date,omitempty"` // YYYY-MM-DD
	PlayerEntityKey   string                 `json:"player_entity_key,omitempty"`
	Parameters        map[string]Value       `json:"parameters,omitempty"`
	ScoringParameters map[string]ScoringRule `json:"scoring_parameters,omitempty"`
	Scorecard         *ScorecardSpec         `json:"scorecard,omitempty"`
	Players           []PlayerSpec           `json:"players,omitempty"`
	MaxTurns          int                    `json:"max_turns,omitempty"`
	DefaultProvider   string                 `json:"default_provider,omitempty"`
	EndConditions     []EndCondition         `json:"end_conditions,omitempty"`

	Entities Entities `json:"-"`
}

// scenarioFields aliases Scenario without its JSON methods.
type scenarioFields Scenario

func (s *Scenario) UnmarshalJSON(data []byte) error {
	var fields scenarioFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*s = Scenario(fields)

	if s.PlayerEntityKey == "" {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	coll, ok := raw[s.PlayerEntityKey]
	if !ok {
		return nil
	}
	var entities Entities
	if err := json.Unmarshal(coll, &entities); err != nil {
		return fmt.Errorf("entity collection %q: %w", s.PlayerEntityKey, err)
	}
	s.Entities = entities
	return nil
}

func (s Scenario) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(scenarioFields(s))
	if err != nil {
		return nil, err
	}
	if s.PlayerEntityKey == "" || s.Entities == nil {
		return data, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	coll, err := json.Marshal(s.Entities)
	if err != nil {
		return nil, err
	}
	obj[s.PlayerEntityKey] = coll
	return json.Marshal(obj)
}

// Parse decodes and validates a scenario document. Every failure is a
// *LoadError.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &LoadError{Problems: []string{fmt.Sprintf("invalid scenario JSON: %v", err)}, Err: err}
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// normalize copies scoring_parameters keys into rule names.
func (s *Scenario) normalize() {
	for name, rule := range s.ScoringParameters {
		rule.Name = name
		s.ScoringParameters[name] = rule
	}
}

// Rules returns the scoring rules ordered by name.
func (s *Scenario) Rules() []ScoringRule {
	names := sortedKeys(s.ScoringParameters)
	out := make([]ScoringRule, 0, len(names))
	for _, name := range names {
		rule := s.ScoringParameters[name]
		rule.Name = name
		out = append(out, rule)
	}
	return out
}

// AIPlayers returns the players whose moves come from a provider.
func (s *Scenario) AIPlayers() []PlayerSpec {
	var out []PlayerSpec
	for _, p := range s.Players {
		if p.IsAI() {
			out = append(out, p)
		}
	}
	return out
}

// Player finds a player by name.
func (s *Scenario) Player(name string) (PlayerSpec, bool) {
	for _, p := range s.Players {
		if p.Name == name {
			return p, true
		}
	}
	return PlayerSpec{}, false
}

// ScorecardSpec returns the scenario's scorecard spec or the default text spec.
func (s *Scenario) ScorecardSpec() ScorecardSpec {
	if s.Scorecard == nil {
		return ScorecardSpec{RenderType: RenderText}
	}
	return *s.Scorecard
}

// TurnDate returns the in-game date after turn turns, or "" when the
// scenario has no valid start date.
func (s *Scenario) TurnDate(turn int) string {
	if s.StartDate == "" {
		return ""
	}
	start, err := time.Parse(time.DateOnly, s.StartDate)
	if err != nil {
		return ""
	}
	return start.AddDate(0, 0, DaysPerTurn*turn).Format(time.DateOnly)
}

// ParameterKeys returns the global parameter names in sorted order.
func (s *Scenario) ParameterKeys() []string {
	keys := make([]string, 0, len(s.Parameters))
	for k := range s.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of s.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	out := *s
	if s.Parameters != nil {
		out.Parameters = make(map[string]Value, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	if s.ScoringParameters != nil {
		out.ScoringParameters = make(map[string]ScoringRule, len(s.ScoringParameters))
		for k, r := range s.ScoringParameters {
			if r.ToolSchema != nil {
				schema := *r.ToolSchema
				r.ToolSchema = &schema
			}
			out.ScoringParameters[k] = r
		}
	}
	if s.Scorecard != nil {
		sc := *s.Scorecard
		out.Scorecard = &sc
	}
	out.Players = append([]PlayerSpec(nil), s.Players...)
	out.EndConditions = append([]EndCondition(nil), s.EndConditions...)
	out.Entities = s.Entities.Clone()
	return &out
}
