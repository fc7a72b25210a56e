package runner

import (
	"time"

	"github.com/google/uuid"
)

// TestSuite defines one game played against a running API.
type TestSuite struct {
	Name     string     `yaml:"name"`
	Scenario string     `yaml:"scenario"`
	MaxTurns int        `yaml:"max_turns,omitempty"`
	Steps    []TestStep `yaml:"steps"`
}

// TestStep queues moves and turns, then checks the saved game.
// Moves are submitted before the run is queued.
type TestStep struct {
	Name         string       `yaml:"name,omitempty"`
	Moves        []MoveStep   `yaml:"moves,omitempty"`
	Run          int          `yaml:"run,omitempty"`
	Expectations Expectations `yaml:"expect"`
}

type MoveStep struct {
	Player string `yaml:"player"`
	Text   string `yaml:"text"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	Turn              *int             `yaml:"turn,omitempty"`
	Ended             *bool            `yaml:"ended,omitempty"`
	EndReason         string           `yaml:"end_reason,omitempty"`
	Attributes        map[string]Check `yaml:"attributes,omitempty"` // "Entity.attribute"
	ScorecardContains []string         `yaml:"scorecard_contains,omitempty"`
}

// Check bounds one attribute. Min and Max apply to numbers; Equals
// compares the printed value.
type Check struct {
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
	Equals *string  `yaml:"equals,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Name     string
	GameID   uuid.UUID
	Results  []TestResult
	Duration time.Duration
	Error    error
}

// Passed reports whether the suite ran and every step succeeded.
func (r TestRunResult) Passed() bool {
	if r.Error != nil {
		return false
	}
	for _, s := range r.Results {
		if !s.Success {
			return false
		}
	}
	return true
}
