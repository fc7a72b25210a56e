package runner

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/laissez-faire/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration suites against a running laissez-faire API
// with at least one worker.
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration // per step
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	KeepGames         bool
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           2 * time.Minute,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	if suite.Scenario == "" {
		return TestSuite{}, fmt.Errorf("%s: scenario is required", filename)
	}
	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return suite, nil
}

// DiscoverCases lists the .yaml files in dir, sorted.
func DiscoverCases(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite executes a complete test suite
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) TestRunResult {
	start := time.Now()
	result := TestRunResult{Name: suite.Name}

	id, err := r.CreateGame(ctx, suite.Scenario, suite.MaxTurns)
	if err != nil {
		result.Error = fmt.Errorf("failed to create game: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.GameID = id
	r.Logger("  game %s (%s)", id, suite.Scenario)
	if !r.KeepGames {
		defer func() { _ = r.DeleteGame(context.WithoutCancel(ctx), id) }()
	}

	turn := 0
	for i, step := range suite.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), name)

		res := r.runStep(ctx, id, step, &turn)
		res.StepName = name
		result.Results = append(result.Results, res)
		if res.Success {
			r.Logger("      ok (%v)", res.Duration.Round(time.Millisecond))
			continue
		}
		r.Logger("      FAIL: %v", res.Error)
		if r.ErrorHandlingMode == ErrorHandlingExit {
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runStep(ctx context.Context, id uuid.UUID, step TestStep, turn *int) TestResult {
	start := time.Now()
	fail := func(err error) TestResult {
		return TestResult{Error: err, Duration: time.Since(start)}
	}

	for _, m := range step.Moves {
		if err := r.PostMove(ctx, id, m); err != nil {
			return fail(err)
		}
	}

	var snap *state.Snapshot
	var err error
	if step.Run > 0 {
		if err := r.QueueRun(ctx, id, step.Run); err != nil {
			return fail(err)
		}
		snap, err = r.PollForTurn(ctx, id, *turn+step.Run)
	} else {
		snap, err = r.GetGame(ctx, id)
	}
	if err != nil {
		return fail(err)
	}
	*turn = snap.Turn

	var card string
	if len(step.Expectations.ScorecardContains) > 0 {
		if card, err = r.GetScorecard(ctx, id); err != nil {
			return fail(err)
		}
	}
	if problems := CheckExpectations(step.Expectations, snap, card); len(problems) > 0 {
		return fail(fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return TestResult{Success: true, Duration: time.Since(start)}
}

// CheckExpectations compares a saved game, and its scorecard text, against
// exp. It returns one message per unmet expectation.
func CheckExpectations(exp Expectations, snap *state.Snapshot, scorecard string) []string {
	var problems []string

	if exp.Turn != nil && snap.Turn != *exp.Turn {
		problems = append(problems, fmt.Sprintf("turn is %d, want %d", snap.Turn, *exp.Turn))
	}
	if exp.Ended != nil && snap.Ended != *exp.Ended {
		problems = append(problems, fmt.Sprintf("ended is %v, want %v", snap.Ended, *exp.Ended))
	}
	if exp.EndReason != "" && snap.EndReason != exp.EndReason {
		problems = append(problems, fmt.Sprintf("end reason is %q, want %q", snap.EndReason, exp.EndReason))
	}

	keys := make([]string, 0, len(exp.Attributes))
	for k := range exp.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		check := exp.Attributes[key]
		entity, attr, ok := strings.Cut(key, ".")
		if !ok {
			problems = append(problems, fmt.Sprintf("bad attribute key %q", key))
			continue
		}
		v, found := snap.Entities.Get(entity, attr)
		if !found {
			problems = append(problems, fmt.Sprintf("%s is missing", key))
			continue
		}
		if check.Equals != nil && v.String() != *check.Equals {
			problems = append(problems, fmt.Sprintf("%s is %s, want %s", key, v, *check.Equals))
		}
		if check.Min == nil && check.Max == nil {
			continue
		}
		n, isNum := v.Number()
		if !isNum {
			problems = append(problems, fmt.Sprintf("%s is %s, not a number", key, v))
			continue
		}
		if check.Min != nil && n < *check.Min {
			problems = append(problems, fmt.Sprintf("%s is %v, below %v", key, n, *check.Min))
		}
		if check.Max != nil && n > *check.Max {
			problems = append(problems, fmt.Sprintf("%s is %v, above %v", key, n, *check.Max))
		}
	}

	for _, want := range exp.ScorecardContains {
		if !strings.Contains(scorecard, want) {
			problems = append(problems, fmt.Sprintf("scorecard does not contain %q", want))
		}
	}
	return problems
}
