package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/laissez-faire/pkg/judgment"
	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// fakeJudge routes free-text requests to move and tool requests to score.
type fakeJudge struct {
	mu             sync.Mutex
	playerPrompts  []string
	scoringPrompts []string
	move           func(ctx context.Context, req judgment.Request) (judgment.Result, error)
	score          func(ctx context.Context, req judgment.Request) (judgment.Result, error)
}

func (f *fakeJudge) RequestJudgment(ctx context.Context, req judgment.Request) (judgment.Result, error) {
	f.mu.Lock()
	if req.Schema == nil {
		f.playerPrompts = append(f.playerPrompts, req.System+"\n"+req.Prompt)
	} else {
		f.scoringPrompts = append(f.scoringPrompts, req.Prompt)
	}
	f.mu.Unlock()

	if req.Schema == nil {
		if f.move != nil {
			return f.move(ctx, req)
		}
		return judgment.Result{Text: "We act."}, nil
	}
	if f.score != nil {
		return f.score(ctx, req)
	}
	return judgment.Result{Value: scenario.NewNumber(1)}, nil
}

func (f *fakeJudge) scoring() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scoringPrompts...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:            "Test",
		StartDate:       "1947-03-12",
		PlayerEntityKey: "countries",
		MaxTurns:        3,
		Entities: scenario.Entities{
			"USA":  {"influence": scenario.NewNumber(50)},
			"USSR": {"influence": scenario.NewNumber(45)},
		},
		Players: []scenario.PlayerSpec{
			{Name: "Washington", Type: scenario.PlayerAI, Controls: "USA", SystemPrompt: "You are Washington."},
			{Name: "Moscow", Type: scenario.PlayerAI, Controls: "USSR", SystemPrompt: "You are Moscow."},
		},
		ScoringParameters: map[string]scenario.ScoringRule{
			"influence": {
				Name:        "influence",
				Type:        scenario.RuleCalculated,
				Prompt:      "Influence change?",
				Calculation: "current_value + llm_judgement",
				ToolSchema:  &scenario.ToolSchema{Type: scenario.PrimitiveInteger},
			},
		},
		Scorecard: &scenario.ScorecardSpec{RenderType: scenario.RenderText, Template: "{USA.influence}/{USSR.influence}"},
	}
}

func newTestEngine(t *testing.T, scn *scenario.Scenario, deps Deps) *Engine {
	t.Helper()
	if deps.Judge == nil {
		deps.Judge = &fakeJudge{}
	}
	deps.Logger = quietLogger()
	e, err := New(scn, deps, Options{Concurrency: 2})
	require.NoError(t, err)
	return e
}

func influence(t *testing.T, e *Engine, entity string) string {
	t.Helper()
	v, ok := e.Entities().Get(entity, "influence")
	require.True(t, ok)
	return v.String()
}

func TestNew_InvalidScenario(t *testing.T) {
	scn := testScenario()
	scn.PlayerEntityKey = ""
	_, err := New(scn, Deps{Judge: &fakeJudge{}, Logger: quietLogger()}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, scenario.ErrScenarioLoad))

	_, err = New(nil, Deps{}, Options{})
	assert.True(t, errors.Is(err, scenario.ErrScenarioLoad))
}

func TestNew_CopiesEntities(t *testing.T) {
	scn := testScenario()
	e := newTestEngine(t, scn, Deps{})
	assert.Equal(t, PhaseInit, e.Phase())
	assert.Equal(t, 0, e.Turn())

	_, err := e.Step(context.Background())
	require.NoError(t, err)

	v, _ := scn.Entities.Get("USA", "influence")
	assert.Equal(t, "50", v.String(), "scenario template must not change")
	assert.Equal(t, "51", influence(t, e, "USA"))
}

func TestRun_StopsAtMaxTurns(t *testing.T) {
	e := newTestEngine(t, testScenario(), Deps{})

	var seen []int
	require.NoError(t, e.Run(context.Background(), func(rec state.TurnRecord) {
		seen = append(seen, rec.Turn)
	}))

	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, e.Turn())
	assert.Equal(t, PhaseEnded, e.Phase())
	ended, reason := e.Ended()
	assert.True(t, ended)
	assert.Equal(t, ReasonMaxTurns, reason)
	assert.Equal(t, "53", influence(t, e, "USA"))
	assert.Equal(t, "48", influence(t, e, "USSR"))

	_, err := e.Step(context.Background())
	assert.ErrorIs(t, err, ErrGameEnded)
	assert.Equal(t, 3, e.Turn(), "no mutation after the game ends")
	assert.Len(t, e.History(), 3)
}

func TestStep_Record(t *testing.T) {
	judge := &fakeJudge{move: func(ctx context.Context, req judgment.Request) (judgment.Result, error) {
		if strings.Contains(req.System, "Washington") {
			return judgment.Result{Text: "  We announce the Marshall Plan.  "}, nil
		}
		return judgment.Result{Text: "We blockade Berlin."}, nil
	}}
	e := newTestEngine(t, testScenario(), Deps{Judge: judge})

	rec, err := e.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Turn)
	assert.Equal(t, "1947-04-11", rec.Date)
	assert.False(t, rec.CompletedAt.IsZero())
	require.Len(t, rec.Moves, 2)
	assert.Equal(t, state.Move{Player: "Washington", Entity: "USA", Text: "We announce the Marshall Plan."}, rec.Moves[0])
	assert.Equal(t, state.Move{Player: "Moscow", Entity: "USSR", Text: "We blockade Berlin."}, rec.Moves[1])

	require.Len(t, rec.Scores, 2)
	assert.Equal(t, "USA", rec.Scores[0].Entity)
	assert.Equal(t, "50", rec.Scores[0].Previous.String())
	assert.Equal(t, "1", rec.Scores[0].Judgment.String())
	assert.Equal(t, "51", rec.Scores[0].Committed.String())

	// the whole transcript reaches every scoring prompt
	scoring := judge.scoring()
	require.Len(t, scoring, 2)
	for _, p := range scoring {
		assert.Contains(t, p, "Turn 1, Washington: We announce the Marshall Plan.")
		assert.Contains(t, p, "Turn 1, Moscow: We blockade Berlin.")
	}

	// player prompts carry the turn date
	assert.Contains(t, judge.playerPrompts[0], "The date is 1947-04-11.")
	assert.Equal(t, PhasePlayerMoves, e.Phase())
}

func TestStep_PlayerFailureDegrades(t *testing.T) {
	judge := &fakeJudge{move: func(ctx context.Context, req judgment.Request) (judgment.Result, error) {
		if strings.Contains(req.System, "Moscow") {
			return judgment.Result{}, &judgment.Error{Provider: "p", Attempts: 3, Err: judgment.ErrTimeout}
		}
		return judgment.Result{Text: "We act."}, nil
	}}
	e := newTestEngine(t, testScenario(), Deps{Judge: judge})

	rec, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, rec.Moves[0].Failed)
	assert.True(t, rec.Moves[1].Failed)
	assert.Equal(t, state.NoAction, rec.Moves[1].Text)
	assert.Contains(t, rec.Moves[1].Error, "timed out")
	assert.Equal(t, 1, e.Turn())

	for _, p := range judge.scoring() {
		assert.Contains(t, p, "Turn 1, Moscow: (no action)")
	}
}

func TestStep_ScoreFailureLeavesAttribute(t *testing.T) {
	judge := &fakeJudge{score: func(ctx context.Context, req judgment.Request) (judgment.Result, error) {
		if strings.Contains(req.Prompt, "--- Participant: USSR ---") {
			return judgment.Result{}, &judgment.Error{Provider: "p", Attempts: 3, Err: judgment.ErrProviderUnavailable}
		}
		return judgment.Result{Value: scenario.NewNumber(5)}, nil
	}}
	e := newTestEngine(t, testScenario(), Deps{Judge: judge})

	rec, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailedScores())
	assert.Equal(t, "55", influence(t, e, "USA"))
	assert.Equal(t, "45", influence(t, e, "USSR"))
}

func TestStep_HumanPlayers(t *testing.T) {
	scn := testScenario()
	scn.Players[1].Type = scenario.PlayerHuman

	t.Run("no input configured", func(t *testing.T) {
		e := newTestEngine(t, scn, Deps{})
		rec, err := e.Step(context.Background())
		require.NoError(t, err)
		assert.True(t, rec.Moves[1].Failed)
		assert.Equal(t, ErrNoHumanInput.Error(), rec.Moves[1].Error)
	})

	t.Run("input supplied", func(t *testing.T) {
		var got prompts.Prompt
		human := HumanInputFunc(func(ctx context.Context, p scenario.PlayerSpec, prompt prompts.Prompt) (string, error) {
			assert.Equal(t, "Moscow", p.Name)
			got = prompt
			return "We test a bomb.", nil
		})
		e := newTestEngine(t, scn, Deps{Human: human})
		rec, err := e.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "We test a bomb.", rec.Moves[1].Text)
		assert.Contains(t, got.User, "It is now Turn 1.")
	})

	t.Run("empty input", func(t *testing.T) {
		human := HumanInputFunc(func(ctx context.Context, p scenario.PlayerSpec, prompt prompts.Prompt) (string, error) {
			return "   ", nil
		})
		e := newTestEngine(t, scn, Deps{Human: human})
		rec, err := e.Step(context.Background())
		require.NoError(t, err)
		assert.True(t, rec.Moves[1].Failed)
	})
}

func TestStep_EndCondition(t *testing.T) {
	scn := testScenario()
	scn.MaxTurns = 10
	limit := 52.0
	scn.EndConditions = []scenario.EndCondition{{Entity: "USA", Attribute: "influence", AtLeast: &limit}}
	e := newTestEngine(t, scn, Deps{})

	require.NoError(t, e.Run(context.Background(), nil))
	assert.Equal(t, 2, e.Turn())
	_, reason := e.Ended()
	assert.True(t, strings.HasPrefix(reason, "end condition met"), reason)
}

func TestStep_NoScoringRules(t *testing.T) {
	scn := testScenario()
	scn.ScoringParameters = nil
	judge := &fakeJudge{}
	e := newTestEngine(t, scn, Deps{Judge: judge})

	rec, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rec.Scores)
	assert.Empty(t, judge.scoring())
	assert.Equal(t, "50", influence(t, e, "USA"))
}

func TestStep_CancelledDuringMoves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	judge := &fakeJudge{move: func(c context.Context, req judgment.Request) (judgment.Result, error) {
		cancel()
		return judgment.Result{}, c.Err()
	}}
	e := newTestEngine(t, testScenario(), Deps{Judge: judge})

	_, err := e.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Turn())
	assert.Empty(t, e.History())
	assert.Equal(t, "50", influence(t, e, "USA"))
	assert.Equal(t, PhaseInit, e.Phase())
	assert.Empty(t, judge.scoring(), "scoring never starts after cancellation")

	// the same turn can be replayed
	judge.move = nil
	rec, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Turn)
}

func TestStep_CancelledDuringScoring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	judge := &fakeJudge{score: func(c context.Context, req judgment.Request) (judgment.Result, error) {
		cancel()
		return judgment.Result{Value: scenario.NewNumber(1)}, nil
	}}
	e := newTestEngine(t, testScenario(), Deps{Judge: judge})

	_, err := e.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Turn())
	assert.Equal(t, "50", influence(t, e, "USA"))
}

func TestStep_Observers(t *testing.T) {
	var calls []int
	ok := ObserverFunc(func(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
		assert.NoError(t, ctx.Err())
		assert.Equal(t, rec.Turn, snap.Turn)
		assert.Len(t, snap.History, rec.Turn)
		calls = append(calls, rec.Turn)
		return nil
	})
	failing := ObserverFunc(func(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
		return errors.New("disk full")
	})
	e := newTestEngine(t, testScenario(), Deps{Observers: []Observer{failing, ok}})

	require.NoError(t, e.Run(context.Background(), nil))
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestStop(t *testing.T) {
	e := newTestEngine(t, testScenario(), Deps{})
	_, err := e.Step(context.Background())
	require.NoError(t, err)

	e.Stop()
	assert.Equal(t, PhaseEnded, e.Phase())
	_, reason := e.Ended()
	assert.Equal(t, ReasonStopped, reason)

	_, err = e.Step(context.Background())
	assert.ErrorIs(t, err, ErrGameEnded)
}

func TestSnapshotRestore(t *testing.T) {
	e := newTestEngine(t, testScenario(), Deps{})
	_, err := e.Step(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)
	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := Restore(&snap, Deps{Judge: &fakeJudge{}, Logger: quietLogger()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, e.ID(), restored.ID())
	assert.Equal(t, PhasePlayerMoves, restored.Phase())
	assert.Equal(t, 1, restored.Turn())
	assert.Equal(t, "51", influence(t, restored, "USA"))

	rec, err := restored.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Turn)
	assert.Equal(t, "1947-05-11", rec.Date)
	assert.Len(t, restored.History(), 2)
}

func TestRestore_Ended(t *testing.T) {
	e := newTestEngine(t, testScenario(), Deps{})
	require.NoError(t, e.Run(context.Background(), nil))

	restored, err := Restore(e.Snapshot(), Deps{Judge: &fakeJudge{}, Logger: quietLogger()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, restored.Phase())
	_, err = restored.Step(context.Background())
	assert.ErrorIs(t, err, ErrGameEnded)
}

func TestRestore_Invalid(t *testing.T) {
	snap := newTestEngine(t, testScenario(), Deps{}).Snapshot()
	snap.Turn = 2 // no history to back it
	_, err := Restore(snap, Deps{Judge: &fakeJudge{}, Logger: quietLogger()}, Options{})
	assert.ErrorIs(t, err, state.ErrInvalidSnapshot)
}

func TestScorecard(t *testing.T) {
	e := newTestEngine(t, testScenario(), Deps{})
	p, err := e.Scorecard()
	require.NoError(t, err)
	assert.Equal(t, "50/45", p.Text)

	_, err = e.Step(context.Background())
	require.NoError(t, err)
	p, err = e.Scorecard()
	require.NoError(t, err)
	assert.Equal(t, "51/46", p.Text)
}

func TestMaxTurnsFallback(t *testing.T) {
	scn := testScenario()
	scn.MaxTurns = 0
	e, err := New(scn, Deps{Judge: &fakeJudge{}, Logger: quietLogger()}, Options{MaxTurns: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, e.MaxTurns())

	e, err = New(scn, Deps{Judge: &fakeJudge{}, Logger: quietLogger()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTurns, e.MaxTurns())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2), "never splits a rune")
}
