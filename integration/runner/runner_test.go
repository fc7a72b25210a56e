package runner

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/internal/handlers"
	"github.com/jwebster45206/laissez-faire/internal/worker"
	"github.com/jwebster45206/laissez-faire/pkg/queue"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// syncRuns plays queued turns before the request returns, standing in for
// the worker.
type syncRuns struct {
	runner *worker.GameRunner
}

func (s syncRuns) Enqueue(ctx context.Context, req *queue.RunRequest) error {
	_, err := s.runner.Run(ctx, req)
	return err
}

func testServer(t *testing.T) string {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		DataDir:         "../../data",
		RedisURL:        "redis://" + mr.Addr(),
		SaveTTL:         time.Hour,
		DefaultProvider: "mock",
		ScorerProvider:  "mock",
		Providers:       map[string]config.ProviderConfig{"mock": {Kind: config.KindMock}},
		Engine: config.EngineConfig{
			MaxTurns:    5,
			Concurrency: 2,
			MaxAttempts: 1,
			CallTimeout: 5 * time.Second,
			RetryBase:   time.Millisecond,
		},
	}
	a, err := app.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	mux := http.NewServeMux()
	runs := syncRuns{runner: worker.NewGameRunner(a, testLogger())}
	handlers.NewGamesHandler(a, a.Store, a.Moves, runs, testLogger()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunner_RunSuite(t *testing.T) {
	r := NewRunner(testServer(t))
	r.Timeout = 5 * time.Second

	suite, err := LoadTestSuite("../cases/cold_war_smoke.yaml")
	require.NoError(t, err)

	res := r.RunSuite(context.Background(), suite)
	require.NoError(t, res.Error)
	for _, s := range res.Results {
		assert.True(t, s.Success, "%s: %v", s.StepName, s.Error)
	}
	assert.True(t, res.Passed())
	assert.Len(t, res.Results, 3)
}

func TestRunner_FailingStep(t *testing.T) {
	r := NewRunner(testServer(t))
	r.Timeout = 5 * time.Second
	r.ErrorHandlingMode = ErrorHandlingExit

	wrong := 7
	suite := TestSuite{
		Name:     "wrong turn",
		Scenario: "cold_war.json",
		Steps: []TestStep{
			{Name: "bad", Run: 1, Expectations: Expectations{Turn: &wrong}},
			{Name: "skipped", Run: 1},
		},
	}
	res := r.RunSuite(context.Background(), suite)
	require.NoError(t, res.Error)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Passed())
	assert.Contains(t, res.Results[0].Error.Error(), "turn is 1, want 7")
}

func TestRunner_UnknownScenario(t *testing.T) {
	r := NewRunner(testServer(t))
	res := r.RunSuite(context.Background(), TestSuite{Name: "x", Scenario: "missing.json"})
	assert.Error(t, res.Error)
	assert.False(t, res.Passed())
}

func TestCheckExpectations(t *testing.T) {
	snap := &state.Snapshot{
		Turn:      3,
		Ended:     true,
		EndReason: "max turns reached",
		Entities: scenario.Entities{
			"USA": {"influence": scenario.NewNumber(55), "stance": scenario.NewString("containment")},
		},
	}
	f := func(v float64) *float64 { return &v }
	s := func(v string) *string { return &v }
	three, yes := 3, true

	ok := Expectations{
		Turn:      &three,
		Ended:     &yes,
		EndReason: "max turns reached",
		Attributes: map[string]Check{
			"USA.influence": {Min: f(50), Max: f(60)},
			"USA.stance":    {Equals: s("containment")},
		},
		ScorecardContains: []string{"USA"},
	}
	assert.Empty(t, CheckExpectations(ok, snap, "USA 55"))

	bad := Expectations{
		Attributes: map[string]Check{
			"USA.influence": {Max: f(10)},
			"USA.stance":    {Min: f(1)},
			"USSR.economy":  {Equals: s("1")},
			"noattr":        {},
		},
		ScorecardContains: []string{"USSR"},
	}
	problems := CheckExpectations(bad, snap, "USA 55")
	assert.Len(t, problems, 5)
}

func TestLoadTestSuite(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("scenario: cold_war.json\nsteps:\n  - run: 2\n    expect: {turn: 2}\n"), 0o644))
	missing := filepath.Join(dir, "missing.yml")
	require.NoError(t, os.WriteFile(missing, []byte("name: x\n"), 0o644))

	suite, err := LoadTestSuite(good)
	require.NoError(t, err)
	assert.Equal(t, "good", suite.Name)
	require.Len(t, suite.Steps, 1)
	assert.Equal(t, 2, suite.Steps[0].Run)
	assert.Equal(t, 2, *suite.Steps[0].Expectations.Turn)

	_, err = LoadTestSuite(missing)
	assert.Error(t, err)

	files, err := DiscoverCases(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
