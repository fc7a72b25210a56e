// Package engine runs the turn loop:
//
//	INIT → (PLAYER_MOVES → SCORING → COMMIT → CHECK_END)* → ENDED
//
// The engine owns the WorldState. Player moves and score judgments are
// gathered concurrently, buffered, and written in a single COMMIT per turn.
// Cancellation is honored between phases and never during COMMIT.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/scorecard"
	"github.com/jwebster45206/laissez-faire/pkg/scoring"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// Phase is a turn-engine state.
type Phase string

const (
	PhaseInit        Phase = "INIT"
	PhasePlayerMoves Phase = "PLAYER_MOVES"
	PhaseScoring     Phase = "SCORING"
	PhaseCommit      Phase = "COMMIT"
	PhaseCheckEnd    Phase = "CHECK_END"
	PhaseEnded       Phase = "ENDED"
)

const (
	DefaultMaxTurns    = 10
	DefaultConcurrency = 4
)

// End reasons recorded on the world state.
const (
	ReasonMaxTurns = "max turns reached"
	ReasonStopped  = "stopped"
)

var (
	// ErrGameEnded is returned by Step once the game is over.
	ErrGameEnded = errors.New("game has ended")
	// ErrNoHumanInput is recorded when a human player has no input source.
	ErrNoHumanInput = errors.New("no human input configured")
)

// Deps are the collaborators an engine needs.
type Deps struct {
	Judge     scoring.Judge // player moves and scoring
	Human     HumanInput    // optional
	Observers []Observer
	Logger    *slog.Logger
}

// Options tune a run. Zero fields take defaults.
type Options struct {
	MaxTurns        int    // used when the scenario sets none
	Concurrency     int    // in-flight judgment ceiling per phase
	DefaultProvider string // AI players without a provider
	ScorerProvider  string
}

// Engine drives one game.
type Engine struct {
	stepMu sync.Mutex // serializes Step
	mu     sync.Mutex // guards ws and phase
	ws     *state.WorldState
	phase  Phase

	scorer    *scoring.Scorer
	judge     scoring.Judge
	human     HumanInput
	observers []Observer
	opts      Options
	maxTurns  int
	stopping  atomic.Bool
	logger    *slog.Logger
}

// New starts a game from scn. The scenario is validated; a failure is a
// *scenario.LoadError.
func New(scn *scenario.Scenario, deps Deps, opts Options) (*Engine, error) {
	if scn == nil {
		return nil, &scenario.LoadError{Problems: []string{"scenario is nil"}}
	}
	if err := scn.Validate(); err != nil {
		return nil, err
	}
	e := newEngine(state.New(scn), deps, opts)
	e.phase = PhaseInit
	e.logStart("game started")
	return e, nil
}

// Restore rebuilds an engine from a snapshot. The game resumes at
// PLAYER_MOVES of turn snap.Turn+1, or stays ENDED.
func Restore(snap *state.Snapshot, deps Deps, opts Options) (*Engine, error) {
	ws, err := snap.WorldState()
	if err != nil {
		return nil, err
	}
	if err := ws.Scenario.Validate(); err != nil {
		return nil, err
	}
	e := newEngine(ws, deps, opts)
	e.phase = PhasePlayerMoves
	if ws.Ended {
		e.phase = PhaseEnded
	}
	e.logStart("game restored")
	return e, nil
}

func newEngine(ws *state.WorldState, deps Deps, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = ws.Scenario.DefaultProvider
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("game_id", ws.ID.String())

	maxTurns := ws.Scenario.MaxTurns
	if maxTurns <= 0 {
		maxTurns = opts.MaxTurns
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	return &Engine{
		ws: ws,
		scorer: scoring.New(deps.Judge, scoring.Config{
			Provider:    opts.ScorerProvider,
			Concurrency: opts.Concurrency,
		}, logger),
		judge:     deps.Judge,
		human:     deps.Human,
		observers: deps.Observers,
		opts:      opts,
		maxTurns:  maxTurns,
		logger:    logger,
	}
}

func (e *Engine) logStart(msg string) {
	scn := e.ws.Scenario
	e.logger.Info(msg,
		"scenario", scn.Name,
		"turn", e.ws.Turn,
		"max_turns", e.maxTurns,
		"players", len(scn.Players),
		"rules", len(scn.ScoringParameters))
	if len(scn.AIPlayers()) == 0 {
		e.logger.Info("no AI players in scenario; turns will only be scored")
	}
}

// Step plays one full turn and returns its record. A cancelled turn leaves
// the world untouched and returns the context error.
func (e *Engine) Step(ctx context.Context) (state.TurnRecord, error) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	e.mu.Lock()
	if e.phase == PhaseEnded {
		e.mu.Unlock()
		return state.TurnRecord{}, ErrGameEnded
	}
	if e.ws.Turn >= e.maxTurns {
		e.endLocked(ReasonMaxTurns)
		e.mu.Unlock()
		return state.TurnRecord{}, ErrGameEnded
	}
	resting := e.phase
	turn := e.ws.Turn + 1
	scn := e.ws.Scenario
	snapshot := e.ws.Entities.Clone()
	e.mu.Unlock()

	abort := func(err error) (state.TurnRecord, error) {
		e.setPhase(resting)
		e.logger.Info("turn cancelled", "turn", turn, "error", err)
		return state.TurnRecord{}, err
	}

	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	e.setPhase(PhasePlayerMoves)
	e.logger.Info("turn started", "turn", turn, "date", scn.TurnDate(turn))
	moves := e.collectMoves(ctx, scn, snapshot, turn)

	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	e.setPhase(PhaseScoring)
	result, err := e.scoreTurn(ctx, scn, snapshot, moves, turn)
	if err != nil {
		return abort(err)
	}

	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	rec, snap := e.commit(scn, turn, moves, result)

	observerCtx := context.WithoutCancel(ctx)
	for _, o := range e.observers {
		if err := o.TurnCommitted(observerCtx, snap, rec.Clone()); err != nil {
			e.logger.Error("turn observer failed", "turn", turn, "error", err)
		}
	}
	return rec, nil
}

func (e *Engine) scoreTurn(ctx context.Context, scn *scenario.Scenario, snapshot scenario.Entities, moves []state.Move, turn int) (*scoring.Result, error) {
	if len(scn.ScoringParameters) == 0 {
		return &scoring.Result{}, nil
	}
	return e.scorer.ScoreTurn(ctx, scoring.Input{
		Scenario:   scn,
		Entities:   snapshot,
		Transcript: moves,
		Turn:       turn,
	})
}

// commit applies the turn and evaluates end conditions. It ignores
// cancellation.
func (e *Engine) commit(scn *scenario.Scenario, turn int, moves []state.Move, result *scoring.Result) (state.TurnRecord, *state.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.phase = PhaseCommit
	if err := e.ws.Apply(result.Updates()); err != nil {
		e.logger.Error("commit skipped updates", "turn", turn, "error", err)
	}
	rec := state.TurnRecord{
		Turn:        turn,
		Date:        scn.TurnDate(turn),
		Moves:       moves,
		Scores:      result.Records(),
		CompletedAt: time.Now().UTC(),
	}
	e.ws.Append(rec)

	e.phase = PhaseCheckEnd
	switch {
	case e.ws.Turn >= e.maxTurns:
		e.endLocked(ReasonMaxTurns)
	case e.stopping.Load():
		e.endLocked(ReasonStopped)
	default:
		for _, c := range scn.EndConditions {
			if c.Met(e.ws.Entities) {
				e.endLocked("end condition met: " + c.String())
				break
			}
		}
	}
	if !e.ws.Ended {
		e.phase = PhasePlayerMoves
	}

	e.logger.Info("turn committed",
		"turn", turn,
		"moves", len(moves),
		"scores", len(rec.Scores),
		"failed_scores", rec.FailedScores(),
		"ended", e.ws.Ended)
	return rec.Clone(), e.ws.Snapshot()
}

func (e *Engine) endLocked(reason string) {
	e.ws.End(reason)
	e.phase = PhaseEnded
	e.logger.Info("game ended", "turn", e.ws.Turn, "reason", reason)
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Run plays turns until the game ends or ctx is cancelled. onTurn, if
// non-nil, sees each committed record.
func (e *Engine) Run(ctx context.Context, onTurn func(state.TurnRecord)) error {
	for {
		rec, err := e.Step(ctx)
		if errors.Is(err, ErrGameEnded) {
			return nil
		}
		if err != nil {
			return err
		}
		if onTurn != nil {
			onTurn(rec)
		}
	}
}

// Stop asks the game to end. An idle game ends immediately; a turn in
// progress ends at its CHECK_END.
func (e *Engine) Stop() {
	e.stopping.Store(true)
	if !e.stepMu.TryLock() {
		return
	}
	defer e.stepMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseEnded {
		e.endLocked(ReasonStopped)
	}
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Turn returns the number of committed turns.
func (e *Engine) Turn() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Turn
}

// MaxTurns returns the turn ceiling in effect.
func (e *Engine) MaxTurns() int {
	return e.maxTurns
}

func (e *Engine) ID() uuid.UUID {
	return e.ws.ID
}

// Scenario returns the scenario template. Callers must not modify it.
func (e *Engine) Scenario() *scenario.Scenario {
	return e.ws.Scenario
}

// Ended reports whether the game is over, and why.
func (e *Engine) Ended() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Ended, e.ws.EndReason
}

// Snapshot returns a deep, serializable copy of the world.
func (e *Engine) Snapshot() *state.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Snapshot()
}

// Entities returns a copy of the current entities.
func (e *Engine) Entities() scenario.Entities {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Entities.Clone()
}

// History returns copies of all committed turn records.
func (e *Engine) History() []state.TurnRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]state.TurnRecord, len(e.ws.History))
	for i, r := range e.ws.History {
		out[i] = r.Clone()
	}
	return out
}

// Scorecard projects the current world with the scenario's scorecard spec.
func (e *Engine) Scorecard() (*scorecard.Payload, error) {
	e.mu.Lock()
	view := scorecard.View{
		Scenario: e.ws.Scenario,
		Entities: e.ws.Entities.Clone(),
		Turn:     e.ws.Turn,
	}
	e.mu.Unlock()
	p, err := scorecard.Project(view, e.ws.Scenario.ScorecardSpec())
	if err != nil {
		return nil, fmt.Errorf("scorecard: %w", err)
	}
	return p, nil
}
