package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/internal/logger"
	"github.com/jwebster45206/laissez-faire/pkg/engine"
	"github.com/jwebster45206/laissez-faire/pkg/queue"
)

// GameLoader restores a saved game ready to step. *app.App satisfies it.
type GameLoader interface {
	ResumeGame(ctx context.Context, id uuid.UUID, maxTurns int) (*engine.Engine, error)
}

// RunResult summarizes what a run request did.
type RunResult struct {
	Played    int
	Turn      int
	Ended     bool
	EndReason string
	Duration  time.Duration
}

// Runner executes one run request.
type Runner interface {
	Run(ctx context.Context, req *queue.RunRequest) (RunResult, error)
}

// GameRunner resumes the requested game and steps it up to req.Turns
// times. Committed turns are persisted by the game's observers.
type GameRunner struct {
	games GameLoader
	log   *slog.Logger
}

func NewGameRunner(games GameLoader, log *slog.Logger) *GameRunner {
	return &GameRunner{games: games, log: log}
}

func (r *GameRunner) Run(ctx context.Context, req *queue.RunRequest) (RunResult, error) {
	start := time.Now()
	var res RunResult
	log := logger.WithGameID(r.log, req.GameID.String())

	eng, err := r.games.ResumeGame(ctx, req.GameID, 0)
	if err != nil {
		return res, fmt.Errorf("failed to load game: %w", err)
	}

	for res.Played < req.Turns {
		if ended, _ := eng.Ended(); ended {
			break
		}
		rec, err := eng.Step(ctx)
		if errors.Is(err, engine.ErrGameEnded) {
			break
		}
		if err != nil {
			res.Turn = eng.Turn()
			res.Duration = time.Since(start)
			return res, fmt.Errorf("turn %d failed: %w", eng.Turn()+1, err)
		}
		res.Played++
		log.Debug("Run turn committed",
			"request_id", req.RequestID,
			"turn", rec.Turn)
	}

	res.Turn = eng.Turn()
	res.Ended, res.EndReason = eng.Ended()
	res.Duration = time.Since(start)
	return res, nil
}
