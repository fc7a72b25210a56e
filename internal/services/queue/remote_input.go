package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// DefaultPollInterval is how long one BLPOP waits before the context is
// rechecked.
const DefaultPollInterval = 5 * time.Second

// RemoteInput supplies human moves from the move queue. It satisfies
// engine.HumanInput once bound to a game.
type RemoteInput struct {
	queue        *MoveQueue
	logger       *slog.Logger
	PollInterval time.Duration

	mu     sync.Mutex
	gameID uuid.UUID
}

func NewRemoteInput(queue *MoveQueue, logger *slog.Logger) *RemoteInput {
	return &RemoteInput{
		queue:        queue,
		logger:       logger,
		PollInterval: DefaultPollInterval,
	}
}

// Bind sets the game whose queues are read.
func (ri *RemoteInput) Bind(gameID uuid.UUID) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.gameID = gameID
}

func (ri *RemoteInput) boundGame() uuid.UUID {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.gameID
}

// HumanMove publishes prompt for the player and waits for a queued move.
func (ri *RemoteInput) HumanMove(ctx context.Context, player scenario.PlayerSpec, prompt prompts.Prompt) (string, error) {
	gameID := ri.boundGame()
	if gameID == uuid.Nil {
		return "", fmt.Errorf("remote input is not bound to a game")
	}

	if err := ri.queue.PublishPrompt(ctx, gameID, player.Name, prompt.User); err != nil {
		return "", err
	}
	ri.logger.Info("Waiting for remote move", "game_id", gameID.String(), "player", player.Name)

	for {
		text, err := ri.queue.Next(ctx, gameID, player.Name, ri.PollInterval)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrNoMove) {
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
}
