package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
)

// ErrNoMove is returned by Next when no move arrived before the timeout.
var ErrNoMove = errors.New("no move queued")

// PromptTTL bounds how long a published move prompt stays readable.
const PromptTTL = time.Hour

// MoveQueue holds human moves submitted out of process, one Redis list per
// (game, player).
type MoveQueue struct {
	client *Client
}

func NewMoveQueue(client *Client) *MoveQueue {
	return &MoveQueue{client: client}
}

func queueKey(gameID uuid.UUID, player string) string {
	return fmt.Sprintf("moves:%s:%s", gameID.String(), strings.ToLower(player))
}

func promptKey(gameID uuid.UUID, player string) string {
	return fmt.Sprintf("move-prompt:%s:%s", gameID.String(), strings.ToLower(player))
}

// Enqueue validates req and appends its text to the player's queue.
func (mq *MoveQueue) Enqueue(ctx context.Context, req *chat.MoveRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid move: %w", err)
	}
	key := queueKey(req.GameID, req.Player)
	if err := mq.client.rdb.RPush(ctx, key, req.Text).Err(); err != nil {
		return fmt.Errorf("failed to enqueue move: %w", err)
	}
	mq.client.logger.Debug("Enqueued move",
		"game_id", req.GameID.String(),
		"player", req.Player,
		"prompt_preview", truncate(req.Text, 50))
	return nil
}

// Next pops the oldest move, waiting up to timeout. A timeout of zero
// blocks until a move arrives or ctx is done.
func (mq *MoveQueue) Next(ctx context.Context, gameID uuid.UUID, player string, timeout time.Duration) (string, error) {
	result, err := mq.client.rdb.BLPop(ctx, timeout, queueKey(gameID, player)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoMove
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to dequeue move: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return "", fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return result[1], nil
}

// Depth returns the number of moves queued for a player
func (mq *MoveQueue) Depth(ctx context.Context, gameID uuid.UUID, player string) (int, error) {
	count, err := mq.client.rdb.LLen(ctx, queueKey(gameID, player)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// Clear drops any queued moves for a player
func (mq *MoveQueue) Clear(ctx context.Context, gameID uuid.UUID, player string) error {
	if err := mq.client.rdb.Del(ctx, queueKey(gameID, player)).Err(); err != nil {
		return fmt.Errorf("failed to clear move queue: %w", err)
	}
	return nil
}

// PublishPrompt stores the prompt a remote player should answer.
func (mq *MoveQueue) PublishPrompt(ctx context.Context, gameID uuid.UUID, player, prompt string) error {
	if err := mq.client.rdb.Set(ctx, promptKey(gameID, player), prompt, PromptTTL).Err(); err != nil {
		return fmt.Errorf("failed to publish move prompt: %w", err)
	}
	return nil
}

// Prompt returns the pending prompt for a player, or "" when none is set.
func (mq *MoveQueue) Prompt(ctx context.Context, gameID uuid.UUID, player string) (string, error) {
	prompt, err := mq.client.rdb.Get(ctx, promptKey(gameID, player)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read move prompt: %w", err)
	}
	return prompt, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
