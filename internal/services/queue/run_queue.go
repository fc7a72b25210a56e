package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/laissez-faire/pkg/queue"
)

const runsKey = "game-runs"

// RunQueue is the global list of run requests consumed by workers.
type RunQueue struct {
	client *Client
}

func NewRunQueue(client *Client) *RunQueue {
	return &RunQueue{client: client}
}

// Enqueue validates req, stamps its id and enqueue time, and appends it to
// the queue.
func (rq *RunQueue) Enqueue(ctx context.Context, req *queue.RunRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid run request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now().UTC()
	}

	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := rq.client.rdb.RPush(ctx, runsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	rq.client.logger.Debug("Enqueued run request",
		"request_id", req.RequestID,
		"game_id", req.GameID.String(),
		"turns", req.Turns)
	return nil
}

// Requeue puts a request back at the head of the queue without restamping it.
func (rq *RunQueue) Requeue(ctx context.Context, req *queue.RunRequest) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := rq.client.rdb.LPush(ctx, runsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue request: %w", err)
	}
	return nil
}

// BlockingDequeue waits up to timeout for the next request. It returns nil,
// nil when the timeout passes with the queue still empty.
func (rq *RunQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.RunRequest, error) {
	result, err := rq.client.rdb.BLPop(ctx, timeout, runsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// Depth returns the number of requests waiting in the queue
func (rq *RunQueue) Depth(ctx context.Context) (int, error) {
	count, err := rq.client.rdb.LLen(ctx, runsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}
