package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/laissez-faire/internal/logger"
	"github.com/jwebster45206/laissez-faire/internal/services/queue"
	queuePkg "github.com/jwebster45206/laissez-faire/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second
)

// Only delete or extend the lock if we own it.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	refreshScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Worker processes run requests from the shared queue. A per-game Redis
// lock keeps two workers from stepping the same game.
type Worker struct {
	id          string
	queue       *queue.RunQueue
	runner      Runner
	redisClient *redis.Client
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(runs *queue.RunQueue, runner Runner, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       runs,
		runner:      runner,
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the worker's lock owner id.
func (w *Worker) ID() string {
	return w.id
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeue(w.ctx, workerTimeout)
	if err != nil {
		if w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to dequeue request: %w", err)
	}

	if req == nil {
		// Timeout with an empty queue
		return nil
	}

	log := logger.WithGameID(w.log.With("worker_id", w.id), req.GameID.String())
	log.Info("Received request from queue",
		"request_id", req.RequestID,
		"turns", req.Turns,
	)

	locked, err := w.acquireGameLock(req.GameID)
	if err != nil {
		return fmt.Errorf("failed to acquire game lock: %w", err)
	}
	if !locked {
		// Another worker is stepping this game
		log.Info("Game already locked, re-queueing request", "request_id", req.RequestID)
		if err := w.queue.Enqueue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}
	defer w.releaseGameLock(req.GameID)

	return w.processRequest(req, log)
}

func (w *Worker) processRequest(req *queuePkg.RunRequest, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()
	go w.holdGameLock(ctx, req.GameID)

	res, err := w.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && w.ctx.Err() != nil {
			// Interrupted by shutdown. Put the request back for the next worker.
			log.Info("Run interrupted, re-queueing request",
				"request_id", req.RequestID,
				"played", res.Played,
			)
			req.Turns -= res.Played
			if req.Turns < 1 {
				return nil
			}
			if rqErr := w.queue.Requeue(context.WithoutCancel(w.ctx), req); rqErr != nil {
				return fmt.Errorf("failed to re-queue interrupted request: %w", rqErr)
			}
			return nil
		}
		return fmt.Errorf("failed to run game %s: %w", req.GameID, err)
	}

	log.Info("Run request processed successfully",
		"request_id", req.RequestID,
		"played", res.Played,
		"turn", res.Turn,
		"ended", res.Ended,
		"end_reason", res.EndReason,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return nil
}

func lockKey(gameID uuid.UUID) string {
	return fmt.Sprintf("game-lock:%s", gameID.String())
}

// acquireGameLock attempts to acquire a lock for a game
// Returns true if lock was acquired, false if already locked
func (w *Worker) acquireGameLock(gameID uuid.UUID) (bool, error) {
	result, err := w.redisClient.SetNX(w.ctx, lockKey(gameID), w.id, lockTTL).Result()
	if err != nil {
		return false, err
	}
	return result, nil
}

// holdGameLock extends the lock until ctx is done. Turns can outlast
// lockTTL when providers are slow.
func (w *Worker) holdGameLock(ctx context.Context, gameID uuid.UUID) {
	ticker := time.NewTicker(lockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := refreshScript.Run(ctx, w.redisClient, []string{lockKey(gameID)}, w.id, lockTTL.Milliseconds()).Err()
			if err != nil && ctx.Err() == nil {
				logger.WithError(logger.WithGameID(w.log, gameID.String()), err).Warn("Failed to refresh game lock")
			}
		}
	}
}

// releaseGameLock releases the lock for a game
func (w *Worker) releaseGameLock(gameID uuid.UUID) {
	ctx := context.WithoutCancel(w.ctx)
	if err := releaseScript.Run(ctx, w.redisClient, []string{lockKey(gameID)}, w.id).Err(); err != nil {
		logger.WithError(logger.WithGameID(w.log, gameID.String()), err).Error("Failed to release game lock")
	}
}
