package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

const (
	gameKeyPrefix = "game:"
	gamesIndexKey = "games"
)

// RedisStorage implements the Storage interface using Redis for saved games
// and the filesystem for scenario templates.
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
	ttl     time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a storage on an existing client. A zero ttl keeps
// saved games forever.
func NewRedisStorage(client *redis.Client, dataDir string, ttl time.Duration, logger *slog.Logger) *RedisStorage {
	if dataDir == "" {
		dataDir = "./data"
	}

	return &RedisStorage{
		client:  client,
		logger:  logger,
		dataDir: dataDir,
		ttl:     ttl,
	}
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

func gameKey(id uuid.UUID) string {
	return gameKeyPrefix + id.String()
}

// Saved game operations (Redis-backed)

func (r *RedisStorage) SaveGame(ctx context.Context, snap *state.Snapshot) error {
	snap.SavedAt = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("Failed to marshal snapshot", "game_id", snap.ID, "error", err)
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, gameKey(snap.ID), data, r.ttl)
	pipe.SAdd(ctx, gamesIndexKey, snap.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save game", "game_id", snap.ID, "error", err)
		return fmt.Errorf("failed to save game: %w", err)
	}

	r.logger.Debug("Game saved", "game_id", snap.ID, "turn", snap.Turn, "bytes", len(data))
	return nil
}

func (r *RedisStorage) LoadGame(ctx context.Context, id uuid.UUID) (*state.Snapshot, error) {
	data, err := r.client.Get(ctx, gameKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Warn("Game not found", "game_id", id)
			return nil, nil
		}
		r.logger.Error("Failed to load game", "game_id", id, "error", err)
		return nil, fmt.Errorf("failed to load game: %w", err)
	}

	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Error("Failed to unmarshal snapshot", "game_id", id, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrSnapshotCorrupt, id, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrSnapshotCorrupt, id, err)
	}
	return &snap, nil
}

func (r *RedisStorage) DeleteGame(ctx context.Context, id uuid.UUID) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, gameKey(id))
	pipe.SRem(ctx, gamesIndexKey, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete game", "game_id", id, "error", err)
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}

// ListGames returns saved game ids, dropping index entries whose save has
// expired.
func (r *RedisStorage) ListGames(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, gamesIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}

	var ids []uuid.UUID
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			r.logger.Warn("Ignoring malformed game id in index", "member", m)
			continue
		}
		n, err := r.client.Exists(ctx, gameKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check game %s: %w", id, err)
		}
		if n == 0 {
			_ = r.client.SRem(ctx, gamesIndexKey, m).Err()
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
