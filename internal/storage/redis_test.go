package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

const testDataDir = "../../data"

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewRedisStorage(rdb, testDataDir, ttl, logger)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func coldWarSnapshot(t *testing.T, store *RedisStorage) *state.Snapshot {
	t.Helper()
	scn, err := store.GetScenario(context.Background(), "cold_war.json")
	if err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	return state.New(scn).Snapshot()
}

func TestRedisStorage_SaveAndLoadGame(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	snap := coldWarSnapshot(t, store)
	if err := store.SaveGame(ctx, snap); err != nil {
		t.Fatalf("Failed to save game: %v", err)
	}
	if snap.SavedAt.IsZero() {
		t.Error("Expected SavedAt to be set")
	}
	if ttl := mr.TTL(gameKey(snap.ID)); ttl != time.Hour {
		t.Errorf("Expected TTL 1h, got %v", ttl)
	}

	loaded, err := store.LoadGame(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Failed to load game: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected a snapshot")
	}
	if loaded.ID != snap.ID || loaded.Scenario.Name != "Cold War" {
		t.Errorf("Unexpected snapshot: id=%v scenario=%q", loaded.ID, loaded.Scenario.Name)
	}
	if v, _ := loaded.Entities.Get("USA", "influence"); !v.Equal(scenario.NewNumber(50)) {
		t.Errorf("Expected USA influence 50, got %v", v)
	}
	if len(loaded.Scenario.ScoringParameters) != 3 {
		t.Errorf("Expected scoring rules to survive the round trip, got %d", len(loaded.Scenario.ScoringParameters))
	}
	if _, err := loaded.WorldState(); err != nil {
		t.Errorf("Expected restorable snapshot, got %v", err)
	}

	ids, err := store.ListGames(ctx)
	if err != nil || len(ids) != 1 || ids[0] != snap.ID {
		t.Errorf("Expected one listed game, got %v (%v)", ids, err)
	}

	if err := store.DeleteGame(ctx, snap.ID); err != nil {
		t.Fatalf("Failed to delete game: %v", err)
	}
	loaded, err = store.LoadGame(ctx, snap.ID)
	if err != nil || loaded != nil {
		t.Errorf("Expected nil, nil after delete, got %v, %v", loaded, err)
	}
}

func TestRedisStorage_LoadMissingGame(t *testing.T) {
	store, _ := setupTestRedis(t, 0)

	loaded, err := store.LoadGame(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Expected no error for missing game, got %v", err)
	}
	if loaded != nil {
		t.Error("Expected nil for missing game")
	}
}

func TestRedisStorage_CorruptSnapshot(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"missing scenario", `{"id":"6f1c1a7e-1111-4c1a-9c1a-1a1a1a1a1a1a","turn":0,"entities":{}}`},
		{"history mismatch", `{"id":"6f1c1a7e-1111-4c1a-9c1a-1a1a1a1a1a1a","scenario":{"name":"x"},"turn":2,"entities":{},"history":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr := setupTestRedis(t, 0)
			id := uuid.MustParse("6f1c1a7e-1111-4c1a-9c1a-1a1a1a1a1a1a")
			if err := mr.Set(gameKey(id), tt.data); err != nil {
				t.Fatal(err)
			}

			_, err := store.LoadGame(context.Background(), id)
			if !errors.Is(err, storage.ErrSnapshotCorrupt) {
				t.Errorf("Expected ErrSnapshotCorrupt, got %v", err)
			}
		})
	}
}

func TestRedisStorage_ListGamesDropsExpired(t *testing.T) {
	store, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	first := coldWarSnapshot(t, store)
	if err := store.SaveGame(ctx, first); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	second := coldWarSnapshot(t, store)
	if err := store.SaveGame(ctx, second); err != nil {
		t.Fatal(err)
	}

	ids, err := store.ListGames(ctx)
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != second.ID {
		t.Errorf("Expected only the unexpired game, got %v", ids)
	}
	if member, _ := mr.IsMember(gamesIndexKey, first.ID.String()); member {
		t.Error("Expected expired game to be pruned from the index")
	}
}
