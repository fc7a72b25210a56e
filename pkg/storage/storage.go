package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// ErrSnapshotCorrupt is returned when a saved game cannot be decoded or
// fails validation. Resuming such a game is not possible.
var ErrSnapshotCorrupt = errors.New("snapshot corrupt")

// ErrScenarioNotFound is returned by GetScenario for unknown files.
var ErrScenarioNotFound = errors.New("scenario not found")

// Storage defines a unified interface for all storage operations.
// Saved games live in Redis; scenario templates are read from the filesystem.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Saved games. LoadGame returns nil, nil when no game has the id.
	SaveGame(ctx context.Context, snap *state.Snapshot) error
	LoadGame(ctx context.Context, id uuid.UUID) (*state.Snapshot, error)
	DeleteGame(ctx context.Context, id uuid.UUID) error
	ListGames(ctx context.Context) ([]uuid.UUID, error)

	// Scenario templates, keyed by file name
	ListScenarios(ctx context.Context) (map[string]string, error)
	GetScenario(ctx context.Context, filename string) (*scenario.Scenario, error)
}
