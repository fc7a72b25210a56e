package storage

import (
	"context"
	"log/slog"

	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/storage"
)

// Autosaver is an engine observer that saves the game after every
// committed turn.
type Autosaver struct {
	store  storage.Storage
	logger *slog.Logger
}

func NewAutosaver(store storage.Storage, logger *slog.Logger) *Autosaver {
	return &Autosaver{store: store, logger: logger}
}

func (a *Autosaver) TurnCommitted(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
	if err := a.store.SaveGame(ctx, snap); err != nil {
		return err
	}
	a.logger.Debug("Autosaved game", "game_id", snap.ID, "turn", rec.Turn, "ended", snap.Ended)
	return nil
}
