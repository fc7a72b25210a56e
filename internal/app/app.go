// Package app assembles a runnable game from configuration: providers,
// the judgment client, persistence, the move queue and turn observers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/internal/services"
	"github.com/jwebster45206/laissez-faire/internal/services/events"
	"github.com/jwebster45206/laissez-faire/internal/services/queue"
	"github.com/jwebster45206/laissez-faire/internal/storage"
	"github.com/jwebster45206/laissez-faire/internal/storage/auditlog"
	"github.com/jwebster45206/laissez-faire/internal/storage/sqlite"
	"github.com/jwebster45206/laissez-faire/pkg/engine"
	"github.com/jwebster45206/laissez-faire/pkg/judgment"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	pkgstorage "github.com/jwebster45206/laissez-faire/pkg/storage"
)

// ErrNoStorage is returned for operations that need Redis when no
// redis_url is configured.
var ErrNoStorage = errors.New("no game storage configured")

// App holds everything a game needs. Redis-backed parts are nil when
// RedisURL is empty; History and Audit are nil when their paths are.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *services.Registry
	Judge    *judgment.Client

	Redis  *services.RedisService
	Store  pkgstorage.Storage
	Moves  *queue.MoveQueue
	Runs   *queue.RunQueue
	Input  *queue.RemoteInput
	Events *events.Broadcaster

	History *sqlite.TurnStore
	Audit   *auditlog.Writer

	// Human overrides the Redis move queue as the source of human moves.
	Human engine.HumanInput

	closers []func() error
}

// New builds an App. Partially built resources are released on error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	reg, err := services.BuildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = reg
	a.closers = append(a.closers, reg.Close)

	a.Judge = judgment.NewClient(reg.Providers(), judgment.Config{
		DefaultProvider: cfg.DefaultProvider,
		MaxAttempts:     cfg.Engine.MaxAttempts,
		CallTimeout:     cfg.Engine.CallTimeout,
		RetryBase:       cfg.Engine.RetryBase,
	}, logger)
	logger.Info("Judgment client ready",
		"providers", a.Judge.Providers(),
		"default_provider", cfg.DefaultProvider,
		"scorer_provider", cfg.ScorerProvider)

	if cfg.RedisURL != "" {
		if err := a.openRedis(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	if cfg.HistoryDSN != "" {
		ts, err := sqlite.Open(ctx, cfg.HistoryDSN)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.History = ts
		a.closers = append(a.closers, ts.Close)
		logger.Info("Turn history index opened", "dsn", cfg.HistoryDSN)
	}

	if cfg.AuditDir != "" {
		a.Audit = auditlog.NewWriter(cfg.AuditDir)
		logger.Info("Audit log enabled", "dir", cfg.AuditDir)
	}

	return a, nil
}

func (a *App) openRedis(ctx context.Context) error {
	rs, err := services.NewRedisService(a.Config.RedisURL, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rs.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.Redis = rs

	a.Store = storage.NewRedisStorage(rs.Client(), a.Config.DataDir, a.Config.SaveTTL, a.Logger)
	qc := queue.NewClientFromRedis(rs.Client(), a.Logger)
	a.Moves = queue.NewMoveQueue(qc)
	a.Runs = queue.NewRunQueue(qc)
	a.Input = queue.NewRemoteInput(a.Moves, a.Logger)
	a.Events = events.NewBroadcaster(rs.Client(), a.Logger)
	a.Logger.Info("Redis storage, queues and events ready")
	return nil
}

// Observers returns the turn observers for the configured backends.
func (a *App) Observers() []engine.Observer {
	var obs []engine.Observer
	if a.Store != nil {
		obs = append(obs, storage.NewAutosaver(a.Store, a.Logger))
	}
	if a.History != nil {
		obs = append(obs, a.History)
	}
	if a.Audit != nil {
		obs = append(obs, a.Audit)
	}
	if a.Events != nil {
		obs = append(obs, a.Events)
	}
	return obs
}

func (a *App) deps() engine.Deps {
	d := engine.Deps{
		Judge:     a.Judge,
		Observers: a.Observers(),
		Logger:    a.Logger,
	}
	switch {
	case a.Human != nil:
		d.Human = a.Human
	case a.Input != nil:
		d.Human = a.Input
	}
	return d
}

func (a *App) options(maxTurns int) engine.Options {
	if maxTurns <= 0 {
		maxTurns = a.Config.Engine.MaxTurns
	}
	return engine.Options{
		MaxTurns:        maxTurns,
		Concurrency:     a.Config.Engine.Concurrency,
		DefaultProvider: a.Config.DefaultProvider,
		ScorerProvider:  a.Config.ScorerProvider,
	}
}

// NewGame starts a game. maxTurns overrides the configured default when
// positive; a scenario's own max_turns still wins.
func (a *App) NewGame(ctx context.Context, scn *scenario.Scenario, maxTurns int) (*engine.Engine, error) {
	eng, err := engine.New(scn, a.deps(), a.options(maxTurns))
	if err != nil {
		return nil, err
	}
	a.bind(eng)

	if a.Events != nil {
		if err := a.Events.PublishGameStarted(ctx, eng.ID(), scn.Name, eng.MaxTurns()); err != nil {
			a.Logger.Warn("Failed to publish game start", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.SaveGame(ctx, eng.Snapshot()); err != nil {
			a.Logger.Warn("Failed to save new game", "game_id", eng.ID(), "error", err)
		}
	}
	return eng, nil
}

// ResumeGame restores a saved game. A missing game is an error.
func (a *App) ResumeGame(ctx context.Context, id uuid.UUID, maxTurns int) (*engine.Engine, error) {
	if a.Store == nil {
		return nil, ErrNoStorage
	}
	snap, err := a.Store.LoadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("game %s not found", id)
	}
	eng, err := engine.Restore(snap, a.deps(), a.options(maxTurns))
	if err != nil {
		return nil, err
	}
	a.bind(eng)
	return eng, nil
}

func (a *App) bind(eng *engine.Engine) {
	if a.Input != nil {
		a.Input.Bind(eng.ID())
	}
}

// Scenarios maps scenario names to file names under <data_dir>/scenarios.
func (a *App) Scenarios(ctx context.Context) (map[string]string, error) {
	if a.Store != nil {
		return a.Store.ListScenarios(ctx)
	}
	return storage.ScanScenarios(filepath.Join(a.Config.DataDir, "scenarios"), a.Logger)
}

// LoadScenario accepts a path to a scenario file, a file name under
// <data_dir>/scenarios, or a scenario name listed there.
func (a *App) LoadScenario(ctx context.Context, ref string) (*scenario.Scenario, error) {
	if _, err := os.Stat(ref); err == nil {
		return storage.LoadScenarioFile(ref)
	}

	dir := filepath.Join(a.Config.DataDir, "scenarios")
	path := filepath.Join(dir, filepath.Base(ref))
	if filepath.Ext(path) != ".json" {
		path += ".json"
	}
	if _, err := os.Stat(path); err == nil {
		return storage.LoadScenarioFile(path)
	}

	list, err := a.Scenarios(ctx)
	if err != nil {
		return nil, err
	}
	if file, ok := list[ref]; ok {
		return storage.LoadScenarioFile(filepath.Join(dir, file))
	}
	return nil, fmt.Errorf("%w: %s", pkgstorage.ErrScenarioNotFound, ref)
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
