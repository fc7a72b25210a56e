package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/internal/logger"
)

var configPath string

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Setup(cfg)
	return app.New(ctx, cfg, log)
}

func parseGameID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid game id %q: %w", s, err)
	}
	return id, nil
}
