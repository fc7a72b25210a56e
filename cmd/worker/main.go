package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/internal/logger"
	"github.com/jwebster45206/laissez-faire/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Laissez Faire Worker",
		"environment", cfg.Environment,
		"providers", cfg.ProviderNames())

	if cfg.RedisURL == "" {
		log.Error("REDIS_URL is required for the worker")
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer initCancel()
	a, err := app.New(initCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	if err := a.Redis.WaitForConnection(initCtx); err != nil {
		log.Error("Redis is not available", "error", err)
		_ = a.Close()
		os.Exit(1)
	}

	w := worker.New(a.Runs, worker.NewGameRunner(a, log), a.Redis.Client(), log, os.Getenv("WORKER_ID"))

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- w.Start()
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	select {
	case <-quit:
		log.Info("Worker shutdown signal received")
		w.Stop()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("Worker error", "error", err)
		}
	}

	if err := a.Close(); err != nil {
		log.Error("Error closing app", "error", err)
	}
	log.Info("Worker exited")
}
