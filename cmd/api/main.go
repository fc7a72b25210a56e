package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/internal/handlers"
	"github.com/jwebster45206/laissez-faire/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Laissez Faire API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"providers", cfg.ProviderNames(),
		"default_provider", cfg.DefaultProvider)

	if cfg.RedisURL == "" {
		log.Error("REDIS_URL is required for the API server")
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer initCancel()
	a, err := app.New(initCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Error closing app", "error", err)
		}
	}()

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{"storage": a.Store}, a.Judge.Providers(), log)
	mux.Handle("GET /health", healthHandler)

	handlers.NewScenarioHandler(log, a.Store).Register(mux)
	handlers.NewGamesHandler(a, a.Store, a.Moves, a.Runs, log).Register(mux)
	handlers.NewEventsHandler(a.Redis.Client(), log).Register(mux)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handlers.Logger(log, mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events stream stays open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
