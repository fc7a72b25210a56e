package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Log to a file so log lines do not tear the terminal UI.
	logPath := getEnv("CONSOLE_LOG", "laissez-console.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logFile.Close() }()
	log := logger.SetupWriter(cfg, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	input := newConsoleInput()
	a.Human = input

	var resume uuid.UUID
	if len(os.Args) > 1 {
		if resume, err = uuid.Parse(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid game id %q\n", os.Args[1])
			os.Exit(1)
		}
	}

	ui := NewConsoleUI(ctx, a, resume)
	p := tea.NewProgram(ui,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	input.attach(p)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
