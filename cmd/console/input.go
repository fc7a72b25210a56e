package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// humanPromptMsg asks the UI for a human player's move. The UI answers on
// reply exactly once.
type humanPromptMsg struct {
	player scenario.PlayerSpec
	prompt prompts.Prompt
	reply  chan<- string
}

// consoleInput is the engine's human input source. HumanMove blocks until
// the UI replies or the turn is cancelled.
type consoleInput struct {
	mu      sync.Mutex
	program interface{ Send(tea.Msg) }
	turnMu  sync.Mutex // one prompt on screen at a time
}

func newConsoleInput() *consoleInput {
	return &consoleInput{}
}

func (c *consoleInput) attach(p interface{ Send(tea.Msg) }) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.program = p
}

func (c *consoleInput) HumanMove(ctx context.Context, player scenario.PlayerSpec, prompt prompts.Prompt) (string, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.Lock()
	p := c.program
	c.mu.Unlock()
	if p == nil {
		return "", errNoConsole
	}

	reply := make(chan string, 1)
	p.Send(humanPromptMsg{player: player, prompt: prompt, reply: reply})

	select {
	case text := <-reply:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
