package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/laissez-faire/pkg/chat"
	"github.com/jwebster45206/laissez-faire/pkg/judgment"
	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// HumanInput supplies moves for human players. It may block until the
// player answers or ctx is done.
type HumanInput interface {
	HumanMove(ctx context.Context, player scenario.PlayerSpec, prompt prompts.Prompt) (string, error)
}

// HumanInputFunc adapts a function to HumanInput.
type HumanInputFunc func(ctx context.Context, player scenario.PlayerSpec, prompt prompts.Prompt) (string, error)

func (f HumanInputFunc) HumanMove(ctx context.Context, player scenario.PlayerSpec, prompt prompts.Prompt) (string, error) {
	return f(ctx, player, prompt)
}

// Observer is notified after each COMMIT with a snapshot of the new world.
// Errors are logged and never affect the game.
type Observer interface {
	TurnCommitted(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error

func (f ObserverFunc) TurnCommitted(ctx context.Context, snap *state.Snapshot, rec state.TurnRecord) error {
	return f(ctx, snap, rec)
}

// collectMoves gathers one move per player, in scenario player order. A
// player that fails contributes NoAction.
func (e *Engine) collectMoves(ctx context.Context, scn *scenario.Scenario, snapshot scenario.Entities, turn int) []state.Move {
	moves := make([]state.Move, len(scn.Players))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, p := range scn.Players {
		moves[i] = state.Move{Player: p.Name, Entity: p.Controls}
		g.Go(func() error {
			text, err := e.playerMove(ctx, scn, snapshot, p, turn)
			if err == nil {
				moves[i].Text = truncate(text, chat.MaxMessageLength)
				return nil
			}
			moves[i].Text = state.NoAction
			moves[i].Failed = true
			moves[i].Error = err.Error()
			if ctx.Err() == nil {
				e.logger.Warn("player move failed",
					"turn", turn,
					"player", p.Name,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return moves
}

func (e *Engine) playerMove(ctx context.Context, scn *scenario.Scenario, snapshot scenario.Entities, p scenario.PlayerSpec, turn int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt, err := prompts.PlayerPrompt(scn, snapshot, p, turn)
	if err != nil {
		return "", err
	}

	var text string
	if p.IsAI() {
		provider := p.Provider
		if provider == "" {
			provider = e.opts.DefaultProvider
		}
		e.logger.Debug("player prompt", "turn", turn, "player", p.Name, "prompt", prompt.User)
		res, err := e.judge.RequestJudgment(ctx, judgment.Request{
			Provider: provider,
			System:   prompt.System,
			Prompt:   prompt.User,
		})
		if err != nil {
			return "", err
		}
		text = res.Text
	} else {
		if e.human == nil {
			return "", ErrNoHumanInput
		}
		text, err = e.human.HumanMove(ctx, p, prompt)
		if err != nil {
			return "", fmt.Errorf("human move for %s: %w", p.Name, err)
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty move")
	}
	return text, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
