package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

// DefaultOthersLimit is how many attributes of each other participant a
// player sees.
const DefaultOthersLimit = 2

// Builder constructs an AI player's prompt using a fluent interface.
type Builder struct {
	scenario    *scenario.Scenario
	entities    scenario.Entities
	player      *scenario.PlayerSpec
	turn        int
	othersLimit int
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		othersLimit: DefaultOthersLimit,
	}
}

// WithScenario sets the scenario whose parameters and description are shown.
func (b *Builder) WithScenario(s *scenario.Scenario) *Builder {
	b.scenario = s
	return b
}

// WithEntities sets the current entity snapshot.
func (b *Builder) WithEntities(es scenario.Entities) *Builder {
	b.entities = es
	return b
}

// WithPlayer sets the player the prompt is for.
func (b *Builder) WithPlayer(p scenario.PlayerSpec) *Builder {
	b.player = &p
	return b
}

// WithTurn sets the turn being played (1-based).
func (b *Builder) WithTurn(turn int) *Builder {
	b.turn = turn
	return b
}

// WithOthersLimit sets how many attributes of other participants are shown.
// Zero or less shows all of them.
func (b *Builder) WithOthersLimit(limit int) *Builder {
	b.othersLimit = limit
	return b
}

// Build constructs the system and user messages.
func (b *Builder) Build() (Prompt, error) {
	if b.scenario == nil {
		return Prompt{}, fmt.Errorf("scenario is required")
	}
	if b.player == nil {
		return Prompt{}, fmt.Errorf("player is required")
	}
	if b.entities == nil {
		b.entities = b.scenario.Entities
	}

	return Prompt{
		System: b.systemPrompt(),
		User:   b.userPrompt(),
	}, nil
}

func (b *Builder) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(BasePlayerSystemPrompt)
	if b.scenario.Description != "" {
		sb.WriteString("\n\n### Scenario\n")
		sb.WriteString(b.scenario.Description)
	}
	fmt.Fprintf(&sb, "\n\n### You control\n%s", b.player.Controls)
	if b.player.SystemPrompt != "" {
		sb.WriteString("\n\n### Your role\n")
		sb.WriteString(b.player.SystemPrompt)
	}
	return sb.String()
}

func (b *Builder) userPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "It is now Turn %d.\n", b.turn)
	if date := b.scenario.TurnDate(b.turn); date != "" {
		fmt.Fprintf(&sb, "The date is %s.\n", date)
	}

	if len(b.scenario.Parameters) > 0 {
		sb.WriteString("\nGlobal Context:\n")
		for _, k := range b.scenario.ParameterKeys() {
			fmt.Fprintf(&sb, "  - %s: %s\n", Label(k), b.scenario.Parameters[k])
		}
	}

	if own, ok := b.entities[b.player.Controls]; ok && len(own) > 0 {
		sb.WriteString("\nYour Current Status:\n")
		writeAttributes(&sb, own, "  ", 0)
	}

	var others []string
	for _, k := range b.entities.Keys() {
		if k != b.player.Controls {
			others = append(others, k)
		}
	}
	if len(others) > 0 {
		sb.WriteString("\nStatus of Other Participants:\n")
		for _, k := range others {
			fmt.Fprintf(&sb, "  - %s:\n", k)
			writeAttributes(&sb, b.entities[k], "    ", b.othersLimit)
		}
	}

	sb.WriteString("\n" + NextMovePrompt)
	return sb.String()
}

// PlayerPrompt is a convenience for the common case.
func PlayerPrompt(s *scenario.Scenario, es scenario.Entities, p scenario.PlayerSpec, turn int) (Prompt, error) {
	return New().
		WithScenario(s).
		WithEntities(es).
		WithPlayer(p).
		WithTurn(turn).
		Build()
}
