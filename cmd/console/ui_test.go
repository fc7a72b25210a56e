package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

func TestFormatSpeech(t *testing.T) {
	tests := []struct {
		name    string
		speaker string
		text    string
		want    []string
	}{
		{"adds speaker", "Washington", "We send aid to Greece.", []string{"Washington:", "We send aid to Greece."}},
		{"keeps existing label", "Washington", "Truman: We send aid.", []string{"Truman:", "We send aid."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatSpeech(tt.speaker, tt.text, 80, speakerStyle)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatSpeech() = %q, missing %q", got, w)
				}
			}
			if strings.Count(got, ":") != 1 {
				t.Errorf("Expected a single speaker label, got %q", got)
			}
		})
	}
}

func TestFormatTurn(t *testing.T) {
	rec := state.TurnRecord{
		Turn: 2,
		Date: "1947-05-11",
		Moves: []state.Move{
			{Player: "Washington", Text: "Marshall Plan"},
			{Player: "Moscow", Text: "(no action)", Failed: true, Error: "provider unavailable"},
		},
		Scores: []state.ScoreRecord{
			{Rule: "influence", Entity: "USSR", Failed: true, Error: "timeout"},
		},
	}
	got := formatTurn(rec, 80)
	for _, w := range []string{"Turn 2", "1947-05-11", "Marshall Plan", "move failed: provider unavailable", "Not scored: USSR.influence"} {
		if !strings.Contains(got, w) {
			t.Errorf("formatTurn() missing %q:\n%s", w, got)
		}
	}
}

func TestRenderMarkup(t *testing.T) {
	got := renderMarkup("[bold]1947[/bold] tension [red]high[/]")
	if strings.Contains(got, "[bold]") || strings.Contains(got, "[/]") {
		t.Errorf("Markup tags leaked: %q", got)
	}
	for _, w := range []string{"1947", "tension", "high"} {
		if !strings.Contains(got, w) {
			t.Errorf("renderMarkup() missing %q: %q", w, got)
		}
	}
}

type fakeProgram struct {
	mu   sync.Mutex
	msgs []tea.Msg
	sent chan tea.Msg
}

func (f *fakeProgram) Send(msg tea.Msg) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	f.sent <- msg
}

func TestConsoleInput_HumanMove(t *testing.T) {
	player := scenario.PlayerSpec{Name: "Washington", Type: scenario.PlayerHuman, Controls: "USA"}
	prompt := prompts.Prompt{User: "What now?"}

	t.Run("not attached", func(t *testing.T) {
		in := newConsoleInput()
		if _, err := in.HumanMove(context.Background(), player, prompt); !errors.Is(err, errNoConsole) {
			t.Errorf("Expected errNoConsole, got %v", err)
		}
	})

	t.Run("reply", func(t *testing.T) {
		in := newConsoleInput()
		fp := &fakeProgram{sent: make(chan tea.Msg, 1)}
		in.attach(fp)

		go func() {
			msg := (<-fp.sent).(humanPromptMsg)
			msg.reply <- "Airlift to Berlin"
		}()

		got, err := in.HumanMove(context.Background(), player, prompt)
		if err != nil {
			t.Fatalf("HumanMove failed: %v", err)
		}
		if got != "Airlift to Berlin" {
			t.Errorf("Expected reply text, got %q", got)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		in := newConsoleInput()
		fp := &fakeProgram{sent: make(chan tea.Msg, 1)}
		in.attach(fp)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := in.HumanMove(ctx, player, prompt); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline error, got %v", err)
		}
	})
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := &config.Config{
		DataDir:         "../../data",
		DefaultProvider: "mock",
		ScorerProvider:  "mock",
		Providers:       map[string]config.ProviderConfig{"mock": {Kind: config.KindMock}},
		Engine: config.EngineConfig{
			MaxTurns:         3,
			Concurrency:      2,
			MaxAttempts:      1,
			CallTimeout:      5 * time.Second,
			StepThroughTurns: true,
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestConsoleUI_StepThrough(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	scn, err := a.LoadScenario(ctx, "cold_war")
	if err != nil {
		t.Fatal(err)
	}
	eng, err := a.NewGame(ctx, scn, 0)
	if err != nil {
		t.Fatal(err)
	}

	var model tea.Model = NewConsoleUI(ctx, a, uuid.Nil)
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(gameReadyMsg{eng: eng})

	ui := model.(ConsoleUI)
	if ui.showScenarioModal {
		t.Fatal("Expected scenario modal to close")
	}
	if !strings.Contains(ui.status, "turn 1") {
		t.Errorf("Expected prompt for turn 1, got %q", ui.status)
	}

	rec, err := eng.Step(ctx)
	if err != nil {
		t.Fatal(err)
	}
	model, _ = model.Update(turnMsg{rec: rec})
	ui = model.(ConsoleUI)

	if len(ui.turns) != 1 {
		t.Fatalf("Expected 1 turn in transcript, got %d", len(ui.turns))
	}
	if !strings.Contains(ui.status, "turn 2") {
		t.Errorf("Expected prompt for turn 2, got %q", ui.status)
	}
	if ui.scorecard == "" {
		t.Error("Expected scorecard after the turn")
	}
	if !strings.Contains(ui.View(), "SCORECARD") {
		t.Error("Expected scorecard panel in view")
	}
}

func TestConsoleUI_HumanPrompt(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	var model tea.Model = NewConsoleUI(ctx, a, uuid.Nil)
	reply := make(chan string, 1)
	model, _ = model.Update(humanPromptMsg{
		player: scenario.PlayerSpec{Name: "Moscow", Controls: "USSR"},
		prompt: prompts.Prompt{User: "Your move"},
		reply:  reply,
	})
	ui := model.(ConsoleUI)
	if ui.pending == nil {
		t.Fatal("Expected a pending prompt")
	}

	ui.textarea.SetValue("Blockade Berlin")
	model, _ = ui.handleEnter()
	ui = model.(ConsoleUI)

	select {
	case got := <-reply:
		if got != "Blockade Berlin" {
			t.Errorf("Expected move text, got %q", got)
		}
	default:
		t.Fatal("Expected a reply")
	}
	if ui.pending != nil {
		t.Error("Expected pending prompt to clear")
	}
}
