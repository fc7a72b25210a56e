package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/laissez-faire/pkg/engine"
	"github.com/jwebster45206/laissez-faire/pkg/state"
	"github.com/jwebster45206/laissez-faire/pkg/textfilter"
)

func playCmd() *cobra.Command {
	var (
		turns    int
		maxTurns int
		resume   string
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "play [scenario]",
		Short: "Play a scenario headless, printing the scorecard after each turn",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume == "" && len(args) == 0 {
				return fmt.Errorf("a scenario or --resume is required")
			}
			ref := ""
			if len(args) > 0 {
				ref = args[0]
			}
			return runPlay(cmd, ref, resume, turns, maxTurns, raw)
		},
	}
	cmd.Flags().IntVar(&turns, "turns", 0, "Turns to play in this session (0 plays to the end)")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Turn ceiling when the scenario sets none")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume a saved game by id")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print scorecard markup as-is")
	return cmd
}

func runPlay(cmd *cobra.Command, ref, resume string, turns, maxTurns int, raw bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var eng *engine.Engine
	if resume != "" {
		id, err := parseGameID(resume)
		if err != nil {
			return err
		}
		if eng, err = a.ResumeGame(ctx, id, maxTurns); err != nil {
			return err
		}
	} else {
		scn, err := a.LoadScenario(ctx, ref)
		if err != nil {
			return err
		}
		if eng, err = a.NewGame(ctx, scn, maxTurns); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  game %s  turn %d of %d\n\n", eng.Scenario().Name, eng.ID(), eng.Turn(), eng.MaxTurns())

	for played := 0; turns <= 0 || played < turns; played++ {
		rec, err := eng.Step(ctx)
		if errors.Is(err, engine.ErrGameEnded) {
			break
		}
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(out, "Interrupted; the turn in progress was discarded.")
			return nil
		}
		if err != nil {
			return err
		}
		printTurn(out, rec)
		printScorecard(out, eng, raw)
	}

	if ended, reason := eng.Ended(); ended {
		fmt.Fprintf(out, "Game over after turn %d: %s\n", eng.Turn(), reason)
	} else {
		fmt.Fprintf(out, "Paused at turn %d. Resume with: laissez play --resume %s\n", eng.Turn(), eng.ID())
	}
	return nil
}

func printTurn(w io.Writer, rec state.TurnRecord) {
	fmt.Fprintf(w, "== Turn %d (%s) ==\n", rec.Turn, rec.Date)
	for _, m := range rec.Moves {
		if m.Failed {
			fmt.Fprintf(w, "  %s: %s [failed: %s]\n", m.Player, m.Text, m.Error)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", m.Player, m.Text)
	}
	for _, s := range rec.Scores {
		if s.Failed {
			fmt.Fprintf(w, "  ! %s.%s not scored: %s\n", s.Entity, s.Rule, s.Error)
		}
	}
	fmt.Fprintln(w)
}

func printScorecard(w io.Writer, eng *engine.Engine, raw bool) {
	card, err := eng.Scorecard()
	if err != nil {
		fmt.Fprintf(w, "(scorecard unavailable: %v)\n\n", err)
		return
	}
	text := card.String()
	if !raw {
		text = textfilter.Strip(text)
	}
	fmt.Fprintf(w, "%s\n\n", text)
}
