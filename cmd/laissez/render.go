package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/scorecard"
	"github.com/jwebster45206/laissez-faire/pkg/textfilter"
)

func renderCmd() *cobra.Command {
	var (
		asJSON bool
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "render <game-id>",
		Short: "Render the scorecard of a saved game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if a.Store == nil {
				return app.ErrNoStorage
			}

			snap, err := a.Store.LoadGame(ctx, id)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("game %s not found", id)
			}

			spec := snap.Scenario.ScorecardSpec()
			if asJSON {
				spec = scenario.ScorecardSpec{RenderType: scenario.RenderJSON}
			}
			card, err := scorecard.Project(scorecard.View{
				Scenario: snap.Scenario,
				Entities: snap.Entities,
				Turn:     snap.Turn,
			}, spec)
			if err != nil {
				return err
			}

			text := card.String()
			if !raw {
				text = textfilter.Strip(text)
			}
			cmd.Println(text)
			if snap.Ended {
				cmd.Printf("\nGame over after turn %d: %s\n", snap.Turn, snap.EndReason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render as flat JSON regardless of the scenario's render type")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markup as-is")
	return cmd
}
