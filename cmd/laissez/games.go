package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/internal/storage"
)

func gamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List saved games and available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if a.Store == nil {
				return app.ErrNoStorage
			}

			scenarios, err := a.Store.ListScenarios(ctx)
			if err != nil {
				return err
			}
			cmd.Println("Scenarios:")
			for _, name := range storage.SortedScenarioNames(scenarios) {
				cmd.Printf("  %s (%s)\n", name, scenarios[name])
			}

			ids, err := a.Store.ListGames(ctx)
			if err != nil {
				return err
			}
			cmd.Println("Saved games:")
			if len(ids) == 0 {
				cmd.Println("  none")
			}
			for _, id := range ids {
				snap, err := a.Store.LoadGame(ctx, id)
				if err != nil {
					cmd.Printf("  %s  (unreadable: %v)\n", id, err)
					continue
				}
				if snap == nil {
					continue
				}
				status := "in progress"
				if snap.Ended {
					status = "ended: " + snap.EndReason
				}
				cmd.Printf("  %s  %s  turn %d  %s\n", id, snap.Scenario.Name, snap.Turn, status)
			}
			return nil
		},
	}
}
