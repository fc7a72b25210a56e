package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var entity, attribute string
	cmd := &cobra.Command{
		Use:   "history <game-id>",
		Short: "Show committed turns, or one attribute's score history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (entity == "") != (attribute == "") {
				return fmt.Errorf("--entity and --attribute must be given together")
			}
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
			if a.History == nil {
				return fmt.Errorf("no history_dsn configured")
			}

			if entity != "" {
				points, err := a.History.ScoreHistory(ctx, id, entity, attribute)
				if err != nil {
					return err
				}
				if len(points) == 0 {
					cmd.Printf("No history for %s.%s in game %s.\n", entity, attribute, id)
					return nil
				}
				cmd.Printf("%s.%s\n", entity, attribute)
				for _, p := range points {
					if p.Failed {
						cmd.Printf("  [%d] %s  %s (not scored: %s)\n", p.Turn, p.Date, p.Previous, p.Error)
						continue
					}
					cmd.Printf("  [%d] %s  %s -> %s (judgment %s)\n", p.Turn, p.Date, p.Previous, p.Committed, p.Judgment)
				}
				return nil
			}

			rows, err := a.History.Turns(ctx, id)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				cmd.Printf("No turns recorded for game %s.\n", id)
				return nil
			}
			cmd.Printf("%s (%s)\n", rows[0].Scenario, id)
			for _, r := range rows {
				players := make([]string, 0, len(r.Moves))
				for _, m := range r.Moves {
					players = append(players, m.Player)
				}
				line := fmt.Sprintf("  [%d] %s  moves: %s", r.Turn, r.Date, strings.Join(players, ", "))
				if r.FailedScores > 0 {
					line += fmt.Sprintf("  failed scores: %d", r.FailedScores)
				}
				if r.Ended {
					line += "  ended: " + r.EndReason
				}
				cmd.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Entity key")
	cmd.Flags().StringVar(&attribute, "attribute", "", "Attribute name")
	return cmd
}
