package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/pkg/queue"
)

func runCmd() *cobra.Command {
	var turns int
	cmd := &cobra.Command{
		Use:   "run <game-id>",
		Short: "Queue turns of a saved game for the workers",
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
			if a.Runs == nil {
				return app.ErrNoStorage
			}

			snap, err := a.Store.LoadGame(ctx, id)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("game %s not found", id)
			}
			if snap.Ended {
				return fmt.Errorf("game %s has ended: %s", id, snap.EndReason)
			}

			req := &queue.RunRequest{GameID: id, Turns: turns}
			if err := a.Runs.Enqueue(ctx, req); err != nil {
				return err
			}
			depth, _ := a.Runs.Depth(ctx)
			cmd.Printf("Queued %d turn(s) as request %s (%d waiting).\n", turns, req.RequestID, depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&turns, "turns", 1, "Turns to play")
	return cmd
}
