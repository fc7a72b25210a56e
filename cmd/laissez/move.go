package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/laissez-faire/internal/app"
	"github.com/jwebster45206/laissez-faire/pkg/chat"
)

func moveCmd() *cobra.Command {
	var showPrompt bool
	cmd := &cobra.Command{
		Use:   "move <game-id> <player> [text...]",
		Short: "Submit a human player's move to a running game",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			player := args[1]
			text := strings.Join(args[2:], " ")

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if a.Moves == nil {
				return app.ErrNoStorage
			}

			if showPrompt || text == "" {
				prompt, err := a.Moves.Prompt(ctx, id, player)
				if err != nil {
					return err
				}
				if prompt == "" {
					cmd.Printf("No prompt waiting for %s.\n", player)
				} else {
					cmd.Println(prompt)
				}
				if text == "" {
					return nil
				}
			}

			req := &chat.MoveRequest{GameID: id, Player: player, Text: text}
			if err := a.Moves.Enqueue(ctx, req); err != nil {
				return err
			}
			cmd.Printf("Queued move for %s.\n", player)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the player's current prompt first")
	return cmd
}
