package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "laissez",
		Short:        "Turn-based LLM simulation driver",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $LAISSEZ_CONFIG or laissez.yaml)")
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(playCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(moveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(gamesCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
