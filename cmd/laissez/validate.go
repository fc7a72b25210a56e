package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/laissez-faire/internal/storage"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.json>...",
		Short: "Check scenario files against the schema and scenario rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if !validateFile(cmd.OutOrStdout(), path) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenario files failed validation", failed, len(args))
			}
			return nil
		},
	}
}

var scenarioFilename = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// checkFilename requires lowercase snake_case .json names so scenario files
// can be referenced by name from the CLI.
func checkFilename(path string) error {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return fmt.Errorf("scenario file must have .json extension: %s", base)
	}
	if !scenarioFilename.MatchString(strings.TrimSuffix(base, ".json")) {
		return fmt.Errorf("scenario filename '%s' must be lowercase snake_case (e.g., my_scenario.json)", base)
	}
	return nil
}

func validateFile(w io.Writer, path string) bool {
	fmt.Fprintf(w, "Validating %s...\n", path)

	if err := checkFilename(path); err != nil {
		fmt.Fprintf(w, "  - %v\n", err)
		return false
	}

	s, err := storage.LoadScenarioFile(path)
	if err != nil {
		var le *scenario.LoadError
		if errors.As(err, &le) && len(le.Problems) > 0 {
			fmt.Fprintf(w, "Errors (%d):\n", len(le.Problems))
			for _, p := range le.Problems {
				fmt.Fprintf(w, "  - %s\n", p)
			}
			return false
		}
		fmt.Fprintf(w, "  - %v\n", err)
		return false
	}

	fmt.Fprintf(w, "%q is valid: %d players, %d entities, %d scoring rules\n",
		s.Name, len(s.Players), len(s.Entities), len(s.ScoringParameters))
	return true
}
