package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-gauge/internal/testsuite"
)

func newListCmd() *cobra.Command {
	var testsDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := testsuite.List(testsDir)
			if err != nil {
				return fmt.Errorf("failed to list tests: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(names) == 0 {
				_, _ = fmt.Fprintln(w, "No tests found.")
				return nil
			}

			_, _ = fmt.Fprintf(w, "Available tests:\n\n")
			for _, name := range names {
				def, _, err := testsuite.LoadDefinition(name, testsDir)
				if err != nil {
					_, _ = fmt.Fprintf(w, "  - %s (error loading: %v)\n\n", name, err)
					continue
				}
				keys := make([]string, 0, len(def.Annotators))
				for _, a := range def.Annotators {
					keys = append(keys, a.Key+" ("+a.Type+")")
				}
				_, _ = fmt.Fprintf(w, "  - %s\n", name)
				_, _ = fmt.Fprintf(w, "    Name: %s\n", def.Name)
				_, _ = fmt.Fprintf(w, "    Description: %s\n", def.Description)
				_, _ = fmt.Fprintf(w, "    Version: %s\n", def.Version)
				_, _ = fmt.Fprintf(w, "    Annotators: %s\n\n", strings.Join(keys, ", "))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&testsDir, "tests-dir", "", "External tests directory")

	return cmd
}
