package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/giantswarm/llm-gauge/internal/record"
)

func newReportCmd() *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "report <record.json>",
		Short: "Print the results of a saved test record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := record.Load(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if transcript {
				_, _ = fmt.Fprint(w, rec.Transcript())
				_, _ = fmt.Fprintln(w, "---")
			}
			_, _ = fmt.Fprintf(w, "Recorded: %s\n", rec.RunTimestamp.Format("2006-01-02 15:04:05 MST"))
			_, _ = fmt.Fprint(w, rec.Summary())
			for _, name := range slices.Sorted(maps.Keys(rec.CacheStats)) {
				stats := rec.CacheStats[name]
				_, _ = fmt.Fprintf(w, "Cache %s: %d hits, %d misses\n", name, stats.Hits, stats.Misses)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&transcript, "transcript", false, "Print every question and answer")

	return cmd
}
