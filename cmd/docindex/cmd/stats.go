package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.indexer.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("collect stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			fmt.Fprintf(out, "Total chunks:    %d\n", stats.TotalChunks)
			fmt.Fprintf(out, "Keyword corpus:  %d\n", stats.KeywordChunks)
			fmt.Fprintf(out, "Embedding model: %s\n", stats.EmbeddingModel)
			fmt.Fprintf(out, "Chunk strategy:  %s\n", stats.ChunkStrategy)

			if len(stats.TypeDistribution) > 0 {
				fmt.Fprintln(out, "By type:")
				types := make([]string, 0, len(stats.TypeDistribution))
				for t := range stats.TypeDistribution {
					types = append(types, t)
				}
				sort.Strings(types)
				for _, t := range types {
					fmt.Fprintf(out, "  %-15s %d\n", t, stats.TypeDistribution[t])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
