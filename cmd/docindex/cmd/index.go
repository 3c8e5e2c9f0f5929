package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the document tree",
		Long: `Run a diff-aware index pass over the configured document tree.

Only documents whose content hash changed since the last pass are
re-embedded; unchanged documents cost one hash comparison each.

Examples:
  docindex index
  docindex index --force
  docindex index --docs ./knowledge-base`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.indexer.IndexAll(cmd.Context(), force)
			if err != nil {
				return fmt.Errorf("index pass failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d files (%d changed, %d skipped) in %s\n",
				result.FilesIndexed, result.FilesChanged, result.FilesSkipped,
				result.Duration.Round(timeRounding))
			fmt.Fprintf(out, "Chunks: %d total, %d upserted, %d removed\n",
				result.ChunksTotal, result.ChunksUpserted, result.ChunksRemoved)
			for _, path := range result.QualitySkipped {
				fmt.Fprintf(out, "Skipped (quality): %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-embed every document regardless of content hashes")
	return cmd
}
