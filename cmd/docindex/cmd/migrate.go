package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbforge/docindex/internal/index"
)

func newMigrateCmd() *cobra.Command {
	var (
		provider string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the index to a new embedding model",
		Long: `Re-embed the corpus under a new embedding model. Searches keep
hitting the current index while a shadow index is built; when the
shadow is complete it is promoted atomically. Ctrl-C cancels the
migration and leaves the current index untouched.

Examples:
  docindex migrate --model mxbai-embed-large
  docindex migrate --provider openai --model text-embedding-3-small`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				return fmt.Errorf("--model is required")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			newCfg := app.cfg.Clone()
			if provider != "" {
				newCfg.Embeddings.Provider = provider
			}
			newCfg.Embeddings.Model = model
			if err := newCfg.Validate(); err != nil {
				return err
			}

			mig, err := app.migrator.Start(cmd.Context(), newCfg)
			if err != nil {
				return fmt.Errorf("start migration: %w", err)
			}
			out := cmd.OutOrStdout()
			if mig.Status == index.MigrationSkipped {
				fmt.Fprintf(out, "Already on %s, nothing to do.\n", mig.ToModel)
				return nil
			}
			fmt.Fprintf(out, "Migrating %s -> %s (id %s)\n", mig.FromModel, mig.ToModel, mig.ID)

			// The worker runs in this process; poll until it reaches a
			// terminal state. Context cancellation (Ctrl-C) requests a
			// cooperative cancel and waits for cleanup.
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			cancelRequested := false

			for {
				select {
				case <-cmd.Context().Done():
					if !cancelRequested {
						cancelRequested = true
						if _, err := app.migrator.Cancel(); err == nil {
							fmt.Fprintln(out, "Cancelling migration...")
						}
					}
				case <-ticker.C:
				}

				status := app.migrator.Status()
				if status == nil {
					return fmt.Errorf("migration state lost")
				}
				switch status.Status {
				case index.MigrationRunning:
					if status.FilesTotal > 0 {
						fmt.Fprintf(out, "\r%d/%d files, %d chunks", status.FilesDone, status.FilesTotal, status.ChunksCreated)
					}
				case index.MigrationComplete:
					fmt.Fprintf(out, "\nMigration complete: %d files, %d chunks under %s\n",
						status.FilesDone, status.ChunksCreated, status.ToModel)
					return nil
				case index.MigrationFailed:
					fmt.Fprintln(out)
					return fmt.Errorf("migration failed: %s", status.Error)
				case index.MigrationCancelled:
					if !status.CompletedAt.IsZero() {
						fmt.Fprintln(out, "\nMigration cancelled; index unchanged.")
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "New embedding provider (defaults to current)")
	cmd.Flags().StringVar(&model, "model", "", "New embedding model name")
	return cmd
}
