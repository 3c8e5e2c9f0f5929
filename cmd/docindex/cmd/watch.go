package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbforge/docindex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the document tree and reindex on changes",
		Long: `Run an initial index pass, then keep the index current by
reindexing whenever documents change on disk. Changes are debounced
so editor save bursts trigger one pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.indexer.IndexAll(ctx, false)
			if err != nil {
				return fmt.Errorf("initial index pass failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files (%d chunks). Watching %s...\n",
				result.FilesIndexed, result.ChunksTotal, app.cfg.DocsPath)

			debounce := time.Duration(app.cfg.Watcher.DebounceMS) * time.Millisecond
			w := watcher.New(app.cfg.DocsPath, app.indexer, debounce)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stopped.")
			return nil
		},
	}
	return cmd
}
