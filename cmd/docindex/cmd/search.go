package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbforge/docindex/internal/search"
)

const timeRounding = time.Millisecond

type searchOptions struct {
	limit        int
	typeFilter   string
	minRelevance float64
	format       string
	rerankModel  string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge index",
		Long: `Search the index with hybrid retrieval: semantic (vector) and
keyword (BM25) results merged by reciprocal rank fusion.

Examples:
  docindex search "connection pool exhaustion"
  docindex search "auth flow" --type architecture --limit 3
  docindex search "release notes" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.indexer.Search(cmd.Context(), query, search.Options{
				TopK:         opts.limit,
				TypeFilter:   opts.typeFilter,
				MinRelevance: opts.minRelevance,
				RerankModel:  opts.rerankModel,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%.1f] %s", i+1, r.Relevance, r.Chunk.Source)
				if r.Chunk.Heading != "" {
					fmt.Fprintf(out, " — %s", r.Chunk.Heading)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "   %s\n", excerpt(r.Chunk.Text, 200))
				if len(r.MatchedTerms) > 0 {
					fmt.Fprintf(out, "   matched: %s\n", strings.Join(r.MatchedTerms, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.typeFilter, "type", "t", "", "Filter by document type (bugfix, api, architecture, ...)")
	cmd.Flags().Float64Var(&opts.minRelevance, "min-relevance", 0, "Drop results scoring below this 0-100 threshold")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.rerankModel, "rerank-model", "", "Rerank with this model instead of the configured default")
	return cmd
}

// excerpt flattens text to one line and truncates it.
func excerpt(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if len(flat) <= max {
		return flat
	}
	return flat[:max] + "…"
}
