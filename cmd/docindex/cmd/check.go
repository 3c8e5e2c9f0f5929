package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge/docindex/internal/quality"
	"github.com/kbforge/docindex/internal/scanner"
)

func newCheckCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check document quality without indexing",
		Long: `Run the quality gate over every document and report issues.
Documents with critical issues are the ones an index pass would
skip. No files are modified and no index is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			docs, err := scanner.Scan(cfg.DocsPath)
			if err != nil {
				return fmt.Errorf("scan documents: %w", err)
			}

			gate := quality.NewGate()
			var issues []quality.Issue
			for _, doc := range docs {
				issues = append(issues, gate.CheckFile(doc.Path, doc.RelPath)...)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(issues)
			}

			if len(issues) == 0 {
				fmt.Fprintf(out, "Checked %d files, no issues.\n", len(docs))
				return nil
			}
			critical := 0
			for _, issue := range issues {
				if issue.Severity == quality.SeverityCritical {
					critical++
				}
				fmt.Fprintf(out, "%-8s %s: %s\n", issue.Severity, issue.File, issue.Message)
			}
			fmt.Fprintf(out, "\n%d issues in %d files (%d critical).\n", len(issues), len(docs), critical)
			if critical > 0 {
				return fmt.Errorf("%d critical issues would be skipped during indexing", critical)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
