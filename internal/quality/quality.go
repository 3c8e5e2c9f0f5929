// Package quality validates documents before indexing. Critical
// issues exclude a file from the index; the file itself is never
// modified or deleted.
package quality

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/kbforge/docindex/internal/chunk"
)

// Issue severities, in decreasing order of impact.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Issue is one quality finding for a document.
type Issue struct {
	Severity string `json:"severity"`
	File     string `json:"file"`
	Message  string `json:"message"`
}

// HasCritical reports whether any issue is critical.
func HasCritical(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Gate checks a document against the quality rules.
type Gate interface {
	CheckFile(path, relPath string) []Issue
}

// Required sections per category. Missing sections are critical: an
// entry without them has little retrieval value.
var (
	bugfixRequiredSections = []string{"Root Cause", "Solution", "Lesson Learned"}
	testRequiredSections   = []string{"Scenario", "Steps", "Expected Result"}
)

var (
	codeBlockPattern = regexp.MustCompile("(?ms)^```.*?^```")
	headingPattern   = regexp.MustCompile(`(?m)^(#{1,6})\s+`)
	h2SplitPattern   = regexp.MustCompile(`(?m)^(##\s+.+)$`)
)

// MarkdownGate implements Gate for markdown-like documents.
type MarkdownGate struct{}

// NewGate returns a MarkdownGate.
func NewGate() *MarkdownGate { return &MarkdownGate{} }

// CheckFile reads path and returns its quality issues. Unreadable
// files produce no issues; extraction handles those separately.
func (g *MarkdownGate) CheckFile(path, relPath string) []Issue {
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Debug("quality check skipped unreadable file", "path", path, "error", err)
		return nil
	}
	return g.CheckContent(string(raw), relPath)
}

// CheckContent validates raw markdown content attributed to relPath.
func (g *MarkdownGate) CheckContent(content, relPath string) []Issue {
	var issues []Issue
	issues = append(issues, checkCompleteness(content, relPath)...)
	issues = append(issues, checkHeadings(content, relPath)...)

	switch chunk.DetectDocType(relPath) {
	case "bugfix":
		issues = append(issues, checkRequiredSections(content, relPath, "Bugfix entry", bugfixRequiredSections)...)
	case "test":
		issues = append(issues, checkRequiredSections(content, relPath, "Test case", testRequiredSections)...)
	}
	return issues
}

func checkCompleteness(content, rel string) []Issue {
	text := stripMarkdownOverhead(content)
	switch {
	case len(text) < 30:
		return []Issue{{SeverityWarning, rel, "File is nearly empty (< 30 chars of content)."}}
	case len(text) < 100:
		return []Issue{{SeverityInfo, rel, "File is very short (< 100 chars). Consider adding more detail."}}
	}
	return nil
}

func checkHeadings(content, rel string) []Issue {
	var issues []Issue
	cleaned := codeBlockPattern.ReplaceAllString(content, "")
	matches := headingPattern.FindAllStringSubmatch(cleaned, -1)

	if len(matches) == 0 {
		return []Issue{{SeverityInfo, rel, "File has no headings. Add at least a # title."}}
	}

	first := len(matches[0][1])
	if first > 1 {
		issues = append(issues, Issue{SeverityInfo, rel,
			fmt.Sprintf("First heading is level %d. Start with a # (h1) title.", first)})
	}

	seen := map[int]bool{first: true}
	for _, m := range matches[1:] {
		level := len(m[1])
		if !seen[level] && !seen[level-1] && level > 1 {
			prevMax := 0
			for lvl := range seen {
				if lvl < level && lvl > prevMax {
					prevMax = lvl
				}
			}
			if prevMax > 0 && prevMax < level-1 {
				issues = append(issues, Issue{SeverityInfo, rel,
					fmt.Sprintf("Heading level jumps from h%d to h%d.", prevMax, level)})
				break
			}
		}
		seen[level] = true
	}
	return issues
}

func checkRequiredSections(content, rel, kind string, sections []string) []Issue {
	var issues []Issue
	for _, section := range sections {
		pattern := regexp.MustCompile(`(?mi)^##\s+[\*_\s]*(?:\S+\s+)?` + regexp.QuoteMeta(section))
		if !pattern.MatchString(content) {
			issues = append(issues, Issue{SeverityCritical, rel,
				fmt.Sprintf("%s missing required section: '## %s'.", kind, section)})
		}
	}

	for heading, body := range splitH2Sections(content) {
		if len(stripMarkdownOverhead(body)) < 20 {
			issues = append(issues, Issue{SeverityWarning, rel,
				fmt.Sprintf("Section '## %s' has very little content.", heading)})
		}
	}
	return issues
}

// stripMarkdownOverhead measures meaningful content: fenced code
// blocks and heading lines are removed, lists and tables kept.
func stripMarkdownOverhead(text string) string {
	cleaned := codeBlockPattern.ReplaceAllString(text, "")
	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		if headingPattern.MatchString(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// splitH2Sections returns heading -> body for each ## section.
func splitH2Sections(text string) map[string]string {
	cleaned := codeBlockPattern.ReplaceAllString(text, "")
	locs := h2SplitPattern.FindAllStringIndex(cleaned, -1)

	sections := make(map[string]string, len(locs))
	for i, loc := range locs {
		heading := strings.TrimSpace(strings.TrimLeft(cleaned[loc[0]:loc[1]], "# "))
		end := len(cleaned)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[heading] = cleaned[loc[1]:end]
	}
	return sections
}

var _ Gate = (*MarkdownGate)(nil)
