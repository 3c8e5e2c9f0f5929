package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Payments Guide

The payments service handles card authorization and settlement for all
storefront orders placed through the public API.

## Retries

Failed authorizations are retried up to three times with exponential
backoff before the order is parked for manual review.

### Backoff schedule

The schedule is 1s, 4s, 16s. A fourth failure parks the order and
notifies the on-call rotation through the alerting pipeline.

## Refunds

Refunds are asynchronous. The refund worker drains a queue and calls
the processor once per item, recording the outcome on the order.
`

func TestID_Deterministic(t *testing.T) {
	// Given: identical (source, text) pairs
	a := ID("guides/payments.md", "some chunk body")
	b := ID("guides/payments.md", "some chunk body")

	// Then: the IDs are identical and IDWidth hex chars long
	assert.Equal(t, a, b)
	assert.Len(t, a, IDWidth)

	// And: a different source yields a different ID for the same text
	c := ID("guides/billing.md", "some chunk body")
	assert.NotEqual(t, a, c)
}

func TestSplit_HeadingStrategy(t *testing.T) {
	chunks := Split(sampleDoc, "guides/payments.md", Options{Strategy: "heading"})
	require.Len(t, chunks, 4)

	// Then: each section becomes one chunk with its heading trail
	assert.Equal(t, "Payments Guide", chunks[0].Heading)
	assert.Equal(t, "Retries", chunks[1].Heading)
	assert.Equal(t, "Backoff schedule", chunks[2].Heading)
	assert.Equal(t, "Refunds", chunks[3].Heading)

	// And: the h3 carries the full ancestor path
	assert.Equal(t, "Payments Guide > Retries > Backoff schedule", chunks[2].HeadingPath)
	assert.True(t, strings.HasPrefix(chunks[2].Text, "[Payments Guide > Retries > Backoff schedule]\n\n"))

	// And: a sibling h2 after the h3 pops back to the h1 parent
	assert.Equal(t, "Payments Guide > Refunds", chunks[3].HeadingPath)

	// And: line bounds point into the original document
	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Greater(t, chunks[1].LineStart, chunks[0].LineEnd)
}

func TestSplit_HeadingDiscardsTinySections(t *testing.T) {
	doc := "# Title\n\nshort\n\n## Real Section\n\n" +
		"This section body is comfortably long enough to survive the " +
		"minimum chunk size filter applied by the chunker.\n"

	chunks := Split(doc, "doc.md", Options{Strategy: "heading"})

	// Then: the near-empty title section is dropped
	require.Len(t, chunks, 1)
	assert.Equal(t, "Real Section", chunks[0].Heading)
}

func TestSplit_FixedStrategy(t *testing.T) {
	// Given: 30 sentences, far more than one window
	text := strings.Repeat("This sentence pads the document with searchable words. ", 30)

	chunks := Split(text, "notes.txt", Options{Strategy: "fixed", MaxChars: 300, Overlap: 50})
	require.Greater(t, len(chunks), 2)

	for _, c := range chunks {
		// Then: no chunk exceeds the window size
		assert.LessOrEqual(t, len(c.Text), 300)
		// And: cuts land on sentence boundaries
		assert.True(t, strings.HasSuffix(c.Text, "."), "chunk should end at a sentence: %q", c.Text)
	}

	// And: IDs are unique per chunk
	seen := make(map[string]bool)
	for _, c := range chunks {
		assert.False(t, seen[c.ID], "duplicate chunk id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestSplit_FixedStrategyCoversTheTail(t *testing.T) {
	// Given: text with no sentence boundaries, so every cut is a full window
	text := strings.TrimSpace(strings.Repeat("word soup with no boundary markers anywhere ", 60))

	chunks := Split(text, "notes/soup.txt", Options{Strategy: "fixed", MaxChars: 300, Overlap: 50})
	require.NotEmpty(t, chunks)

	// Then: the window count matches the 250-char stride over the text
	assert.LessOrEqual(t, len(chunks), len(text)/250+2)

	// And: the final window reaches the end of the text exactly once
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last.Text))
	for _, c := range chunks[:len(chunks)-1] {
		assert.NotEqual(t, last.ID, c.ID)
	}
}

func TestSplit_FixedStrategyTextShorterThanOverlap(t *testing.T) {
	// Given: text shorter than the overlap, a single partial window
	text := strings.Repeat("a", 100)

	chunks := Split(text, "notes/tiny.txt", Options{Strategy: "fixed", MaxChars: 2000, Overlap: 200})

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSplit_HybridResplitsOversizedSections(t *testing.T) {
	big := "# Runbook\n\n" + strings.Repeat("Every incident follows the same escalation procedure. ", 20)
	doc := big + "\n## Contacts\n\nThe on-call rotation is published in the team handbook alongside escalation numbers.\n"

	chunks := Split(doc, "ops/runbook.md", Options{Strategy: "hybrid", MaxChars: 400, Overlap: 40})
	require.Greater(t, len(chunks), 2)

	var parts int
	for _, c := range chunks {
		// Then: nothing exceeds the size cap
		assert.LessOrEqual(t, len(c.Text), 400)
		if strings.Contains(c.Heading, "(part ") {
			parts++
			// And: sub-chunks keep the parent heading path
			assert.Equal(t, "Runbook", c.HeadingPath)
			// And: their IDs are derived from the final text
			assert.Equal(t, ID("ops/runbook.md", c.Text), c.ID)
		}
	}
	assert.Greater(t, parts, 1)

	// And: the small section survives intact
	last := chunks[len(chunks)-1]
	assert.Equal(t, "Contacts", last.Heading)
}

func TestSplit_UnknownStrategyFallsBackToHeading(t *testing.T) {
	chunks := Split(sampleDoc, "guides/payments.md", Options{Strategy: "nope"})
	require.Len(t, chunks, 4)
	assert.Equal(t, "Payments Guide", chunks[0].Heading)
}

func TestSplit_StableAcrossRuns(t *testing.T) {
	first := Split(sampleDoc, "guides/payments.md", Options{Strategy: "hybrid", MaxChars: 500, Overlap: 50})
	second := Split(sampleDoc, "guides/payments.md", Options{Strategy: "hybrid", MaxChars: 500, Overlap: 50})

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestDetectDocType(t *testing.T) {
	cases := map[string]string{
		"bugfixes/login-loop.md":    "bugfix",
		"notes/bug-fix-cache.md":    "bugfix",
		"api/endpoints.md":          "api",
		"architecture/overview.md":  "architecture",
		"CHANGELOG.md":              "changelog",
		"setup/install.md":          "setup",
		"README.md":                 "readme",
		"tests/checkout-flow.md":    "test",
		"best-practices/logging.md": "best-practice",
		"guides/payments.md":        "docs",
		"misc/random-notes.txt":     "docs",
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectDocType(path), "path %s", path)
	}
}
