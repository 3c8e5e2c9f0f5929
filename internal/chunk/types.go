// Package chunk splits normalized document text into content-addressed
// retrievable chunks. Chunking is a pure function of (text, source,
// options): the same input always yields the same chunk IDs regardless
// of processing order, which is what makes upserts idempotent and
// diff-aware reindexing safe.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MinChunkChars is the minimum trimmed body length for a chunk to be
// kept. Shorter chunks are heading-only or whitespace noise.
const MinChunkChars = 50

// IDWidth is the hex width of content-addressed chunk IDs.
const IDWidth = 16

// Chunk is a retrievable unit of document content.
type Chunk struct {
	// ID is sha256(source + "\n" + text) truncated to IDWidth hex chars.
	ID string
	// Text is the chunk body, prefixed with the heading path context
	// for the heading strategy.
	Text string
	// Source is the document path relative to the docs root.
	Source string
	// Heading is the nearest heading title ("intro" before the first).
	Heading string
	// HeadingPath is the " > "-joined ancestor heading trail.
	HeadingPath string
	// DocType is the category derived from the source path.
	DocType string
	// CharCount and WordCount describe the final text.
	CharCount int
	WordCount int
	// LineStart and LineEnd are 1-indexed source line bounds for citation.
	LineStart int
	LineEnd   int
}

// Options configures the chunker.
type Options struct {
	// Strategy is one of "heading", "fixed", "hybrid".
	Strategy string
	// MaxChars bounds chunk size for the fixed and hybrid strategies.
	MaxChars int
	// Overlap is the back-tracking window between fixed-size chunks.
	Overlap int
}

// DefaultOptions returns the chunker defaults.
func DefaultOptions() Options {
	return Options{
		Strategy: "heading",
		MaxChars: 2000,
		Overlap:  200,
	}
}

// ID computes the content-addressed chunk ID for (source, text).
// It is a pure deterministic function: identical input always yields
// the same ID, independent of run or ordering.
func ID(source, text string) string {
	sum := sha256.Sum256([]byte(source + "\n" + text))
	return hex.EncodeToString(sum[:])[:IDWidth]
}

// newChunk builds a chunk from final text, assigning the
// content-addressed ID and derived counts.
func newChunk(text, heading, headingPath, source string) Chunk {
	text = strings.TrimSpace(text)
	return Chunk{
		ID:          ID(source, text),
		Text:        text,
		Source:      source,
		Heading:     heading,
		HeadingPath: headingPath,
		DocType:     DetectDocType(source),
		CharCount:   len(text),
		WordCount:   len(strings.Fields(text)),
	}
}
