package chunk

import (
	"fmt"
	"regexp"
	"strings"
)

// headingPattern matches ATX headings of level 1-3. Deeper levels stay
// inside their parent section.
var headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.*)`)

// Split chunks text from source according to opts.Strategy.
// Unknown strategies fall back to heading.
func Split(text, source string, opts Options) []Chunk {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultOptions().MaxChars
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxChars {
		opts.Overlap = DefaultOptions().Overlap
	}

	switch opts.Strategy {
	case "fixed":
		return splitFixed(text, source, opts.MaxChars, opts.Overlap)
	case "hybrid":
		return splitHybrid(text, source, opts)
	default:
		return splitByHeading(text, source)
	}
}

// headingFrame is one level of the open heading trail.
type headingFrame struct {
	level int
	title string
}

// splitByHeading splits at level 1-3 headings, carrying the ancestor
// heading trail into each chunk as retrieval context.
func splitByHeading(text, source string) []Chunk {
	var (
		chunks      []Chunk
		stack       []headingFrame
		lines       []string
		heading     = "intro"
		headingPath string
		startLine   = 1
	)

	flush := func() {
		if c, ok := buildHeadingChunk(lines, heading, headingPath, source, startLine); ok {
			chunks = append(chunks, c)
		}
	}

	for lineNum, line := range strings.Split(text, "\n") {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			lines = append(lines, line)
			continue
		}

		if len(lines) > 0 {
			flush()
		}

		level := len(m[1])
		title := strings.TrimSpace(m[2])

		// Prune frames at or below the new level, then push it: the
		// stack always holds strictly ascending levels.
		pruned := stack[:0]
		for _, f := range stack {
			if f.level < level {
				pruned = append(pruned, f)
			}
		}
		stack = append(pruned, headingFrame{level: level, title: title})

		heading = title
		headingPath = joinTrail(stack)
		lines = []string{line}
		startLine = lineNum + 1
	}

	if len(lines) > 0 {
		flush()
	}
	return chunks
}

// buildHeadingChunk assembles a heading-strategy chunk, discarding
// bodies at or under MinChunkChars.
func buildHeadingChunk(lines []string, heading, headingPath, source string, startLine int) (Chunk, bool) {
	raw := strings.TrimSpace(strings.Join(lines, "\n"))
	if len(raw) <= MinChunkChars {
		return Chunk{}, false
	}

	display := raw
	if headingPath != "" {
		display = "[" + headingPath + "]\n\n" + raw
	}

	c := newChunk(display, heading, headingPath, source)
	c.LineStart = startLine
	c.LineEnd = startLine + len(lines) - 1
	return c, true
}

// splitFixed slides a maxChars window over text with overlap chars of
// back-tracking. When the cut point is past the back half of a window,
// it is moved back to the nearest ". " sentence boundary.
func splitFixed(text, source string, maxChars, overlap int) []Chunk {
	var chunks []Chunk
	start := 0

	for start < len(text) {
		end := start + maxChars
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]

		if end < len(text) {
			if cut := strings.LastIndex(window, ". "); cut > maxChars/2 {
				window = window[:cut+1]
				end = start + cut + 1
			}
		}

		lineStart := strings.Count(text[:start], "\n") + 1
		lineEnd := lineStart + strings.Count(window, "\n")

		trimmed := strings.TrimSpace(window)
		if len(trimmed) > MinChunkChars {
			c := newChunk(trimmed, fmt.Sprintf("chunk-%d", len(chunks)), "", source)
			c.LineStart = lineStart
			c.LineEnd = lineEnd
			chunks = append(chunks, c)
		}

		if end == len(text) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// splitHybrid runs the heading strategy and re-chunks any oversized
// section with the fixed strategy. Sub-chunks get "(part N)" headings
// and fresh content-addressed IDs, so identity remains a pure function
// of the final text.
func splitHybrid(text, source string, opts Options) []Chunk {
	headingChunks := splitByHeading(text, source)
	final := make([]Chunk, 0, len(headingChunks))

	for _, c := range headingChunks {
		if len(c.Text) <= opts.MaxChars {
			final = append(final, c)
			continue
		}

		subs := splitFixed(c.Text, source, opts.MaxChars, opts.Overlap)
		for i, sc := range subs {
			sc.Heading = fmt.Sprintf("%s (part %d)", c.Heading, i+1)
			sc.HeadingPath = c.HeadingPath
			sc.ID = ID(source, sc.Text)
			final = append(final, sc)
		}
	}
	return final
}

// joinTrail renders the heading stack as a " > "-separated path.
func joinTrail(stack []headingFrame) string {
	titles := make([]string, len(stack))
	for i, f := range stack {
		titles[i] = f.title
	}
	return strings.Join(titles, " > ")
}
