// Package textsplit splits extracted document text into overlapping,
// boundary-aware fragments ready for embedding.
package textsplit

import (
	"strings"
	"unicode"
)

const (
	// MaxChunksPerDocument bounds memory for pathological inputs.
	MaxChunksPerDocument = 2000

	// minTailRatio: a trailing chunk smaller than chunkSize/minTailRatio
	// is merged into the previous chunk.
	minTailRatio = 4
)

// Chunker splits raw text into an ordered list of chunk strings.
type Chunker interface {
	Split(text string) []string
}

// SimpleChunker is the baseline greedy chunker: it targets ChunkSize
// characters per chunk, cutting at the best natural separator inside a
// search window, and advances with ChunkOverlap characters of overlap.
type SimpleChunker struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewSimpleChunker creates a baseline chunker. Overlap must be smaller
// than size; callers validate that via config.
func NewSimpleChunker(size, overlap int) *SimpleChunker {
	return &SimpleChunker{ChunkSize: size, ChunkOverlap: overlap}
}

// Split implements Chunker. Empty input yields no chunks; input at or
// below the chunk size yields exactly one chunk equal to the trimmed
// input.
func (c *SimpleChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.ChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) && len(chunks) < MaxChunksPerDocument {
		end := start + c.ChunkSize
		if end >= len(text) {
			if piece := strings.TrimSpace(text[start:]); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}

		cut := c.findCut(text, start, end)
		if piece := strings.TrimSpace(text[start:cut]); piece != "" {
			chunks = append(chunks, piece)
		}

		next := cut - c.ChunkOverlap
		if next <= start {
			// Always make progress even when the overlap would rewind
			// past the current start.
			next = start + 1
		}
		start = next
	}

	return mergeSmallTail(chunks, c.ChunkSize)
}

// findCut searches a window before the target end for the best natural
// separator, tried in priority order. Returns the cut position
// (exclusive), which includes the separator itself.
func (c *SimpleChunker) findCut(text string, start, end int) int {
	windowStart := end - c.ChunkSize/5
	if windowStart < start {
		windowStart = start
	}

	if pos := lastIndexIn(text, windowStart, end, "\n\n"); pos != -1 {
		return pos + 2
	}
	if pos := lastIndexIn(text, windowStart, end, "\n"); pos != -1 {
		return pos + 1
	}
	if pos := lastSentenceEnd(text, windowStart, end); pos != -1 {
		return pos
	}
	if pos := lastIndexIn(text, windowStart, end, ";"); pos != -1 {
		return pos + 1
	}
	if pos := lastIndexIn(text, windowStart, end, ","); pos != -1 {
		return pos + 1
	}
	for i := end - 1; i >= windowStart; i-- {
		if unicode.IsSpace(rune(text[i])) {
			return i + 1
		}
	}

	// No separator in the window: hard cut.
	return end
}

func lastIndexIn(text string, start, end int, sep string) int {
	idx := strings.LastIndex(text[start:end], sep)
	if idx == -1 {
		return -1
	}
	return start + idx
}

// lastSentenceEnd finds the last '.', '!' or '?' followed by whitespace.
func lastSentenceEnd(text string, start, end int) int {
	for i := end - 1; i >= start; i-- {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 >= len(text) || unicode.IsSpace(rune(text[i+1])) {
			return i + 1
		}
	}
	return -1
}

// mergeSmallTail folds a trailing chunk smaller than a quarter of the
// chunk size into the previous chunk.
func mergeSmallTail(chunks []string, chunkSize int) []string {
	n := len(chunks)
	if n < 2 {
		return chunks
	}
	if len(chunks[n-1]) >= chunkSize/minTailRatio {
		return chunks
	}
	chunks[n-2] = chunks[n-2] + " " + chunks[n-1]
	return chunks[:n-1]
}
