package textsplit

import (
	"strings"
)

// StructuredChunker is markdown-aware: code fences are never split,
// headers travel with the paragraph that follows them, and paragraphs
// are repacked per section up to the chunk size. Overlap is applied by
// prepending a tail slice of the previous chunk.
type StructuredChunker struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewStructuredChunker creates a structure-preserving chunker.
func NewStructuredChunker(size, overlap int) *StructuredChunker {
	return &StructuredChunker{ChunkSize: size, ChunkOverlap: overlap}
}

// block is a structural unit of the document: a fenced code block, a
// header fused with its following paragraph, or a plain paragraph.
type block struct {
	text       string
	fenced     bool
	newSection bool
}

// Split implements Chunker.
func (c *StructuredChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.ChunkSize {
		return []string{text}
	}

	blocks := parseBlocks(text)
	packed := c.pack(blocks)
	withOverlap := c.applyOverlap(packed)
	return mergeSmallTail(withOverlap, c.ChunkSize)
}

// parseBlocks walks the text line by line, grouping fenced code blocks,
// headers and paragraphs.
func parseBlocks(text string) []block {
	lines := strings.Split(text, "\n")

	var blocks []block
	var buf []string
	var pendingHeader string
	inFence := false

	flush := func() {
		if len(buf) == 0 {
			return
		}
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if body == "" {
			return
		}
		b := block{text: body}
		if pendingHeader != "" {
			// Headers merge with the paragraph that follows them and
			// mark the start of a section.
			b.text = pendingHeader + "\n" + body
			b.newSection = true
			pendingHeader = ""
		}
		blocks = append(blocks, b)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				flush()
				inFence = true
				buf = append(buf, line)
				continue
			}
			buf = append(buf, line)
			body := strings.Join(buf, "\n")
			buf = buf[:0]
			b := block{text: body, fenced: true}
			if pendingHeader != "" {
				b.text = pendingHeader + "\n" + body
				b.newSection = true
				pendingHeader = ""
			}
			blocks = append(blocks, b)
			inFence = false
			continue
		}

		if inFence {
			buf = append(buf, line)
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			flush()
			if pendingHeader != "" {
				// Consecutive headers: emit the dangling one on its own.
				blocks = append(blocks, block{text: pendingHeader, newSection: true})
			}
			pendingHeader = trimmed
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		buf = append(buf, line)
	}

	if inFence {
		// Unterminated fence: keep what we have as a fenced block.
		if body := strings.TrimSpace(strings.Join(buf, "\n")); body != "" {
			blocks = append(blocks, block{text: body, fenced: true})
		}
		buf = nil
	}
	flush()
	if pendingHeader != "" {
		blocks = append(blocks, block{text: pendingHeader, newSection: true})
	}
	return blocks
}

// pack repacks blocks into chunks up to ChunkSize. Section starts flush
// the current chunk. Oversized plain blocks fall back to the baseline
// chunker; oversized fenced blocks are emitted whole.
func (c *StructuredChunker) pack(blocks []block) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	simple := NewSimpleChunker(c.ChunkSize, 0)

	for _, b := range blocks {
		if len(chunks) >= MaxChunksPerDocument {
			break
		}
		if b.newSection {
			flush()
		}

		if len(b.text) > c.ChunkSize {
			flush()
			if b.fenced {
				chunks = append(chunks, b.text)
			} else {
				chunks = append(chunks, simple.Split(b.text)...)
			}
			continue
		}

		if cur.Len() > 0 && cur.Len()+len(b.text)+2 > c.ChunkSize {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(b.text)
	}
	flush()

	if len(chunks) > MaxChunksPerDocument {
		chunks = chunks[:MaxChunksPerDocument]
	}
	return chunks
}

// applyOverlap prepends the tail of the previous chunk to each chunk
// after the first.
func (c *StructuredChunker) applyOverlap(chunks []string) []string {
	if c.ChunkOverlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(prev) > c.ChunkOverlap {
			tail = prev[len(prev)-c.ChunkOverlap:]
			// Do not start the overlap mid-word.
			if idx := strings.IndexAny(tail, " \n\t"); idx > 0 && idx < len(tail)-1 {
				tail = tail[idx+1:]
			}
		}
		out[i] = strings.TrimSpace(tail) + "\n" + chunks[i]
	}
	return out
}

// New returns the chunker selected by mode: "structured" or the default
// "simple".
func New(mode string, size, overlap int) Chunker {
	if mode == "structured" {
		return NewStructuredChunker(size, overlap)
	}
	return NewSimpleChunker(size, overlap)
}
