package rag

import (
	"fmt"
	"strings"

	"ragspace/internal/model"
)

// NoEvidenceFallback is the canonical user-visible answer when
// retrieval finds nothing. The LLM is never called in that case.
const NoEvidenceFallback = "No hay evidencia suficiente en los documentos del workspace para responder esa pregunta."

const (
	openDelim  = "<<<FRAGMENTO %d>>>"
	closeDelim = "<<<FIN FRAGMENTO %d>>>"
)

// ContextBuilder assembles retrieved chunks into a bounded, escaped
// context string.
type ContextBuilder struct {
	MaxChars int
}

func NewContextBuilder(maxChars int) *ContextBuilder {
	return &ContextBuilder{MaxChars: maxChars}
}

// Build frames each chunk between indexed delimiter lines, escaping any
// delimiter tokens that appear inside chunk content so document text
// cannot forge block boundaries. Chunks are deduplicated by ID in
// order. Assembly stops as soon as the next block would push the total
// past MaxChars. Returns the context string and exactly the chunks that
// entered it, in emission order.
func (b *ContextBuilder) Build(chunks []model.RetrievedChunk) (string, []model.RetrievedChunk) {
	var sb strings.Builder
	var included []model.RetrievedChunk
	seen := make(map[string]bool, len(chunks))

	for _, chunk := range chunks {
		if seen[chunk.ID] {
			continue
		}
		seen[chunk.ID] = true

		block := fmt.Sprintf("%s\nDoc ID: %s | Fragment: %d\n%s\n%s",
			fmt.Sprintf(openDelim, len(included)+1),
			chunk.DocumentID, chunk.ChunkIndex,
			escapeDelimiters(chunk.Content),
			fmt.Sprintf(closeDelim, len(included)+1))

		extra := len(block)
		if sb.Len() > 0 {
			extra += 2 // separating blank line
		}
		if sb.Len()+extra > b.MaxChars {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
		included = append(included, chunk)
	}

	return sb.String(), included
}

// escapeDelimiters swaps the angle-bracket runs used by the block
// delimiters for lookalike characters, defeating delimiter injection
// from document content.
func escapeDelimiters(content string) string {
	content = strings.ReplaceAll(content, "<<<", "‹‹‹")
	return strings.ReplaceAll(content, ">>>", "›››")
}
