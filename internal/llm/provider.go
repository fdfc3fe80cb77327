// Package llm provides the language model port, an OpenAI-compatible
// HTTP adapter with SSE streaming and a fake for tests and offline runs.
package llm

import (
	"context"
)

// Provider generates grounded answers. Both paths receive the already
// composed prompt text (system prompt) and the query text (which may
// embed conversation history).
type Provider interface {
	// GenerateAnswer returns the full answer synchronously.
	GenerateAnswer(ctx context.Context, prompt, query string) (string, error)

	// GenerateStream starts a streamed completion. Tokens arrive on the
	// first channel; a terminal error, if any, on the second. Both close
	// when the stream ends. Consumers stop by cancelling ctx.
	GenerateStream(ctx context.Context, prompt, query string) (<-chan string, <-chan error, error)
}
