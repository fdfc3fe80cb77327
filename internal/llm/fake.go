package llm

import (
	"context"
	"strings"
	"sync/atomic"
)

// FakeProvider answers by echoing the context it was given. Used when
// fake_llm is enabled and as a spy in tests: calls are counted so tests
// can assert the context-only policy (no call on empty retrieval).
type FakeProvider struct {
	calls int64

	// Answer overrides the generated text when non-empty.
	Answer string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// Calls returns how many generate operations were started.
func (p *FakeProvider) Calls() int64 { return atomic.LoadInt64(&p.calls) }

func (p *FakeProvider) answerFor(prompt, query string) string {
	if p.Answer != "" {
		return p.Answer
	}
	// Surface the grounding context so end-to-end tests can assert
	// evidence made it into the answer.
	var sb strings.Builder
	sb.WriteString("Based on the provided context: ")
	sb.WriteString(prompt)
	return sb.String()
}

func (p *FakeProvider) GenerateAnswer(ctx context.Context, prompt, query string) (string, error) {
	atomic.AddInt64(&p.calls, 1)
	return p.answerFor(prompt, query), nil
}

func (p *FakeProvider) GenerateStream(ctx context.Context, prompt, query string) (<-chan string, <-chan error, error) {
	atomic.AddInt64(&p.calls, 1)

	tokens := make(chan string, 10)
	errs := make(chan error, 1)

	answer := p.answerFor(prompt, query)
	go func() {
		defer close(tokens)
		defer close(errs)
		for _, word := range strings.SplitAfter(answer, " ") {
			select {
			case tokens <- word:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tokens, errs, nil
}
