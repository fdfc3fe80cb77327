package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/conversation"
	"ragspace/internal/llm"
	"ragspace/internal/metrics"
	"ragspace/internal/model"
	"ragspace/internal/prompt"
	"ragspace/internal/rag"
	"ragspace/internal/retry"
)

const sourcePreviewLen = 160

// Retriever is the retrieval pipeline facet the answer flow needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, useMMR bool, workspaceID string) (*rag.Result, error)
}

// AnswerRequest asks a question against one workspace.
type AnswerRequest struct {
	WorkspaceID    string
	Query          string
	TopK           int
	UseMMR         *bool
	ConversationID string
}

// Source identifies a chunk that entered the answer's context.
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// AnswerResult is the sync-path response.
type AnswerResult struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// Stream event types, in emission order: one sources, zero or more
// token, then exactly one done or error.
const (
	EventSources = "sources"
	EventToken   = "token"
	EventDone    = "done"
	EventError   = "error"
)

// StreamEvent is one element of the streaming answer sequence. Sources
// is non-nil on every sources event, empty slice included, so the
// encoded envelope always carries the key there; on other event types
// it stays nil and is omitted.
type StreamEvent struct {
	Type           string   `json:"type"`
	Sources        []Source `json:"sources,omitzero"`
	Token          string   `json:"token,omitempty"`
	Answer         string   `json:"answer,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// AnswerService runs the question-answering flow: authorize, recall
// history, retrieve evidence, generate grounded answers.
type AnswerService struct {
	workspaces    *WorkspaceService
	retriever     Retriever
	composer      *prompt.Composer
	generator     llm.Provider
	conversations conversation.Store
	retryCfg      retry.Config
	defaultTopK   int
	maxTopK       int
	historyLimit  int
	defaultUseMMR bool
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

type AnswerOptions struct {
	DefaultTopK   int
	MaxTopK       int
	HistoryLimit  int
	DefaultUseMMR bool
	Retry         retry.Config
}

func NewAnswerService(workspaces *WorkspaceService, retriever Retriever, composer *prompt.Composer,
	generator llm.Provider, conversations conversation.Store, opts AnswerOptions,
	m *metrics.Metrics, logger *zap.Logger) *AnswerService {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 20
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 12
	}
	return &AnswerService{
		workspaces:    workspaces,
		retriever:     retriever,
		composer:      composer,
		generator:     generator,
		conversations: conversations,
		retryCfg:      opts.Retry,
		defaultTopK:   opts.DefaultTopK,
		maxTopK:       opts.MaxTopK,
		historyLimit:  opts.HistoryLimit,
		defaultUseMMR: opts.DefaultUseMMR,
		metrics:       m,
		logger:        logger,
	}
}

// prepared is the state shared by the sync and streaming paths after
// authorization, history recall and retrieval.
type prepared struct {
	conversationID string
	queryText      string
	promptText     string
	result         *rag.Result
	sources        []Source
	fallback       bool
}

func (s *AnswerService) prepare(ctx context.Context, actor model.Actor, req AnswerRequest) (*prepared, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.New(apperr.KindValidation, "query is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}
	useMMR := s.defaultUseMMR
	if req.UseMMR != nil {
		useMMR = *req.UseMMR
	}

	if _, err := s.workspaces.AuthorizeRead(ctx, actor, req.WorkspaceID); err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		id, err := s.conversations.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = id
	}

	history, err := s.conversations.Get(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	queryText := formatTranscript(history, query)

	// Pre-commit the user turn so history survives a client disconnect
	// mid-stream.
	if err := s.conversations.Append(ctx, conversationID, model.Message{
		Role: model.MessageRoleUser, Content: query,
	}); err != nil {
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}

	result, err := s.retriever.Retrieve(ctx, queryText, topK, useMMR, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	p := &prepared{
		conversationID: conversationID,
		queryText:      queryText,
		result:         result,
		sources:        sourcesFromChunks(result.Chunks),
	}
	if result.Empty() {
		p.fallback = true
		return p, nil
	}

	composed, err := s.composer.Compose()
	if err != nil {
		return nil, err
	}
	p.promptText = prompt.Format(composed, result.Context, queryText)
	return p, nil
}

// Answer is the synchronous path.
func (s *AnswerService) Answer(ctx context.Context, actor model.Actor, req AnswerRequest) (*AnswerResult, error) {
	p, err := s.prepare(ctx, actor, req)
	if err != nil {
		s.metrics.AnswersTotal.WithLabelValues("sync", "error").Inc()
		return nil, err
	}

	if p.fallback {
		// Context-only policy: no evidence means no model call.
		if err := s.appendAssistant(ctx, p.conversationID, rag.NoEvidenceFallback); err != nil {
			return nil, err
		}
		s.metrics.AnswersTotal.WithLabelValues("sync", "fallback").Inc()
		return &AnswerResult{
			Answer:         rag.NoEvidenceFallback,
			Sources:        []Source{},
			ConversationID: p.conversationID,
		}, nil
	}

	start := time.Now()
	var answer string
	err = retry.Do(ctx, s.logger, s.retryCfg, "generate_answer", func(ctx context.Context) error {
		var genErr error
		answer, genErr = s.generator.GenerateAnswer(ctx, p.promptText, p.queryText)
		return genErr
	})
	if err != nil {
		s.metrics.AnswersTotal.WithLabelValues("sync", "error").Inc()
		return nil, apperr.Wrap(apperr.KindLLM, "answer generation failed", err)
	}
	s.logTimings(p, "sync", time.Since(start))

	if err := s.appendAssistant(ctx, p.conversationID, answer); err != nil {
		return nil, err
	}
	s.metrics.AnswersTotal.WithLabelValues("sync", "ok").Inc()
	return &AnswerResult{
		Answer:         answer,
		Sources:        p.sources,
		ConversationID: p.conversationID,
	}, nil
}

// AnswerStream is the streaming path. The returned channel is closed
// after the terminal done or error event. On client disconnect the
// partial answer generated so far is persisted.
func (s *AnswerService) AnswerStream(ctx context.Context, actor model.Actor, req AnswerRequest) (<-chan StreamEvent, error) {
	p, err := s.prepare(ctx, actor, req)
	if err != nil {
		s.metrics.AnswersTotal.WithLabelValues("stream", "error").Inc()
		return nil, err
	}

	events := make(chan StreamEvent, 16)

	if p.fallback {
		go func() {
			defer close(events)
			if err := s.appendAssistant(ctx, p.conversationID, rag.NoEvidenceFallback); err != nil {
				s.logger.Error("failed to persist fallback answer", zap.Error(err))
			}
			events <- StreamEvent{Type: EventSources, Sources: []Source{}, ConversationID: p.conversationID}
			events <- StreamEvent{Type: EventToken, Token: rag.NoEvidenceFallback}
			events <- StreamEvent{Type: EventDone, Answer: rag.NoEvidenceFallback, ConversationID: p.conversationID}
			s.metrics.AnswersTotal.WithLabelValues("stream", "fallback").Inc()
		}()
		return events, nil
	}

	// Retry applies to stream initiation only, never mid-stream.
	var tokens <-chan string
	var errs <-chan error
	err = retry.Do(ctx, s.logger, s.retryCfg, "generate_stream", func(ctx context.Context) error {
		var initErr error
		tokens, errs, initErr = s.generator.GenerateStream(ctx, p.promptText, p.queryText)
		return initErr
	})
	if err != nil {
		s.metrics.AnswersTotal.WithLabelValues("stream", "error").Inc()
		return nil, apperr.Wrap(apperr.KindLLM, "answer stream initiation failed", err)
	}

	start := time.Now()
	go func() {
		defer close(events)
		events <- StreamEvent{Type: EventSources, Sources: p.sources, ConversationID: p.conversationID}

		var sb strings.Builder
		persist := func() {
			if sb.Len() == 0 {
				return
			}
			// The client is gone; persist with a fresh context.
			persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.appendAssistant(persistCtx, p.conversationID, sb.String()); err != nil {
				s.logger.Error("failed to persist partial answer", zap.Error(err))
			}
		}

		for {
			select {
			case <-ctx.Done():
				persist()
				s.metrics.AnswersTotal.WithLabelValues("stream", "disconnect").Inc()
				return
			case genErr, ok := <-errs:
				if ok && genErr != nil {
					persist()
					events <- StreamEvent{Type: EventError, Error: "answer generation failed", ConversationID: p.conversationID}
					s.metrics.AnswersTotal.WithLabelValues("stream", "error").Inc()
					return
				}
				errs = nil
			case token, ok := <-tokens:
				if !ok {
					answer := sb.String()
					if err := s.appendAssistant(ctx, p.conversationID, answer); err != nil {
						s.logger.Error("failed to persist answer", zap.Error(err))
					}
					events <- StreamEvent{Type: EventDone, Answer: answer, ConversationID: p.conversationID}
					s.metrics.AnswersTotal.WithLabelValues("stream", "ok").Inc()
					s.logTimings(p, "stream", time.Since(start))
					return
				}
				sb.WriteString(token)
				select {
				case events <- StreamEvent{Type: EventToken, Token: token}:
				case <-ctx.Done():
					persist()
					s.metrics.AnswersTotal.WithLabelValues("stream", "disconnect").Inc()
					return
				}
			}
		}
	}()
	return events, nil
}

func (s *AnswerService) appendAssistant(ctx context.Context, conversationID, answer string) error {
	err := s.conversations.Append(ctx, conversationID, model.Message{
		Role: model.MessageRoleAssistant, Content: answer,
	})
	if err != nil {
		return fmt.Errorf("failed to append assistant message: %w", err)
	}
	return nil
}

func (s *AnswerService) logTimings(p *prepared, mode string, generation time.Duration) {
	fields := []zap.Field{
		zap.String("mode", mode),
		zap.String("conversation_id", p.conversationID),
		zap.Int("chunks_used", len(p.result.Chunks)),
		zap.Duration("generate", generation),
	}
	for stage, d := range p.result.Timings {
		fields = append(fields, zap.Duration(stage, d))
	}
	s.logger.Info("answer generated", fields...)
}

// formatTranscript labels prior turns and the current question. Without
// history the query passes through unlabeled.
func formatTranscript(history []model.Message, query string) string {
	if len(history) == 0 {
		return query
	}
	var sb strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case model.MessageRoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(query)
	return sb.String()
}

func sourcesFromChunks(chunks []model.RetrievedChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		preview := c.Content
		if runes := []rune(preview); len(runes) > sourcePreviewLen {
			preview = string(runes[:sourcePreviewLen])
		}
		sources = append(sources, Source{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Preview:    preview,
			Similarity: c.Similarity,
		})
	}
	return sources
}
