// Package app wires shared infrastructure for the api and worker
// binaries: database pool, redis, object store, providers.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ragspace/internal/config"
	"ragspace/internal/conversation"
	"ragspace/internal/embedding"
	"ragspace/internal/llm"
	"ragspace/internal/metrics"
	"ragspace/internal/retry"
)

// OpenDatabase builds the process-wide pool with the vector type
// registered and a statement timeout on every connection.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewRedis connects the shared redis client.
func NewRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// BuildEmbedder assembles the embedding provider behind the cache
// facade. fake_embeddings swaps in the deterministic provider.
func BuildEmbedder(cfg *config.Config, redisClient *redis.Client, m *metrics.Metrics, logger *zap.Logger) embedding.Provider {
	var inner embedding.Provider
	if cfg.FakeEmbeddings {
		inner = embedding.NewFakeProvider(cfg.EmbeddingDimensions)
	} else {
		inner = embedding.NewHTTPProvider(cfg.LLMBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}

	var backend embedding.Backend
	if cfg.EmbeddingCacheBackend == "redis" && redisClient != nil {
		backend = embedding.NewRedisBackend(redisClient, 24*time.Hour)
	} else {
		backend = embedding.NewMemoryBackend(4096, time.Hour)
	}
	return embedding.NewCache(inner, backend, cfg.EmbeddingModel, logger, m)
}

// BuildLLM assembles the answer generator, guarded by a circuit
// breaker. fake_llm swaps in the echoing provider without a breaker.
func BuildLLM(cfg *config.Config, logger *zap.Logger) llm.Provider {
	if cfg.FakeLLM {
		return llm.NewFakeProvider()
	}
	return &guardedLLM{
		inner:   llm.NewHTTPProvider(cfg.LLMBaseURL, cfg.LLMModel),
		breaker: retry.NewBreaker("llm", logger),
	}
}

// guardedLLM runs provider calls through the circuit breaker. Streams
// are guarded at initiation only.
type guardedLLM struct {
	inner   llm.Provider
	breaker *retry.Breaker
}

func (g *guardedLLM) GenerateAnswer(ctx context.Context, prompt, query string) (string, error) {
	var answer string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = g.inner.GenerateAnswer(ctx, prompt, query)
		return genErr
	})
	return answer, err
}

func (g *guardedLLM) GenerateStream(ctx context.Context, prompt, query string) (<-chan string, <-chan error, error) {
	var tokens <-chan string
	var errs <-chan error
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var initErr error
		tokens, errs, initErr = g.inner.GenerateStream(ctx, prompt, query)
		return initErr
	})
	if err != nil {
		return nil, nil, err
	}
	return tokens, errs, nil
}

// BuildConversations picks the disk-backed store when conversation_dir
// is set, the in-memory store otherwise. The returned closer is a no-op
// for the memory store.
func BuildConversations(cfg *config.Config) (conversation.Store, func() error, error) {
	if cfg.ConversationDir != "" {
		store, err := conversation.NewBadgerStore(cfg.ConversationDir, cfg.MaxConversationMessages)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return conversation.NewMemoryStore(cfg.MaxConversationMessages), func() error { return nil }, nil
}
