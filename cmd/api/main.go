package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ragspace/internal/api"
	"ragspace/internal/app"
	"ragspace/internal/config"
	"ragspace/internal/logging"
	"ragspace/internal/metrics"
	"ragspace/internal/prompt"
	"ragspace/internal/queue"
	"ragspace/internal/rag"
	"ragspace/internal/repository"
	"ragspace/internal/retry"
	"ragspace/internal/service"
	"ragspace/internal/storage"
	"ragspace/internal/vector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	objects, err := storage.NewMinioStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	embedder := app.BuildEmbedder(cfg, redisClient, m, logger)
	generator := app.BuildLLM(cfg, logger)

	conversations, closeConversations, err := app.BuildConversations(cfg)
	if err != nil {
		return err
	}
	defer closeConversations()

	composer, err := prompt.NewComposer(os.DirFS(cfg.PromptDir), cfg.PromptVersion)
	if err != nil {
		logger.Warn("prompt directory unusable, falling back to embedded prompts", zap.Error(err))
		if composer, err = prompt.NewComposer(nil, cfg.PromptVersion); err != nil {
			return err
		}
	}

	index := vector.NewPostgresIndex(pool, cfg.EmbeddingDimensions, logger)
	jobs := queue.NewRedisQueue(redisClient)

	documents := repository.NewPostgresDocumentRepository(pool)
	workspaces := service.NewWorkspaceService(
		repository.NewPostgresWorkspaceRepository(pool),
		repository.NewPostgresACLRepository(pool),
		documents,
		logger)

	uploads := service.NewUploadService(workspaces, documents, objects, jobs, index, cfg.MaxUploadBytes, logger)
	docService := service.NewDocumentService(workspaces, documents, objects, jobs, index, logger)

	pipeline := rag.NewPipeline(embedder, index, rag.NewContextBuilder(cfg.MaxContextChars), logger, m)
	answers := service.NewAnswerService(workspaces, pipeline, composer, generator, conversations,
		service.AnswerOptions{
			MaxTopK:       cfg.MaxTopK,
			HistoryLimit:  cfg.MaxConversationMessages,
			DefaultUseMMR: cfg.DefaultUseMMR,
			Retry: retry.Config{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseDelay:   cfg.Retry.BaseDelay(),
				MaxDelay:    cfg.Retry.MaxDelay(),
			},
		}, m, logger)

	router := api.NewRouter(api.Deps{
		Workspaces:     workspaces,
		Uploads:        uploads,
		Documents:      docService,
		Answers:        answers,
		Conversations:  conversations,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Registry:       registry,
		ReadyChecks: map[string]api.Pinger{
			"database": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"storage":  objects.Ping,
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("api stopped")
	return nil
}
