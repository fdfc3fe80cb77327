package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragspace/internal/app"
	"ragspace/internal/config"
	"ragspace/internal/logging"
	"ragspace/internal/metrics"
	"ragspace/internal/queue"
	"ragspace/internal/repository"
	"ragspace/internal/retry"
	"ragspace/internal/storage"
	"ragspace/internal/textsplit"
	"ragspace/internal/vector"
	"ragspace/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "listen address for worker metrics")
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

	metricsServer := &http.Server{
		Addr:              *metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer metricsServer.Close()

	processor := worker.NewProcessor(
		repository.NewPostgresDocumentRepository(pool),
		vector.NewPostgresIndex(pool, cfg.EmbeddingDimensions, logger),
		objects,
		worker.NewExtractorRegistry(),
		textsplit.New(cfg.TextChunkerMode, cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
		},
		m, logger)

	pool_ := worker.NewPool(queue.NewRedisQueue(redisClient), processor, cfg.WorkerConcurrency, logger)
	logger.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := pool_.Run(ctx); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
