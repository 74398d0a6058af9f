package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"embedding-pipeline/internal/chunker"
	"embedding-pipeline/internal/config"
	"embedding-pipeline/internal/embedding"
	"embedding-pipeline/internal/repository/postgresql"
	"embedding-pipeline/internal/service"
	"embedding-pipeline/internal/tagger"
	"embedding-pipeline/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	pool, err := postgresql.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalw("postgres connect failed", "error", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalw("redis connect failed", "error", err)
	}

	jobRepo := postgresql.NewJobRepository(pool, cfg.Postgres.QueryTimeout)
	chunkRepo := postgresql.NewChunkRepository(pool, cfg.Embedder.Dimension, cfg.Postgres.QueryTimeout)
	themeRepo := postgresql.NewThemeRepository(pool, cfg.Postgres.QueryTimeout)
	queue := service.NewRedisDispatchQueue(rdb, cfg.Redis.KeyPrefix)

	embedder := embedding.NewClient(embedding.Config{
		BaseURL:       cfg.Embedder.BaseURL,
		APIKey:        cfg.Embedder.APIKey,
		Model:         cfg.Embedder.Model,
		Dimension:     cfg.Embedder.Dimension,
		MaxBatch:      cfg.Embedder.MaxBatch,
		MaxConcurrent: cfg.Embedder.MaxConcurrent,
		Timeout:       cfg.Embedder.Timeout,
	})

	splitter := chunker.New(chunker.Options{
		SingleChunkThreshold: cfg.Chunker.SingleChunkThreshold,
		TargetSize:           cfg.Chunker.TargetSize,
		OverlapSize:          cfg.Chunker.OverlapSize,
		MinSize:              cfg.Chunker.MinSize,
		MaxSize:              cfg.Chunker.MaxSize,
	})

	themeTagger := tagger.New(chunkRepo, themeRepo, themeRepo, tagger.Config{
		Policy:        cfg.Tagger.Policy,
		TopN:          cfg.Tagger.TopN,
		Threshold:     cfg.Tagger.Threshold,
		MaxLinks:      cfg.Tagger.MaxLinks,
		ClampNegative: cfg.Tagger.ClampNegative,
	}, logger)

	backoff := worker.Backoff{Base: cfg.Worker.BackoffBase, Max: cfg.Worker.BackoffMax}
	processor := worker.NewProcessor(jobRepo, splitter, embedder, chunkRepo, themeTagger, backoff, logger)

	sweeper := worker.NewSweeper(jobRepo, queue, cfg.Worker.SweepInterval, cfg.Worker.StaleAfter, logger)
	go sweeper.Run(ctx)

	workers := worker.NewPool(queue, processor, cfg.Worker.Count, logger)

	logger.Infow("worker starting",
		"workers", cfg.Worker.Count,
		"embed_model", cfg.Embedder.Model,
		"embed_dimension", cfg.Embedder.Dimension,
		"tagger_policy", string(cfg.Tagger.Policy),
	)
	workers.Run(ctx)

	logger.Infow("worker stopped")
}
