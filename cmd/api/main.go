package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"embedding-pipeline/internal/config"
	"embedding-pipeline/internal/repository/postgresql"
	"embedding-pipeline/internal/service"
	httptransport "embedding-pipeline/internal/transport/http"
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

	jobSvc := service.NewJobService(jobRepo, queue, cfg.Worker.MinTextLen, cfg.Worker.MaxAttempts, logger)
	searchSvc := service.NewSearchService(chunkRepo, themeRepo)

	handler := httptransport.NewHandler(jobSvc, searchSvc)
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httptransport.Routes(handler, logger),
	}

	go func() {
		logger.Infow("api listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("http server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
	logger.Infow("api stopped")
}
