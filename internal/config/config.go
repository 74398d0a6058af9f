package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"embedding-pipeline/internal/tagger"
)

type PostgresConfig struct {
	DSN string
	// QueryTimeout bounds every single storage call.
	QueryTimeout time.Duration
}

type RedisConfig struct {
	Addr      string
	KeyPrefix string
}

type HTTPConfig struct {
	Addr string
}

type EmbedderConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Dimension     int
	MaxBatch      int
	MaxConcurrent int
	Timeout       time.Duration
}

type ChunkerConfig struct {
	SingleChunkThreshold int
	TargetSize           int
	OverlapSize          int
	MinSize              int
	MaxSize              int
}

type TaggerConfig struct {
	Policy        tagger.Policy
	TopN          int
	Threshold     float64
	MaxLinks      int
	ClampNegative bool
}

type WorkerConfig struct {
	Count         int
	MaxAttempts   int
	MinTextLen    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

type Config struct {
	Postgres PostgresConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	Embedder EmbedderConfig
	Chunker  ChunkerConfig
	Tagger   TaggerConfig
	Worker   WorkerConfig
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("missing env: POSTGRES_DSN")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return nil, fmt.Errorf("missing env: REDIS_ADDR")
	}

	cfg := &Config{
		Postgres: PostgresConfig{
			DSN:          dsn,
			QueryTimeout: envDurationOr("POSTGRES_QUERY_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:      redisAddr,
			KeyPrefix: envOr("REDIS_KEY_PREFIX", "pipeline:jobs"),
		},
		HTTP: HTTPConfig{
			Addr: envOr("HTTP_ADDR", ":8080"),
		},
		Embedder: EmbedderConfig{
			BaseURL:       envOr("EMBED_BASE_URL", "https://api.openai.com/v1"),
			APIKey:        os.Getenv("EMBED_API_KEY"),
			Model:         envOr("EMBED_MODEL", "text-embedding-3-small"),
			Dimension:     envIntOr("EMBED_DIMENSION", 1536),
			MaxBatch:      envIntOr("EMBED_MAX_BATCH", 64),
			MaxConcurrent: envIntOr("EMBED_MAX_CONCURRENT", 4),
			Timeout:       envDurationOr("EMBED_TIMEOUT", 30*time.Second),
		},
		Chunker: ChunkerConfig{
			SingleChunkThreshold: envIntOr("CHUNK_SINGLE_THRESHOLD", 1000),
			TargetSize:           envIntOr("CHUNK_TARGET_SIZE", 750),
			OverlapSize:          envIntOr("CHUNK_OVERLAP_SIZE", 100),
			MinSize:              envIntOr("CHUNK_MIN_SIZE", 300),
			MaxSize:              envIntOr("CHUNK_MAX_SIZE", 1500),
		},
		Tagger: TaggerConfig{
			Policy:        tagger.Policy(envOr("TAGGER_POLICY", string(tagger.PolicyTopN))),
			TopN:          envIntOr("TAGGER_TOP_N", 10),
			Threshold:     envFloatOr("TAGGER_THRESHOLD", 0.28),
			MaxLinks:      envIntOr("TAGGER_MAX_LINKS", 100),
			ClampNegative: envBoolOr("TAGGER_CLAMP_NEGATIVE", true),
		},
		Worker: WorkerConfig{
			Count:         envIntOr("WORKERS", 4),
			MaxAttempts:   envIntOr("JOB_MAX_ATTEMPTS", 3),
			MinTextLen:    envIntOr("JOB_MIN_TEXT_LEN", 20),
			BackoffBase:   envDurationOr("RETRY_BACKOFF_BASE", 30*time.Second),
			BackoffMax:    envDurationOr("RETRY_BACKOFF_MAX", 30*time.Minute),
			StaleAfter:    envDurationOr("JOB_STALE_AFTER", 30*time.Minute),
			SweepInterval: envDurationOr("SWEEP_INTERVAL", 30*time.Second),
		},
	}

	if cfg.Tagger.Policy != tagger.PolicyTopN && cfg.Tagger.Policy != tagger.PolicyThreshold {
		return nil, fmt.Errorf("invalid TAGGER_POLICY: %q", cfg.Tagger.Policy)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloatOr(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
