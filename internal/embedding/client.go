package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Dimension is the expected vector length. Responses of any other
	// length are rejected with ErrDimensionMismatch.
	Dimension int
	// MaxBatch caps how many inputs go into a single request.
	MaxBatch int
	// MaxConcurrent bounds in-flight requests system-wide; the cap is
	// shared across all workers holding this client.
	MaxConcurrent int
	Timeout       time.Duration
}

// Client calls a remote OpenAI-compatible /embeddings endpoint. It batches
// inputs, enforces a per-call timeout and a shared concurrency cap, and
// returns vectors positionally aligned with the inputs.
type Client struct {
	baseURL  string
	apiKey   string
	model    string
	dim      int
	maxBatch int
	timeout  time.Duration
	httpc    *http.Client
	sem      *semaphore.Weighted
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 64
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		dim:      cfg.Dimension,
		maxBatch: cfg.MaxBatch,
		timeout:  cfg.Timeout,
		httpc:    &http.Client{Timeout: cfg.Timeout},
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Dimension returns the configured vector length D.
func (c *Client) Dimension() int { return c.dim }

// EmbedBatch embeds texts in batches of at most MaxBatch, fanning batches
// out under the shared concurrency cap. Returns nil for empty input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += c.maxBatch {
		end := start + c.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			if err := c.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer c.sem.Release(1)

			vecs, err := c.embedOnce(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.model, Input: batch})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, resp.Status)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, resp.Status)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(parsed.Data), len(batch))
	}

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != c.dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d.Embedding), c.dim)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
