package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type capturedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedServer answers /embeddings with deterministic vectors: vec[0] holds
// the batch-local input index so positional alignment is checkable.
func embedServer(t *testing.T, dim int, requests *[]capturedRequest) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		*requests = append(*requests, req)
		mu.Unlock()

		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			var n float32
			fmt.Sscanf(req.Input[i], "text-%f", &n)
			vec[0] = n
			data[i] = item{Embedding: vec}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func inputs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d", i)
	}
	return out
}

func TestEmbedBatch_SplitsIntoBatches(t *testing.T) {
	var requests []capturedRequest
	srv := embedServer(t, 4, &requests)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Dimension: 4, MaxBatch: 3, MaxConcurrent: 1})

	vecs, err := c.EmbedBatch(context.Background(), inputs(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 7 {
		t.Fatalf("expected 7 vectors, got %d", len(vecs))
	}
	if len(requests) != 3 {
		t.Fatalf("expected 3 requests for 7 inputs at batch size 3, got %d", len(requests))
	}
	total := 0
	for _, r := range requests {
		if len(r.Input) > 3 {
			t.Fatalf("batch exceeds max size: %d", len(r.Input))
		}
		total += len(r.Input)
	}
	if total != 7 {
		t.Fatalf("inputs lost across batches: sent %d", total)
	}
}

func TestEmbedBatch_KeepsPositionalAlignment(t *testing.T) {
	var requests []capturedRequest
	srv := embedServer(t, 4, &requests)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Dimension: 4, MaxBatch: 2, MaxConcurrent: 4})

	vecs, err := c.EmbedBatch(context.Background(), inputs(9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Fatalf("vector %d misaligned: marker %f", i, v[0])
		}
	}
}

func TestEmbedBatch_EmptyInputIsNoop(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Dimension: 4})
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", vecs, err)
	}
}

func TestEmbedBatch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Dimension: 4})
	if _, err := c.EmbedBatch(context.Background(), inputs(2)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestEmbedBatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Dimension: 4})
	if _, err := c.EmbedBatch(context.Background(), inputs(2)); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestEmbedBatch_ConnectionRefusedIsUnavailable(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Dimension: 4})
	if _, err := c.EmbedBatch(context.Background(), inputs(1)); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestEmbedBatch_WrongDimensionIsFatal(t *testing.T) {
	var requests []capturedRequest
	srv := embedServer(t, 3, &requests) // serves dim 3
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Dimension: 4})
	if _, err := c.EmbedBatch(context.Background(), inputs(2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEmbedBatch_SendsAuthAndModel(t *testing.T) {
	var gotAuth string
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req capturedRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range data {
			data[i] = item{Embedding: make([]float32, 4)}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "embed-small", Dimension: 4})
	if _, err := c.EmbedBatch(context.Background(), inputs(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
	if gotModel != "embed-small" {
		t.Fatalf("expected configured model in request, got %q", gotModel)
	}
}
