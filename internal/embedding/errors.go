package embedding

import "errors"

// Transient failures: the caller may retry with backoff.
var (
	ErrTimeout            = errors.New("embedding request timed out")
	ErrRateLimited        = errors.New("embedding service rate limited")
	ErrServiceUnavailable = errors.New("embedding service unavailable")
)

// ErrDimensionMismatch means the service returned vectors of a different
// length than configured — a model/version mismatch. Retrying is pointless;
// the job must be failed immediately.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
