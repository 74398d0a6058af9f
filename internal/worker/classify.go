package worker

import (
	"errors"

	"embedding-pipeline/internal/embedding"
	"embedding-pipeline/internal/repository/postgresql"
	"embedding-pipeline/internal/tagger"
)

// ErrNoChunks: the claimed text produced zero segments. Validation
// failure — retrying the same empty text is pointless.
var ErrNoChunks = errors.New("text produced no chunks")

// failureClass maps any processing error onto the job state machine.
type failureClass int

const (
	// classTransient: retry with backoff up to maxAttempts.
	classTransient failureClass = iota
	// classFatal: fail immediately, attempts not exhausted but retrying
	// cannot succeed; needs operator intervention.
	classFatal
	// classValidation: fail immediately, bad input.
	classValidation
)

func classify(err error) failureClass {
	switch {
	case errors.Is(err, ErrNoChunks):
		return classValidation
	case errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, postgresql.ErrDimensionMismatch),
		errors.Is(err, tagger.ErrDimensionMismatch),
		errors.Is(err, tagger.ErrEmptyCatalog):
		return classFatal
	default:
		// Timeouts, rate limits, unavailable services, storage hiccups:
		// all presumed to resolve on their own.
		return classTransient
	}
}

func (c failureClass) String() string {
	switch c {
	case classFatal:
		return "fatal"
	case classValidation:
		return "validation"
	default:
		return "transient"
	}
}
