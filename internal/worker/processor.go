package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"embedding-pipeline/internal/chunker"
	"embedding-pipeline/internal/entity"
	"embedding-pipeline/internal/repository/postgresql"
)

// JobStore is the job-state port. Every transition the processor makes
// goes through here; the claim is the only mutual-exclusion point.
type JobStore interface {
	Claim(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	ResetForRetry(ctx context.Context, id uuid.UUID, scheduledAt time.Time, errMsg string) error
}

// Embedder turns text segments into fixed-dimension vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter atomically replaces an entity's stored chunks.
type ChunkWriter interface {
	ReplaceForEntity(ctx context.Context, entityID string, chunks []entity.Chunk) error
}

// ThemeTagger recomputes and replaces the entity's theme links.
type ThemeTagger interface {
	TagEntity(ctx context.Context, entityID string) ([]entity.EntityThemeLink, error)
}

// Processor drives one claimed job through chunk -> embed -> store -> tag.
// All component errors are caught here, classified, and translated into a
// job status update; nothing propagates past the worker loop.
type Processor struct {
	jobs     JobStore
	chunks   *chunker.Chunker
	embedder Embedder
	store    ChunkWriter
	tagger   ThemeTagger
	backoff  Backoff
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewProcessor(jobs JobStore, ch *chunker.Chunker, embedder Embedder, store ChunkWriter, tagger ThemeTagger, backoff Backoff, log *zap.SugaredLogger) *Processor {
	return &Processor{
		jobs:     jobs,
		chunks:   ch,
		embedder: embedder,
		store:    store,
		tagger:   tagger,
		backoff:  backoff,
		now:      time.Now,
		log:      log,
	}
}

// Process claims the job and runs the pipeline. Losing the claim race (or
// receiving a stale dispatch) is not an error.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		p.log.Warnw("dispatched id is not a uuid", "job_id", jobID, "error", err)
		return err
	}

	job, err := p.jobs.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotClaimable) {
			p.log.Debugw("claim lost or stale dispatch", "job_id", jobID)
			return nil
		}
		return err
	}

	p.log.Infow("job claimed", "job_id", jobID, "entity_id", job.EntityID, "attempt", job.Attempts)

	if procErr := p.run(ctx, job); procErr != nil {
		p.fail(ctx, job, procErr)
		return nil
	}

	if err := p.jobs.MarkCompleted(ctx, id); err != nil {
		return err
	}
	p.log.Infow("job completed", "job_id", jobID, "entity_id", job.EntityID, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) run(ctx context.Context, job *entity.Job) error {
	segments := p.chunks.Chunk(job.Text)
	if len(segments) == 0 {
		return ErrNoChunks
	}

	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	chunks := make([]entity.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = entity.Chunk{
			EntityID:   job.EntityID,
			ChunkIndex: s.Index,
			Text:       s.Text,
			TokenCount: s.TokenCount,
			Embedding:  vectors[i],
		}
	}

	if err := p.store.ReplaceForEntity(ctx, job.EntityID, chunks); err != nil {
		return err
	}

	_, err = p.tagger.TagEntity(ctx, job.EntityID)
	return err
}

// fail translates a processing error into the next job state: transient
// errors retry with exponential backoff while attempts remain, everything
// else fails immediately.
func (p *Processor) fail(ctx context.Context, job *entity.Job, procErr error) {
	class := classify(procErr)
	msg := procErr.Error()

	if class == classTransient && job.Attempts < job.MaxAttempts {
		next := p.now().Add(p.backoff.Delay(job.Attempts))
		if err := p.jobs.ResetForRetry(ctx, job.ID, next, msg); err != nil {
			p.log.Errorw("retry reset failed", "job_id", job.ID.String(), "error", err)
			return
		}
		p.log.Warnw("job will retry", "job_id", job.ID.String(), "entity_id", job.EntityID,
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts, "next_run", next.Format(time.RFC3339), "error", msg)
		return
	}

	if err := p.jobs.MarkFailed(ctx, job.ID, msg); err != nil {
		p.log.Errorw("mark failed errored", "job_id", job.ID.String(), "error", err)
		return
	}
	p.log.Errorw("job failed", "job_id", job.ID.String(), "entity_id", job.EntityID,
		"class", class.String(), "attempt", job.Attempts, "error", msg)
}
