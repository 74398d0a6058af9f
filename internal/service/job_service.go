package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"embedding-pipeline/internal/entity"
	"embedding-pipeline/internal/repository/postgresql"
)

var (
	ErrInvalidEntity = errors.New("invalid entity reference")

	// ErrDuplicateActiveJob mirrors the repository rejection so callers
	// can treat the concurrency violation distinctly from other errors.
	ErrDuplicateActiveJob = errors.New("entity already has an active job")
)

// JobRepository is the storage port for job rows.
type JobRepository interface {
	Enqueue(ctx context.Context, entityID string, kind entity.EntityKind, text string, priority, maxAttempts int) (uuid.UUID, error)
	CreateSkipped(ctx context.Context, entityID string, kind entity.EntityKind, reason string) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	GetLatestByEntity(ctx context.Context, entityID string) (*entity.Job, error)
}

// JobQueue is the small dispatch port used at enqueue time.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string, priority int) error
}

type JobService struct {
	repo        JobRepository
	queue       JobQueue
	minTextLen  int
	maxAttempts int
	log         *zap.SugaredLogger
}

func NewJobService(repo JobRepository, queue JobQueue, minTextLen, maxAttempts int, log *zap.SugaredLogger) *JobService {
	if minTextLen <= 0 {
		minTextLen = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &JobService{repo: repo, queue: queue, minTextLen: minTextLen, maxAttempts: maxAttempts, log: log}
}

type EnqueueRequest struct {
	EntityID   string
	EntityKind entity.EntityKind
	Text       string
	Priority   int
}

// EnqueueJob validates the request, records the job and dispatches it.
// Text failing the cheap length pre-check is marked skipped without ever
// entering the queue. The pipeline is fire-and-forget from here on.
func (s *JobService) EnqueueJob(ctx context.Context, req EnqueueRequest) (uuid.UUID, error) {
	if strings.TrimSpace(req.EntityID) == "" {
		return uuid.Nil, fmt.Errorf("%w: empty entity id", ErrInvalidEntity)
	}
	if !req.EntityKind.Valid() {
		return uuid.Nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidEntity, req.EntityKind)
	}

	trimmed := strings.TrimSpace(req.Text)
	if len(trimmed) < s.minTextLen {
		id, err := s.repo.CreateSkipped(ctx, req.EntityID, req.EntityKind, "text below minimum length")
		if err != nil {
			return uuid.Nil, err
		}
		s.log.Infow("job skipped at enqueue", "job_id", id.String(), "entity_id", req.EntityID, "reason", "text below minimum length")
		return id, nil
	}

	id, err := s.repo.Enqueue(ctx, req.EntityID, req.EntityKind, req.Text, req.Priority, s.maxAttempts)
	if err != nil {
		if errors.Is(err, postgresql.ErrDuplicateActiveJob) {
			return uuid.Nil, ErrDuplicateActiveJob
		}
		return uuid.Nil, err
	}

	if err := s.queue.Enqueue(ctx, id.String(), req.Priority); err != nil {
		// The row is already durable; the sweeper re-dispatches due
		// pending jobs, so a failed push is not fatal.
		s.log.Warnw("dispatch push failed, sweeper will pick it up", "job_id", id.String(), "error", err)
	}

	s.log.Infow("job enqueued", "job_id", id.String(), "entity_id", req.EntityID, "kind", string(req.EntityKind), "priority", req.Priority)
	return id, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// GetEntityStatus reports the entity's current processing state via its
// most recent job.
func (s *JobService) GetEntityStatus(ctx context.Context, entityID string) (*entity.Job, error) {
	return s.repo.GetLatestByEntity(ctx, entityID)
}
