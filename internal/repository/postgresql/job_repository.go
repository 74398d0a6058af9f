package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"embedding-pipeline/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActiveJob: the entity already has a pending or
	// processing job. Rejected at enqueue time so replace-style writes
	// for one entity never interleave.
	ErrDuplicateActiveJob = errors.New("entity already has an active job")

	// ErrNotClaimable: the job is not pending, not yet due, or out of
	// attempts. Claim races resolve here: the losers see this error.
	ErrNotClaimable = errors.New("job not claimable")
)

const jobColumns = `
id, entity_id, entity_kind, status, priority, attempts, max_attempts,
error_message, text, scheduled_at, started_at, completed_at, created_at, updated_at`

type JobRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewJobRepository(pool *pgxpool.Pool, timeout time.Duration) *JobRepository {
	return &JobRepository{pool: pool, timeout: timeout}
}

// Enqueue inserts a pending job unless the entity already has an active
// one. The NOT EXISTS is the fast path; under READ COMMITTED two
// concurrent enqueues can both pass it, so the jobs_one_active_per_entity
// partial unique index is the real guard — its violation maps to the same
// rejection.
func (r *JobRepository) Enqueue(ctx context.Context, entityID string, kind entity.EntityKind, text string, priority, maxAttempts int) (uuid.UUID, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
INSERT INTO jobs (entity_id, entity_kind, status, priority, max_attempts, text, scheduled_at)
SELECT $1, $2, 'pending', $3, $4, $5, now()
WHERE NOT EXISTS (
    SELECT 1 FROM jobs WHERE entity_id = $1 AND status IN ('pending', 'processing')
)
RETURNING id;
`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, entityID, string(kind), priority, maxAttempts, text).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return uuid.Nil, ErrDuplicateActiveJob
		}
		return uuid.Nil, err
	}
	return id, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateSkipped records a job that failed the cheap enqueue-time pre-check.
// It never enters processing.
func (r *JobRepository) CreateSkipped(ctx context.Context, entityID string, kind entity.EntityKind, reason string) (uuid.UUID, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
INSERT INTO jobs (entity_id, entity_kind, status, priority, max_attempts, text, error_message, scheduled_at, completed_at)
VALUES ($1, $2, 'skipped', 0, 0, '', $3, now(), now())
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, entityID, string(kind), reason).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, q, id))
}

// GetLatestByEntity returns the most recent job for the entity, the one
// that represents its current processing state.
func (r *JobRepository) GetLatestByEntity(ctx context.Context, entityID string) (*entity.Job, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE entity_id = $1 ORDER BY created_at DESC LIMIT 1;`
	return scanJob(r.pool.QueryRow(ctx, q, entityID))
}

// Claim atomically moves one pending, due job to processing, recording the
// attempt. A single conditional UPDATE, so N racing workers produce exactly
// one winner.
func (r *JobRepository) Claim(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
UPDATE jobs
SET status = 'processing', attempts = attempts + 1, started_at = now(), updated_at = now()
WHERE id = $1
  AND status = 'pending'
  AND scheduled_at <= now()
  AND attempts < max_attempts
RETURNING ` + jobColumns + `;`
	job, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotClaimable
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs SET status = 'completed', error_message = NULL, completed_at = now(), updated_at = now()
WHERE id = $1 AND status = 'processing';`
	return r.exec(ctx, q, id)
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `
UPDATE jobs SET status = 'failed', error_message = $2, completed_at = now(), updated_at = now()
WHERE id = $1 AND status = 'processing';`
	return r.exec(ctx, q, id, errMsg)
}

// ResetForRetry returns a processing job to pending with its next run
// pushed out to scheduledAt. The last error is kept for operators.
func (r *JobRepository) ResetForRetry(ctx context.Context, id uuid.UUID, scheduledAt time.Time, errMsg string) error {
	const q = `
UPDATE jobs SET status = 'pending', error_message = $2, scheduled_at = $3, started_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'processing';`
	return r.exec(ctx, q, id, errMsg, scheduledAt)
}

// ReclaimStale resets presumed-crashed processing jobs back to pending,
// counting the lost run as a retry; jobs already out of attempts are
// failed instead. Returns (reclaimed, failed).
func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const reclaim = `
UPDATE jobs SET status = 'pending', attempts = attempts + 1, started_at = NULL,
                error_message = 'reclaimed from stale processing', updated_at = now()
WHERE status = 'processing' AND started_at < $1 AND attempts < max_attempts;`

	const fail = `
UPDATE jobs SET status = 'failed', error_message = 'worker timed out and retries exhausted',
                completed_at = now(), updated_at = now()
WHERE status = 'processing' AND started_at < $1 AND attempts >= max_attempts;`

	rc, err := r.pool.Exec(ctx, reclaim, cutoff)
	if err != nil {
		return 0, 0, err
	}
	fl, err := r.pool.Exec(ctx, fail, cutoff)
	if err != nil {
		return rc.RowsAffected(), 0, err
	}
	return rc.RowsAffected(), fl.RowsAffected(), nil
}

// FailExhaustedPending closes out pending jobs a reclaim pushed to their
// attempt limit; Claim refuses them, so the sweep finalizes them here.
func (r *JobRepository) FailExhaustedPending(ctx context.Context) (int64, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
UPDATE jobs SET status = 'failed',
                error_message = COALESCE(error_message, 'retries exhausted'),
                completed_at = now(), updated_at = now()
WHERE status = 'pending' AND attempts >= max_attempts;`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DueJob is the dispatch view of a pending job that is ready to run.
type DueJob struct {
	ID       uuid.UUID
	Priority int
}

// ListDue returns due pending jobs in claim order (priority first, then
// oldest schedule). Duplicate dispatch is harmless: Claim is the gate.
func (r *JobRepository) ListDue(ctx context.Context, limit int) ([]DueJob, error) {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT id, priority FROM jobs
WHERE status = 'pending' AND scheduled_at <= now() AND attempts < max_attempts
ORDER BY priority DESC, scheduled_at ASC
LIMIT $1;`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueJob
	for rows.Next() {
		var d DueJob
		if err := rows.Scan(&d.ID, &d.Priority); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (r *JobRepository) exec(ctx context.Context, q string, args ...any) error {
	ctx, cancel := opCtx(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job        entity.Job
		kindText   string
		statusText string
	)
	err := row.Scan(
		&job.ID,
		&job.EntityID,
		&kindText,
		&statusText,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ErrorMessage,
		&job.Text,
		&job.ScheduledAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.EntityKind = entity.EntityKind(kindText)
	job.Status = entity.JobStatus(statusText)
	return &job, nil
}
