package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"embedding-pipeline/internal/repository/postgresql"
	"embedding-pipeline/internal/service"
)

// SweepStore is the recovery-side view of the job table.
type SweepStore interface {
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, int64, error)
	FailExhaustedPending(ctx context.Context) (int64, error)
	ListDue(ctx context.Context, limit int) ([]postgresql.DueJob, error)
}

// Sweeper is the periodic reaper: it rescues jobs stuck in processing
// behind a crashed worker, finalizes jobs that are out of attempts, and
// re-dispatches due pending jobs (backoff retries included) into the
// queue lanes.
type Sweeper struct {
	jobs       SweepStore
	queue      service.Queue
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        *zap.SugaredLogger
}

func NewSweeper(jobs SweepStore, queue service.Queue, interval, staleAfter time.Duration, log *zap.SugaredLogger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Sweeper{
		jobs:       jobs,
		queue:      queue,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      100,
		log:        log,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	reclaimed, timedOut, err := s.jobs.ReclaimStale(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		s.log.Errorw("stale reclaim failed", "error", err)
	} else if reclaimed > 0 || timedOut > 0 {
		s.log.Infow("stale sweep", "reclaimed", reclaimed, "timed_out", timedOut)
	}

	exhausted, err := s.jobs.FailExhaustedPending(ctx)
	if err != nil {
		s.log.Errorw("exhausted sweep failed", "error", err)
	} else if exhausted > 0 {
		s.log.Infow("exhausted jobs failed", "count", exhausted)
	}

	if _, err := s.queue.RequeueStale(ctx, int64(s.batch)); err != nil {
		s.log.Errorw("queue requeue failed", "error", err)
	}

	due, err := s.jobs.ListDue(ctx, s.batch)
	if err != nil {
		s.log.Errorw("listing due jobs failed", "error", err)
		return
	}
	for _, d := range due {
		if err := s.queue.Enqueue(ctx, d.ID.String(), d.Priority); err != nil {
			s.log.Errorw("re-dispatch failed", "job_id", d.ID.String(), "error", err)
		}
	}
}
