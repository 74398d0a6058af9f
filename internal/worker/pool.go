package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"embedding-pipeline/internal/service"
)

// Pool runs N workers fed by a single dispatch listener. Workers only
// compete at the atomic claim inside Process; everything after a won claim
// is single-owner.
type Pool struct {
	queue      service.Queue
	processor  *Processor
	workers    int
	claimDelay time.Duration
	log        *zap.SugaredLogger
}

func NewPool(queue service.Queue, processor *Processor, workers int, log *zap.SugaredLogger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		log:        log,
	}
}

func (p *Pool) Run(ctx context.Context) {
	p.log.Infow("worker pool started", "workers", p.workers)

	jobCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for jobID := range jobCh {
				if err := p.processor.Process(ctx, jobID); err != nil {
					p.log.Errorw("process error", "worker", n, "job_id", jobID, "error", err)
				}

				// Always ack: the job's final state is already durable in
				// Postgres (or the sweeper will re-dispatch it).
				if err := p.queue.Ack(ctx, jobID); err != nil {
					p.log.Errorw("ack error", "worker", n, "job_id", jobID, "error", err)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			p.log.Infow("worker pool stopped")
			return
		default:
			jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// redis.Nil on an empty slot or ctx cancel — not fatal.
				continue
			}
			select {
			case jobCh <- jobID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}
