package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue dispatches job ids to workers. It is a wake-up channel only: the
// authoritative claim is the conditional update in Postgres, so duplicate
// or stale deliveries are harmless.
type Queue interface {
	Enqueue(ctx context.Context, jobID string, priority int) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, maxPerLane int64) (int64, error)
}

type lane struct {
	queueKey      string
	processingKey string
}

// redisDispatchQueue is a reliable queue with three priority lanes built
// on Redis lists: BRPopLPush moves an id from a lane's queue to its
// processing list, Ack removes it once the job's final state is durable.
// A hash remembers which processing list holds each id.
type redisDispatchQueue struct {
	rdb      *redis.Client
	claimMap string
	lanes    [3]lane // high, normal, low — claim order
}

// NewRedisDispatchQueue derives lane keys from prefix (e.g. "pipeline:jobs").
func NewRedisDispatchQueue(rdb *redis.Client, prefix string) Queue {
	mk := func(name string) lane {
		return lane{
			queueKey:      prefix + ":queue:" + name,
			processingKey: prefix + ":processing:" + name,
		}
	}
	return &redisDispatchQueue{
		rdb:      rdb,
		claimMap: prefix + ":claims",
		lanes:    [3]lane{mk("high"), mk("normal"), mk("low")},
	}
}

// laneFor maps the job's integer priority (higher processed first) onto a
// lane: >=2 high, 1 normal, <=0 low.
func (q *redisDispatchQueue) laneFor(priority int) lane {
	switch {
	case priority >= 2:
		return q.lanes[0]
	case priority == 1:
		return q.lanes[1]
	default:
		return q.lanes[2]
	}
}

func (q *redisDispatchQueue) Enqueue(ctx context.Context, jobID string, priority int) error {
	return q.rdb.LPush(ctx, q.laneFor(priority).queueKey, jobID).Err()
}

// ClaimBlocking polls the lanes in priority order with short blocking
// slots, so the call is mostly blocking but a high-priority arrival never
// waits behind a drained low lane for long.
func (q *redisDispatchQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if !forever && time.Now().After(deadline) {
			return "", redis.Nil
		}

		for _, ln := range q.lanes {
			wait := slot
			if !forever {
				remain := time.Until(deadline)
				if remain <= 0 {
					return "", redis.Nil
				}
				if remain < wait {
					wait = remain
				}
			}

			id, err := q.rdb.BRPopLPush(ctx, ln.queueKey, ln.processingKey, wait).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return "", err
			}
			if hErr := q.rdb.HSet(ctx, q.claimMap, id, ln.processingKey).Err(); hErr != nil {
				return "", hErr
			}
			return id, nil
		}
	}
}

func (q *redisDispatchQueue) Ack(ctx context.Context, jobID string) error {
	processingKey, err := q.rdb.HGet(ctx, q.claimMap, jobID).Result()
	if errors.Is(err, redis.Nil) {
		// No claim mapping: sweep everything, the id can only be in one list.
		for _, ln := range q.lanes {
			_ = q.rdb.LRem(ctx, ln.processingKey, 1, jobID).Err()
		}
		return nil
	}
	if err != nil {
		return err
	}

	if err := q.rdb.LRem(ctx, processingKey, 1, jobID).Err(); err != nil {
		return err
	}
	_ = q.rdb.HDel(ctx, q.claimMap, jobID).Err()
	return nil
}

// RequeueStale drains leftovers from the processing lists back into their
// queues — ids stranded there by a crashed worker. The Postgres claim
// dedupes, so moving a live id back is safe.
func (q *redisDispatchQueue) RequeueStale(ctx context.Context, maxPerLane int64) (int64, error) {
	var moved int64
	for _, ln := range q.lanes {
		for i := int64(0); i < maxPerLane; i++ {
			id, err := q.rdb.RPopLPush(ctx, ln.processingKey, ln.queueKey).Result()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, err
			}
			moved++
			_ = q.rdb.HDel(ctx, q.claimMap, id).Err()
		}
	}
	return moved, nil
}
