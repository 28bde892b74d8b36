package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisClient is the subset of go-redis used by RedisQueue.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPopLPush(ctx context.Context, source, destination string, timeout time.Duration) *redis.StringCmd
	RPopLPush(ctx context.Context, source, destination string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// RedisQueue keeps jobs in a Redis list. A delivered job is parked on a
// processing list until it is acknowledged, so jobs held by a crashed
// process are recovered on the next Run. Retries wait in a sorted set
// scored by their due time.
type RedisQueue struct {
	client     RedisClient
	dispatcher *Dispatcher
	policy     Policy
	workers    int

	key        string
	processing string
	delayed    string
	dead       string

	pollTimeout time.Duration
	now         func() time.Time
}

// NewRedisQueue creates a queue stored under name, e.g. "queue:uploads".
func NewRedisQueue(client RedisClient, name string, d *Dispatcher, policy Policy, workers int) *RedisQueue {
	if workers < 1 {
		workers = 1
	}
	return &RedisQueue{
		client:      client,
		dispatcher:  d,
		policy:      policy,
		workers:     workers,
		key:         name,
		processing:  name + ":processing",
		delayed:     name + ":delayed",
		dead:        name + ":dead",
		pollTimeout: time.Second,
		now:         time.Now,
	}
}

// DeadKey is the list dead letters are pushed to.
func (q *RedisQueue) DeadKey() string {
	return q.dead
}

func (q *RedisQueue) Submit(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("redis LPUSH %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Run(ctx context.Context) error {
	if n, err := q.recover(ctx); err != nil {
		zap.L().Warn("failed to recover in-flight jobs", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("recovered in-flight jobs", zap.Int("count", n))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.promoteLoop(ctx)
	}()
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	zap.L().Info("redis queue started", zap.String("queue", q.key), zap.Int("workers", q.workers))
	wg.Wait()
	zap.L().Info("redis queue stopped", zap.String("queue", q.key))
	return nil
}

// recover moves everything left on the processing list back to the queue.
func (q *RedisQueue) recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *RedisQueue) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		raw, err := q.client.BRPopLPush(ctx, q.key, q.processing, q.pollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			zap.L().Error("redis BRPOPLPUSH failed", zap.String("queue", q.key), zap.Error(err))
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		q.handle(ctx, raw)
	}
}

// handle delivers one job. The entry stays on the processing list until the
// job succeeded or its retry or dead letter is written; if that write fails
// the entry is left parked for recover.
func (q *RedisQueue) handle(ctx context.Context, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		zap.L().Error("dropping undecodable job", zap.String("queue", q.key), zap.Error(err))
		dl := DeadLetter{Job: Job{Payload: json.RawMessage(strconv.Quote(raw))}, Error: err.Error(), FailedAt: q.now().UTC()}
		if q.persist(func(pctx context.Context) error { return q.pushDead(pctx, dl) }) {
			q.ack(raw)
		}
		return
	}

	job.Attempt++
	err := q.dispatcher.Dispatch(ctx, job)
	switch q.policy.decide(job.Attempt, err) {
	case retry:
		at := q.now().Add(q.policy.delay(job.Attempt))
		if !q.persist(func(pctx context.Context) error { return q.schedule(pctx, job, at) }) {
			zap.L().Error("failed to schedule retry, job left on processing list", zap.String("job_id", job.ID))
			return
		}
	case deadLetter:
		zap.L().Error("job dead-lettered",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		dl := DeadLetter{Job: job, Error: err.Error(), FailedAt: q.now().UTC()}
		if !q.persist(func(pctx context.Context) error { return q.pushDead(pctx, dl) }) {
			zap.L().Error("failed to push dead letter, job left on processing list", zap.String("job_id", job.ID))
			return
		}
	}
	q.ack(raw)
}

// persist runs write on a context that outlives worker shutdown.
func (q *RedisQueue) persist(write func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		zap.L().Warn("queue write failed", zap.String("queue", q.key), zap.Error(err))
		return false
	}
	return true
}

func (q *RedisQueue) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		zap.L().Warn("failed to ack job", zap.String("queue", q.key), zap.Error(err))
	}
}

func (q *RedisQueue) schedule(ctx context.Context, job Job, at time.Time) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.delayed, &redis.Z{Score: float64(at.UnixMilli()), Member: string(raw)}).Err()
}

func (q *RedisQueue) pushDead(ctx context.Context, dl DeadLetter) error {
	raw, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.dead, raw).Err()
}

func (q *RedisQueue) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				zap.L().Warn("failed to promote delayed jobs", zap.String("queue", q.delayed), zap.Error(err))
			}
		}
	}
}

// promoteDue moves retries whose due time has passed back onto the queue.
// ZREM decides ownership so concurrent promoters never double push.
func (q *RedisQueue) promoteDue(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, q.delayed, raw).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
