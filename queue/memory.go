package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryQueue is an in-process queue backed by a buffered channel and a
// fixed pool of workers. Jobs do not survive a restart.
type MemoryQueue struct {
	jobs       chan Job
	dispatcher *Dispatcher
	policy     Policy
	workers    int
	sink       DeadLetterSink

	mu   sync.Mutex
	dead []DeadLetter
}

// NewMemoryQueue creates a queue holding up to capacity waiting jobs.
// A nil sink keeps dead letters in memory only.
func NewMemoryQueue(d *Dispatcher, policy Policy, workers, capacity int, sink DeadLetterSink) *MemoryQueue {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 100
	}
	return &MemoryQueue{
		jobs:       make(chan Job, capacity),
		dispatcher: d,
		policy:     policy,
		workers:    workers,
		sink:       sink,
	}
}

// Submit never blocks; a full buffer yields ErrQueueFull.
func (q *MemoryQueue) Submit(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// worker has returned. Pending retries are dropped on shutdown.
func (q *MemoryQueue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	zap.L().Info("memory queue started", zap.Int("workers", q.workers))
	wg.Wait()
	zap.L().Info("memory queue stopped")
	return nil
}

func (q *MemoryQueue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.handle(ctx, job)
		}
	}
}

func (q *MemoryQueue) handle(ctx context.Context, job Job) {
	job.Attempt++
	err := q.dispatcher.Dispatch(ctx, job)

	switch q.policy.decide(job.Attempt, err) {
	case retry:
		go q.requeue(ctx, job, q.policy.delay(job.Attempt))
	case deadLetter:
		q.deadLetter(ctx, job, err)
	}
}

func (q *MemoryQueue) requeue(ctx context.Context, job Job, after time.Duration) {
	timer := time.NewTimer(after)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	select {
	case q.jobs <- job:
	case <-ctx.Done():
	}
}

func (q *MemoryQueue) deadLetter(ctx context.Context, job Job, cause error) {
	dl := DeadLetter{Job: job, Error: cause.Error(), FailedAt: time.Now().UTC()}
	zap.L().Error("job dead-lettered",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(cause),
	)

	q.mu.Lock()
	q.dead = append(q.dead, dl)
	q.mu.Unlock()

	if q.sink != nil {
		if err := q.sink.DeadLetter(ctx, dl); err != nil {
			zap.L().Warn("dead-letter sink failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// DeadLetters returns a copy of the jobs that will not run again.
func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}
