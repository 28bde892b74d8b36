package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher routes jobs to handlers by type. A panicking handler is turned
// into an error so the worker loop survives.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(jobType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

// Dispatch runs the handler for job. Unknown types fail permanently.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (err error) {
	d.mu.RLock()
	h, ok := d.handlers[job.Type]
	d.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoHandler, job.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("job handler panicked",
				zap.String("job_id", job.ID),
				zap.String("type", job.Type),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()

	start := time.Now()
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt))
	log.Debug("job started")
	err = h(ctx, job)
	if err != nil {
		log.Warn("job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	log.Info("job completed", zap.Duration("took", time.Since(start)))
	return nil
}
