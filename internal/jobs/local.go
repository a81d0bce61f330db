package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalEnqueuer runs each job in its own goroutine in this process. Used when no broker is configured.
type LocalEnqueuer struct {
	handler Handler
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewLocalEnqueuer returns an in-process enqueuer running jobs on handler.
func NewLocalEnqueuer(handler Handler, log *zap.Logger) *LocalEnqueuer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalEnqueuer{handler: handler, log: log, timeout: runTimeout}
}

// Enqueue starts the job and returns immediately. The job does not inherit request cancellation.
func (e *LocalEnqueuer) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		if err := e.handler.Run(runCtx, job); err != nil {
			e.log.Error("jobs: job failed", zap.String("type", string(job.Type)), zap.String("user_id", job.UserID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (e *LocalEnqueuer) Wait() {
	e.wg.Wait()
}
