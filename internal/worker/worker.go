// Package worker runs the recurring processor tick that drains the retry
// queue.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Processor is one tick of queue draining. Implementations must tolerate
// overlapping calls; the engine's tick is guarded internally.
type Processor interface {
	ProcessQueue(ctx context.Context) error
}

// Worker drives a Processor on a fixed interval.
type Worker struct {
	proc     Processor
	interval time.Duration
	logger   *zap.Logger
}

// New creates a worker. A zero interval defaults to 5 seconds.
func New(proc Processor, interval time.Duration, logger *zap.Logger) *Worker {
	if interval == 0 {
		interval = 5 * time.Second
	}

	return &Worker{
		proc:     proc,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the polling loop until ctx is cancelled. A failed tick is
// logged and the loop continues; a store outage must not take down the
// scheduler.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			if err := w.proc.ProcessQueue(ctx); err != nil {
				w.logger.Error("queue tick failed", zap.Error(err))
			}
		}
	}
}
