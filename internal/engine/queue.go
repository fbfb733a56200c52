package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pushgate/internal/metrics"
)

// QueueNotification appends a new job to the tail of the durable queue and
// returns its id. Queued delivery is fire-and-forget: the outcome surfaces
// only through stats and logs.
func (e *Engine) QueueNotification(ctx context.Context, tokens []string, payload Payload, scheduledFor *time.Time) (string, error) {
	if len(tokens) == 0 {
		return "", ErrNoTokens
	}

	job := QueuedNotification{
		ID:           uuid.New().String(),
		Tokens:       tokens,
		Payload:      payload,
		Attempts:     0,
		QueuedAt:     time.Now().UTC(),
		ScheduledFor: scheduledFor,
	}

	if err := e.pushJob(ctx, &job); err != nil {
		return "", err
	}

	metrics.RecordNotificationEnqueued()
	e.logger.Info("notification queued",
		zap.String("id", job.ID),
		zap.Int("tokens", len(tokens)),
		zap.Bool("scheduled", scheduledFor != nil),
	)
	return job.ID, nil
}

// ProcessQueue runs one processor tick: it drains up to the configured batch
// from the head of the queue and dispatches each job. Re-entrant calls while
// a tick is still running are no-ops; the atomic flag keeps at most one tick
// in flight, so queue mutations within a tick need no further locking.
//
// A store failure aborts the current tick only; the caller's loop carries on
// to the next tick.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	if !e.ticking.CompareAndSwap(false, true) {
		return nil
	}
	defer e.ticking.Store(false)

	metrics.RecordProcessorTick()

	raws, err := e.store.PopHead(ctx, e.queueKey(), e.cfg.ProcessorBatch)
	if err != nil {
		return fmt.Errorf("dequeue failed: %w", err)
	}

	for _, raw := range raws {
		var job QueuedNotification
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Poison entry: dropping it is the only way to keep the queue moving.
			e.logger.Error("dropping malformed queue entry", zap.Error(err))
			continue
		}
		if err := e.processJob(ctx, &job); err != nil {
			e.logger.Error("job processing failed",
				zap.Error(err),
				zap.String("id", job.ID),
				zap.Int("attempts", job.Attempts),
			)
		}
	}

	return nil
}

func (e *Engine) processJob(ctx context.Context, job *QueuedNotification) error {
	now := time.Now().UTC()

	// Not due yet: back to the tail unchanged. Deferral costs no attempt.
	if job.ScheduledFor != nil && job.ScheduledFor.After(now) {
		return e.pushJob(ctx, job)
	}

	if job.Attempts >= e.cfg.MaxRetries {
		e.logger.Warn("retry ceiling reached, dropping job",
			zap.String("id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Int("tokens", len(job.Tokens)),
		)
		e.recordFailed(ctx, len(job.Tokens))
		return nil
	}

	tickets, err := e.SendBatch(ctx, job.Tokens, job.Payload)
	if err != nil {
		// The store failed before anything was sent; keep the job intact
		// for the next tick rather than losing it.
		if pushErr := e.pushJob(ctx, job); pushErr != nil {
			return fmt.Errorf("dispatch failed (%w) and requeue failed: %w", err, pushErr)
		}
		return err
	}

	// Permanent failures were quarantined during dispatch and are never
	// retried; only transient failures remain candidates.
	var retry []string
	for _, ticket := range tickets {
		if !ticket.Delivered() && !ticket.Reason.Permanent() {
			retry = append(retry, ticket.Token)
		}
	}

	if len(retry) == 0 {
		e.logger.Info("job complete",
			zap.String("id", job.ID),
			zap.Int("attempts", job.Attempts+1),
		)
		return nil
	}

	next := now.Add(e.cfg.RetryDelay)
	requeued := QueuedNotification{
		ID:           job.ID,
		Tokens:       retry,
		Payload:      job.Payload,
		Attempts:     job.Attempts + 1,
		QueuedAt:     job.QueuedAt,
		ScheduledFor: &next,
	}

	e.logger.Info("job requeued with failing tokens",
		zap.String("id", job.ID),
		zap.Int("attempts", requeued.Attempts),
		zap.Int("remaining", len(retry)),
	)
	return e.pushJob(ctx, &requeued)
}

func (e *Engine) pushJob(ctx context.Context, job *QueuedNotification) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return e.store.PushTail(ctx, e.queueKey(), string(data))
}
