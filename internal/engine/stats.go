package engine

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pushgate/internal/metrics"
)

const statsDayFormat = "2006-01-02"

// RecordSent increments today's UTC sent counter.
func (e *Engine) RecordSent(ctx context.Context, count int) error {
	return e.bumpStat(ctx, "sent", count)
}

// RecordFailed increments today's UTC failed counter.
func (e *Engine) RecordFailed(ctx context.Context, count int) error {
	return e.bumpStat(ctx, "failed", count)
}

func (e *Engine) bumpStat(ctx context.Context, field string, count int) error {
	if count <= 0 {
		return nil
	}

	key := e.statsKey(time.Now().UTC().Format(statsDayFormat))
	if _, err := e.store.IncrField(ctx, key, field, int64(count)); err != nil {
		return err
	}
	// Retention window refreshed on write; buckets go quiet after their day
	// ends and expire on schedule.
	if err := e.store.Expire(ctx, key, e.cfg.StatsTTL); err != nil {
		return err
	}

	if field == "sent" {
		metrics.RecordNotificationsSent(count)
	} else {
		metrics.RecordNotificationsFailed(count)
	}
	return nil
}

// Dispatch-side stat recording never fails the send that produced it:
// tickets are already in hand, so a stats write error is only logged.
func (e *Engine) recordSent(ctx context.Context, count int) {
	if err := e.RecordSent(ctx, count); err != nil {
		e.logger.Error("failed to record sent stats", zap.Error(err))
	}
}

func (e *Engine) recordFailed(ctx context.Context, count int) {
	if err := e.RecordFailed(ctx, count); err != nil {
		e.logger.Error("failed to record failed stats", zap.Error(err))
	}
}

// GetStats returns the observability snapshot: registry and index sizes,
// queue depth, and today's delivery counters. Token and wallet totals come
// from a key-space scan, so the call is O(n) in registry size.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	tokenKeys, err := e.store.Scan(ctx, e.cfg.KeyPrefix+":token:*")
	if err != nil {
		return nil, err
	}
	walletKeys, err := e.store.Scan(ctx, e.cfg.KeyPrefix+":wallet:*")
	if err != nil {
		return nil, err
	}
	queueSize, err := e.store.ListLen(ctx, e.queueKey())
	if err != nil {
		return nil, err
	}

	fields, err := e.store.GetFields(ctx, e.statsKey(time.Now().UTC().Format(statsDayFormat)))
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalTokens:   len(tokenKeys),
		UniqueWallets: len(walletKeys),
		QueueSize:     queueSize,
	}
	if v, ok := fields["sent"]; ok {
		stats.SentToday, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["failed"]; ok {
		stats.FailedToday, _ = strconv.ParseInt(v, 10, 64)
	}

	metrics.SetQueueDepth(queueSize)
	return stats, nil
}
