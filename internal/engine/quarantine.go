package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pushgate/internal/metrics"
)

// IsQuarantined reports whether a token currently carries an invalid-token
// record. O(1): a single existence check against the store.
func (e *Engine) IsQuarantined(ctx context.Context, token string) (bool, error) {
	return e.store.Exists(ctx, e.invalidKey(token))
}

// Quarantine permanently excludes a token from sends for the retention
// window, deactivates its registry record and removes it from the wallet
// index. Idempotent, and safe to call on unknown tokens: once the record
// expires the token may legally be re-registered.
func (e *Engine) Quarantine(ctx context.Context, token string) error {
	invalidatedAt := time.Now().UTC().Format(time.RFC3339)
	if err := e.store.Set(ctx, e.invalidKey(token), invalidatedAt, e.cfg.InvalidTokenTTL); err != nil {
		return err
	}

	rec, found, err := e.getToken(ctx, token)
	if err != nil {
		return err
	}
	if found {
		rec.IsActive = false
		if err := e.putToken(ctx, rec); err != nil {
			return err
		}
		if err := e.store.SetRemove(ctx, e.walletKey(rec.WalletAddress), token); err != nil {
			return err
		}
	}

	metrics.RecordTokenQuarantined()
	e.logger.Warn("push token quarantined", zap.Bool("was_registered", found))
	return nil
}
