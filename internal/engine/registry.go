package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RegisterToken validates and upserts a destination token for a wallet.
// Re-registering an existing token updates its metadata without duplicating
// wallet-index membership; a token moving to a different wallet is removed
// from the previous wallet's set first, so it belongs to at most one wallet.
func (e *Engine) RegisterToken(ctx context.Context, token, wallet, platform string) (*PushToken, error) {
	if !e.provider.ValidToken(token) {
		return nil, ErrInvalidTokenFormat
	}

	wallet = normalizeWallet(wallet)

	existing, found, err := e.getToken(ctx, token)
	if err != nil {
		return nil, err
	}

	rec := &PushToken{
		Token:         token,
		WalletAddress: wallet,
		Platform:      platform,
		RegisteredAt:  time.Now().UTC(),
		IsActive:      true,
	}
	if found {
		rec.RegisteredAt = existing.RegisteredAt
		if existing.WalletAddress != wallet {
			if err := e.store.SetRemove(ctx, e.walletKey(existing.WalletAddress), token); err != nil {
				return nil, err
			}
		}
	}

	if err := e.putToken(ctx, rec); err != nil {
		return nil, err
	}
	if err := e.store.SetAdd(ctx, e.walletKey(wallet), token); err != nil {
		return nil, err
	}

	e.logger.Info("push token registered",
		zap.String("wallet", wallet),
		zap.String("platform", platform),
	)

	return rec, nil
}

// UnregisterToken removes a token record and its wallet-index membership.
// An unknown token is a no-op returning false, not an error.
func (e *Engine) UnregisterToken(ctx context.Context, token string) (bool, error) {
	rec, found, err := e.getToken(ctx, token)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if err := e.store.Delete(ctx, e.tokenKey(token)); err != nil {
		return false, err
	}
	if err := e.store.SetRemove(ctx, e.walletKey(rec.WalletAddress), token); err != nil {
		return false, err
	}

	e.logger.Info("push token unregistered", zap.String("wallet", rec.WalletAddress))
	return true, nil
}

// TokensForWallet returns the wallet's currently active tokens.
func (e *Engine) TokensForWallet(ctx context.Context, wallet string) ([]PushToken, error) {
	wallet = normalizeWallet(wallet)

	members, err := e.store.SetMembers(ctx, e.walletKey(wallet))
	if err != nil {
		return nil, err
	}

	tokens := make([]PushToken, 0, len(members))
	for _, token := range members {
		rec, found, err := e.getToken(ctx, token)
		if err != nil {
			return nil, err
		}
		// Index members without a record are stale leftovers; skip them.
		if !found || !rec.IsActive {
			continue
		}
		tokens = append(tokens, *rec)
	}
	return tokens, nil
}

func (e *Engine) getToken(ctx context.Context, token string) (*PushToken, bool, error) {
	raw, found, err := e.store.Get(ctx, e.tokenKey(token))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	var rec PushToken
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("corrupt token record: %w", err)
	}
	return &rec, true, nil
}

func (e *Engine) putToken(ctx context.Context, rec *PushToken) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}
	return e.store.Set(ctx, e.tokenKey(rec.Token), string(data), 0)
}
