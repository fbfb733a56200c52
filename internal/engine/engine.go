package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes the engine. Zero values are replaced with defaults in New.
type Config struct {
	KeyPrefix       string        // namespace for every key the engine writes
	ProcessorBatch  int           // jobs dequeued per processor tick
	MaxRetries      int           // retry ceiling per queued job
	RetryDelay      time.Duration // fixed delay before a failed job re-enters the queue
	InvalidTokenTTL time.Duration // retention of quarantine records
	StatsTTL        time.Duration // retention of daily stat buckets
}

// Engine is the push-notification delivery engine. It is constructed once
// per process with its store and provider injected; all state lives in the
// store, so independent instances sharing one store stay consistent.
type Engine struct {
	store    Store
	provider Provider
	cfg      Config
	logger   *zap.Logger

	// ticking guards the processor against overlapping ticks.
	ticking atomic.Bool
}

// New creates an engine with the given dependencies.
func New(store Store, provider Provider, cfg Config, logger *zap.Logger) *Engine {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "push"
	}
	if cfg.ProcessorBatch == 0 {
		cfg.ProcessorBatch = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 60 * time.Second
	}
	if cfg.InvalidTokenTTL == 0 {
		cfg.InvalidTokenTTL = 30 * 24 * time.Hour
	}
	if cfg.StatsTTL == 0 {
		cfg.StatsTTL = 7 * 24 * time.Hour
	}

	return &Engine{
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

func (e *Engine) tokenKey(token string) string {
	return e.cfg.KeyPrefix + ":token:" + token
}

func (e *Engine) walletKey(wallet string) string {
	return e.cfg.KeyPrefix + ":wallet:" + wallet
}

func (e *Engine) invalidKey(token string) string {
	return e.cfg.KeyPrefix + ":invalid:" + token
}

func (e *Engine) queueKey() string {
	return e.cfg.KeyPrefix + ":queue"
}

func (e *Engine) statsKey(day string) string {
	return e.cfg.KeyPrefix + ":stats:" + day
}

// SendToWallet delivers a payload to every active token of a wallet. With
// immediate set, the tickets are returned to the caller; otherwise the send
// is queued fire-and-forget and only the job id is returned.
func (e *Engine) SendToWallet(ctx context.Context, wallet string, payload Payload, immediate bool) (*SendResult, error) {
	registered, err := e.TokensForWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if len(registered) == 0 {
		// No registered destinations is a normal outcome, not an error.
		return &SendResult{Tickets: []Ticket{}}, nil
	}

	tokens := make([]string, len(registered))
	for i, rec := range registered {
		tokens[i] = rec.Token
	}

	if immediate {
		tickets, err := e.SendBatch(ctx, tokens, payload)
		if err != nil {
			return nil, err
		}
		return &SendResult{Tickets: tickets}, nil
	}

	id, err := e.QueueNotification(ctx, tokens, payload, nil)
	if err != nil {
		return nil, err
	}
	return &SendResult{JobID: id, Queued: true}, nil
}

// SendToWallets queues one notification job covering every active token of
// the given wallets. Fan-out delivery is always asynchronous; callers consult
// stats or logs for the outcome.
func (e *Engine) SendToWallets(ctx context.Context, wallets []string, payload Payload) (*SendResult, error) {
	seen := make(map[string]struct{})
	var tokens []string

	for _, wallet := range wallets {
		registered, err := e.TokensForWallet(ctx, wallet)
		if err != nil {
			return nil, err
		}
		for _, rec := range registered {
			if _, dup := seen[rec.Token]; dup {
				continue
			}
			seen[rec.Token] = struct{}{}
			tokens = append(tokens, rec.Token)
		}
	}

	if len(tokens) == 0 {
		return &SendResult{Tickets: []Ticket{}}, nil
	}

	id, err := e.QueueNotification(ctx, tokens, payload, nil)
	if err != nil {
		return nil, err
	}
	return &SendResult{JobID: id, Queued: true}, nil
}
