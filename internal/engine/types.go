// Package engine implements the push-notification delivery engine: token
// registry, invalid-token quarantine, batch dispatch, the durable retry
// queue with its processor, and daily delivery statistics.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Platform identifies the client platform a token was issued for.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// Notification priority levels understood by the push provider.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// ErrInvalidTokenFormat is returned when a token fails the provider's
// format rule at registration time.
var ErrInvalidTokenFormat = errors.New("invalid push token format")

// ErrNoTokens is returned when a queue request carries no destinations.
var ErrNoTokens = errors.New("notification has no destination tokens")

// PushToken is one registered destination owned by a wallet.
type PushToken struct {
	Token         string    `json:"token"`
	WalletAddress string    `json:"walletAddress"`
	Platform      string    `json:"platform"`
	RegisteredAt  time.Time `json:"registeredAt"`
	IsActive      bool      `json:"isActive"`
}

// Payload is the notification content delivered to every destination of a
// send. Title and body emptiness and length are enforced at the HTTP
// boundary, not here.
type Payload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Subtitle string            `json:"subtitle,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    int               `json:"badge,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Message is one provider-bound message: a payload addressed to a single
// destination token.
type Message struct {
	To       string
	Title    string
	Body     string
	Subtitle string
	Sound    string
	Badge    int
	Priority string
	Data     map[string]string
}

// TicketStatus is the provider's per-message outcome classification.
type TicketStatus string

const (
	TicketOK    TicketStatus = "ok"
	TicketError TicketStatus = "error"
)

// ErrorReason is the closed set of provider error classifications the engine
// understands. Reasons the provider may add later map to ReasonUnknown, which
// is treated as transient: unknown failures are retried, never quarantined.
type ErrorReason string

const (
	ReasonNone                ErrorReason = ""
	ReasonDeviceNotRegistered ErrorReason = "DeviceNotRegistered"
	ReasonMessageTooBig       ErrorReason = "MessageTooBig"
	ReasonMessageRateExceeded ErrorReason = "MessageRateExceeded"
	ReasonInvalidCredentials  ErrorReason = "InvalidCredentials"
	ReasonUnknown             ErrorReason = "Unknown"
)

// ParseReason maps a provider error code onto the closed reason set.
func ParseReason(code string) ErrorReason {
	switch ErrorReason(code) {
	case ReasonNone:
		return ReasonNone
	case ReasonDeviceNotRegistered:
		return ReasonDeviceNotRegistered
	case ReasonMessageTooBig:
		return ReasonMessageTooBig
	case ReasonMessageRateExceeded:
		return ReasonMessageRateExceeded
	case ReasonInvalidCredentials:
		return ReasonInvalidCredentials
	default:
		return ReasonUnknown
	}
}

// Permanent reports whether the destination is gone for good. Only the
// provider's "device not registered" classification qualifies; everything
// else stays eligible for retry.
func (r ErrorReason) Permanent() bool {
	return r == ReasonDeviceNotRegistered
}

// Ticket is the per-message delivery outcome of one dispatch call,
// correlated back to the destination token.
type Ticket struct {
	Token   string       `json:"token"`
	Status  TicketStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Reason  ErrorReason  `json:"reason,omitempty"`
}

// Delivered reports whether the provider accepted the message.
func (t Ticket) Delivered() bool {
	return t.Status == TicketOK
}

// QueuedNotification is one durable retryable job: a payload targeting a set
// of tokens. Retries narrow Tokens to the still-failing subset and bump
// Attempts; the job is destroyed once delivered, exhausted, or empty.
type QueuedNotification struct {
	ID           string     `json:"id"`
	Tokens       []string   `json:"tokens"`
	Payload      Payload    `json:"payload"`
	Attempts     int        `json:"attempts"`
	QueuedAt     time.Time  `json:"queuedAt"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
}

// Stats is the observability snapshot exposed by GetStats.
type Stats struct {
	TotalTokens   int   `json:"totalTokens"`
	UniqueWallets int   `json:"uniqueWallets"`
	QueueSize     int64 `json:"queueSize"`
	SentToday     int64 `json:"sentToday"`
	FailedToday   int64 `json:"failedToday"`
}

// SendResult is returned by the wallet-level send operations: either the
// full ticket list of an immediate send, or the job id of a queued one.
type SendResult struct {
	Tickets []Ticket `json:"tickets,omitempty"`
	JobID   string   `json:"jobId,omitempty"`
	Queued  bool     `json:"queued"`
}

// Store is the durable key-value/list/set/hash store backing all engine
// state. Every method must be atomic; the store is the only shared mutable
// state, so multiple engine instances can safely share one store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PushTail(ctx context.Context, key string, values ...string) error
	PopHead(ctx context.Context, key string, count int) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)
	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	IncrField(ctx context.Context, key, field string, delta int64) (int64, error)
	GetFields(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Provider is the third-party push service. Send accepts at most
// MaxBatchSize messages and returns one ticket per message, in input order.
type Provider interface {
	ValidToken(token string) bool
	MaxBatchSize() int
	Send(ctx context.Context, msgs []Message) ([]Ticket, error)
}

// normalizeWallet lowercases a wallet address to its canonical form.
func normalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
