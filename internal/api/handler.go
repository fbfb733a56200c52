// Package api is the thin HTTP facade over the delivery engine: request
// parsing, boundary validation, and response translation only.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pushgate/internal/engine"
)

const (
	maxTitleLen = 200
	maxBodyLen  = 2000
)

// Engine defines the delivery-engine operations the HTTP layer exposes.
type Engine interface {
	RegisterToken(ctx context.Context, token, wallet, platform string) (*engine.PushToken, error)
	UnregisterToken(ctx context.Context, token string) (bool, error)
	TokensForWallet(ctx context.Context, wallet string) ([]engine.PushToken, error)
	SendToWallet(ctx context.Context, wallet string, payload engine.Payload, immediate bool) (*engine.SendResult, error)
	SendToWallets(ctx context.Context, wallets []string, payload engine.Payload) (*engine.SendResult, error)
	SendBatch(ctx context.Context, tokens []string, payload engine.Payload) ([]engine.Ticket, error)
	QueueNotification(ctx context.Context, tokens []string, payload engine.Payload, scheduledFor *time.Time) (string, error)
	GetStats(ctx context.Context) (*engine.Stats, error)
}

// RegisterTokenRequest is the body of POST /v1/tokens.
type RegisterTokenRequest struct {
	Token         string `json:"token"`
	WalletAddress string `json:"walletAddress"`
	Platform      string `json:"platform"`
}

// SendRequest is the body of POST /v1/notifications/send. Exactly one of
// walletAddress, walletAddresses, or tokens selects the destinations.
type SendRequest struct {
	WalletAddress   string         `json:"walletAddress,omitempty"`
	WalletAddresses []string       `json:"walletAddresses,omitempty"`
	Tokens          []string       `json:"tokens,omitempty"`
	Payload         engine.Payload `json:"payload"`
	Immediate       bool           `json:"immediate"`
}

// QueueRequest is the body of POST /v1/notifications/queue.
type QueueRequest struct {
	Tokens       []string       `json:"tokens"`
	Payload      engine.Payload `json:"payload"`
	ScheduledFor *time.Time     `json:"scheduledFor,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	engine Engine
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, eng Engine) *Handler {
	return &Handler{logger: logger, engine: eng}
}

// RegisterToken handles POST /v1/tokens
func (h *Handler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Token == "" || req.WalletAddress == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "token and walletAddress are required")
		return
	}
	switch req.Platform {
	case engine.PlatformIOS, engine.PlatformAndroid, engine.PlatformWeb:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid platform", "platform must be ios, android, or web")
		return
	}

	rec, err := h.engine.RegisterToken(r.Context(), req.Token, req.WalletAddress, req.Platform)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidTokenFormat) {
			h.writeError(w, http.StatusBadRequest, "invalid_token", "Invalid token format", "token does not match the provider's push token format")
			return
		}
		h.logger.Error("token registration failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Registration failed", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, rec)
}

// UnregisterToken handles DELETE /v1/tokens/{token}
func (h *Handler) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	removed, err := h.engine.UnregisterToken(r.Context(), token)
	if err != nil {
		h.logger.Error("token unregistration failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Unregistration failed", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// ListWalletTokens handles GET /v1/wallets/{address}/tokens
func (h *Handler) ListWalletTokens(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	tokens, err := h.engine.TokensForWallet(r.Context(), address)
	if err != nil {
		h.logger.Error("wallet token lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Lookup failed", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

// SendNotification handles POST /v1/notifications/send
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if detail := validatePayload(&req.Payload); detail != "" {
		h.writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid payload", detail)
		return
	}

	ctx := r.Context()
	switch {
	case req.WalletAddress != "":
		result, err := h.engine.SendToWallet(ctx, req.WalletAddress, req.Payload, req.Immediate)
		if err != nil {
			h.logger.Error("wallet send failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Send failed", "")
			return
		}
		h.writeJSON(w, http.StatusOK, result)

	case len(req.WalletAddresses) > 0:
		result, err := h.engine.SendToWallets(ctx, req.WalletAddresses, req.Payload)
		if err != nil {
			h.logger.Error("multi-wallet send failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Send failed", "")
			return
		}
		h.writeJSON(w, http.StatusOK, result)

	case len(req.Tokens) > 0:
		tickets, err := h.engine.SendBatch(ctx, req.Tokens, req.Payload)
		if err != nil {
			h.logger.Error("batch send failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Send failed", "")
			return
		}
		h.writeJSON(w, http.StatusOK, &engine.SendResult{Tickets: tickets})

	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing destination", "one of walletAddress, walletAddresses, or tokens is required")
	}
}

// QueueNotification handles POST /v1/notifications/queue
func (h *Handler) QueueNotification(w http.ResponseWriter, r *http.Request) {
	var req QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if len(req.Tokens) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing tokens", "tokens must be a non-empty list")
		return
	}
	if detail := validatePayload(&req.Payload); detail != "" {
		h.writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid payload", detail)
		return
	}

	id, err := h.engine.QueueNotification(r.Context(), req.Tokens, req.Payload, req.ScheduledFor)
	if err != nil {
		h.logger.Error("enqueue failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Enqueue failed", "")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetStats(r.Context())
	if err != nil {
		h.logger.Error("stats lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Stats unavailable", "")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// validatePayload enforces the boundary rules the engine itself does not:
// non-empty bounded title/body, known priority, non-negative badge. Returns
// an empty string when the payload is acceptable.
func validatePayload(p *engine.Payload) string {
	if p.Title == "" {
		return "payload.title must not be empty"
	}
	if len(p.Title) > maxTitleLen {
		return "payload.title exceeds maximum length"
	}
	if p.Body == "" {
		return "payload.body must not be empty"
	}
	if len(p.Body) > maxBodyLen {
		return "payload.body exceeds maximum length"
	}
	if p.Badge < 0 {
		return "payload.badge must be non-negative"
	}
	switch p.Priority {
	case "", engine.PriorityHigh, engine.PriorityNormal, engine.PriorityLow:
		return ""
	default:
		return "payload.priority must be high, normal, or low"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
