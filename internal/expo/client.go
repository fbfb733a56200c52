// Package expo implements the push-provider contract against the Expo push
// HTTP API.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"pushgate/internal/engine"
)

// DefaultURL is the public Expo push endpoint.
const DefaultURL = "https://exp.host/--/api/v2/push/send"

// MaxBatch is the number of messages Expo accepts per call.
const MaxBatch = 100

// Expo issues tokens of the form ExponentPushToken[...] (older SDKs used the
// ExpoPushToken prefix).
var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\[\]\s]+\]$`)

// Config holds provider client settings.
type Config struct {
	AccessToken string        // optional bearer credential
	URL         string        // endpoint override; empty means DefaultURL
	Timeout     time.Duration // HTTP timeout per call
}

// Client sends push messages to the Expo push service.
type Client struct {
	client      *http.Client
	url         string
	accessToken string
	logger      *zap.Logger
}

// New creates a new Expo push client.
func New(cfg Config, logger *zap.Logger) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:      &http.Client{Timeout: timeout},
		url:         url,
		accessToken: cfg.AccessToken,
		logger:      logger,
	}
}

// ValidToken reports whether token matches Expo's push token format.
func (c *Client) ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// MaxBatchSize returns the provider's per-call message limit.
func (c *Client) MaxBatchSize() int {
	return MaxBatch
}

// pushMessage is the Expo wire format for one message.
type pushMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Subtitle string            `json:"subtitle,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    int               `json:"badge,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// pushTicket is Expo's per-message response entry, in request order.
type pushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type pushResponse struct {
	Data   []pushTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send delivers one batch of at most MaxBatch messages and returns one
// ticket per message, in input order. Only transport, credential, or
// response-shape failures are errors; per-message failures come back as
// error tickets.
func (c *Client) Send(ctx context.Context, msgs []engine.Message) ([]engine.Ticket, error) {
	if len(msgs) == 0 {
		return []engine.Ticket{}, nil
	}
	if len(msgs) > MaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds provider limit of %d", len(msgs), MaxBatch)
	}

	wire := make([]pushMessage, len(msgs))
	for i, m := range msgs {
		wire[i] = pushMessage{
			To:       m.To,
			Title:    m.Title,
			Body:     m.Body,
			Subtitle: m.Subtitle,
			Sound:    m.Sound,
			Badge:    m.Badge,
			Priority: m.Priority,
			Data:     m.Data,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pushgate/1.0")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("push service returned status %d: %s", resp.StatusCode, string(preview))
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	// Request-level errors (bad credential, malformed batch) mean no ticket
	// was issued for any message.
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("push service error %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)
	}

	if len(parsed.Data) != len(msgs) {
		return nil, fmt.Errorf("push service returned %d tickets for %d messages", len(parsed.Data), len(msgs))
	}

	tickets := make([]engine.Ticket, len(parsed.Data))
	for i, t := range parsed.Data {
		ticket := engine.Ticket{
			Token:   msgs[i].To,
			Message: t.Message,
		}
		if t.Status == "ok" {
			ticket.Status = engine.TicketOK
		} else {
			ticket.Status = engine.TicketError
			ticket.Reason = engine.ParseReason(t.Details.Error)
			if ticket.Reason == engine.ReasonNone {
				// An error ticket without a classification fails safe: retry.
				ticket.Reason = engine.ReasonUnknown
			}
		}
		tickets[i] = ticket
	}

	c.logger.Debug("push batch submitted",
		zap.Int("messages", len(msgs)),
		zap.Int("tickets", len(tickets)),
	)

	return tickets, nil
}
