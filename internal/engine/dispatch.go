package engine

import (
	"context"

	"go.uber.org/zap"
)

// SendBatch delivers one payload to a concrete set of tokens. Quarantined
// tokens are excluded up front; malformed tokens are quarantined immediately
// and never count as attempts. The remainder is chunked to the provider's
// batch limit and one ticket per message is returned, in input chunk order.
//
// Per-token failures are reported through the ticket list, never as an
// error return. A provider failure for an entire chunk counts every message
// in it as failed but quarantines nothing: the outage is environmental, not
// destination-specific, so those tokens stay eligible for retry.
func (e *Engine) SendBatch(ctx context.Context, tokens []string, payload Payload) ([]Ticket, error) {
	valid := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quarantined, err := e.IsQuarantined(ctx, token)
		if err != nil {
			return nil, err
		}
		if quarantined {
			continue
		}
		if !e.provider.ValidToken(token) {
			// A malformed token can never be delivered to.
			if err := e.Quarantine(ctx, token); err != nil {
				return nil, err
			}
			continue
		}
		valid = append(valid, token)
	}

	if len(valid) == 0 {
		return []Ticket{}, nil
	}

	chunkSize := e.provider.MaxBatchSize()
	if chunkSize <= 0 {
		chunkSize = 100
	}

	tickets := make([]Ticket, 0, len(valid))
	for start := 0; start < len(valid); start += chunkSize {
		end := min(start+chunkSize, len(valid))
		chunk := valid[start:end]

		msgs := make([]Message, len(chunk))
		for i, token := range chunk {
			msgs[i] = Message{
				To:       token,
				Title:    payload.Title,
				Body:     payload.Body,
				Subtitle: payload.Subtitle,
				Sound:    payload.Sound,
				Badge:    payload.Badge,
				Priority: payload.Priority,
				Data:     payload.Data,
			}
		}

		chunkTickets, err := e.provider.Send(ctx, msgs)
		if err != nil {
			e.logger.Error("provider call failed for chunk",
				zap.Error(err),
				zap.Int("chunk_size", len(chunk)),
			)
			e.recordFailed(ctx, len(chunk))
			for _, token := range chunk {
				tickets = append(tickets, Ticket{
					Token:   token,
					Status:  TicketError,
					Message: err.Error(),
					Reason:  ReasonUnknown,
				})
			}
			continue
		}

		// Tickets come back in message order; fill in the token correlator
		// for providers that only index their responses.
		for i := range chunkTickets {
			if chunkTickets[i].Token == "" && i < len(chunk) {
				chunkTickets[i].Token = chunk[i]
			}
		}

		sent, failed := 0, 0
		for _, ticket := range chunkTickets {
			if ticket.Delivered() {
				sent++
				continue
			}
			failed++
			if ticket.Reason.Permanent() {
				if err := e.Quarantine(ctx, ticket.Token); err != nil {
					e.logger.Error("failed to quarantine undeliverable token", zap.Error(err))
				}
			}
		}
		e.recordSent(ctx, sent)
		e.recordFailed(ctx, failed)

		tickets = append(tickets, chunkTickets...)
	}

	return tickets, nil
}
