package engine

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	redisstore "pushgate/internal/redis"
)

// fakeProvider records every batch it receives and answers via respond.
// The default response accepts every message.
type fakeProvider struct {
	batchSize int
	calls     [][]Message
	respond   func(msgs []Message) ([]Ticket, error)
}

func (p *fakeProvider) ValidToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]")
}

func (p *fakeProvider) MaxBatchSize() int {
	if p.batchSize == 0 {
		return 100
	}
	return p.batchSize
}

func (p *fakeProvider) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	p.calls = append(p.calls, msgs)
	if p.respond != nil {
		return p.respond(msgs)
	}
	tickets := make([]Ticket, len(msgs))
	for i, m := range msgs {
		tickets[i] = Ticket{Token: m.To, Status: TicketOK}
	}
	return tickets, nil
}

// sentTokens flattens every message the provider has seen.
func (p *fakeProvider) sentTokens() []string {
	var tokens []string
	for _, call := range p.calls {
		for _, m := range call {
			tokens = append(tokens, m.To)
		}
	}
	return tokens
}

func tok(s string) string {
	return "ExponentPushToken[" + s + "]"
}

func newTestEngine(t *testing.T, p Provider, cfg Config) (*Engine, *redisstore.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("bad miniredis port: %v", err)
	}

	store, err := redisstore.New(context.Background(), redisstore.Config{
		Host: mr.Host(),
		Port: port,
	}, zap.NewNop())
	if err != nil {
		mr.Close()
		t.Fatalf("failed to connect to miniredis: %v", err)
	}

	eng := New(store, p, cfg, zap.NewNop())
	return eng, store, func() {
		store.Close()
		mr.Close()
	}
}

func TestSendToWalletImmediateSuccess(t *testing.T) {
	provider := &fakeProvider{}
	eng, _, cleanup := newTestEngine(t, provider, Config{})
	defer cleanup()
	ctx := context.Background()

	if _, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := eng.SendToWallet(ctx, "0xAAA", Payload{Title: "Hi", Body: "there"}, true)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(result.Tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(result.Tickets))
	}
	if !result.Tickets[0].Delivered() {
		t.Errorf("expected ok ticket, got %+v", result.Tickets[0])
	}

	stats, err := eng.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.SentToday != 1 {
		t.Errorf("expected sentToday 1, got %d", stats.SentToday)
	}
}

func TestSendToWalletDeviceNotRegistered(t *testing.T) {
	provider := &fakeProvider{
		respond: func(msgs []Message) ([]Ticket, error) {
			tickets := make([]Ticket, len(msgs))
			for i, m := range msgs {
				tickets[i] = Ticket{
					Token:   m.To,
					Status:  TicketError,
					Message: "device gone",
					Reason:  ReasonDeviceNotRegistered,
				}
			}
			return tickets, nil
		},
	}
	eng, _, cleanup := newTestEngine(t, provider, Config{})
	defer cleanup()
	ctx := context.Background()

	if _, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := eng.SendToWallet(ctx, "0xAAA", Payload{Title: "Hi", Body: "there"}, true)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(result.Tickets) != 1 || result.Tickets[0].Status != TicketError {
		t.Fatalf("expected one error ticket, got %+v", result.Tickets)
	}

	quarantined, err := eng.IsQuarantined(ctx, tok("T1"))
	if err != nil {
		t.Fatalf("quarantine check failed: %v", err)
	}
	if !quarantined {
		t.Error("token should be quarantined after DeviceNotRegistered")
	}

	tokens, err := eng.TokensForWallet(ctx, "0xAAA")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("wallet should have no active tokens, got %v", tokens)
	}
}

func TestQueuedDeliveryRecoversAfterTransientFailure(t *testing.T) {
	failFirst := true
	provider := &fakeProvider{
		respond: func(msgs []Message) ([]Ticket, error) {
			tickets := make([]Ticket, len(msgs))
			for i, m := range msgs {
				if failFirst {
					tickets[i] = Ticket{Token: m.To, Status: TicketError, Reason: ReasonMessageRateExceeded}
				} else {
					tickets[i] = Ticket{Token: m.To, Status: TicketOK}
				}
			}
			return tickets, nil
		},
	}
	// A 1ns retry delay makes the requeued job due by the second tick.
	eng, _, cleanup := newTestEngine(t, provider, Config{RetryDelay: 1})
	defer cleanup()
	ctx := context.Background()

	id, err := eng.QueueNotification(ctx, []string{tok("T2")}, Payload{Title: "Hi", Body: "there"}, nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a job id")
	}

	// First tick: transient failure, job requeued.
	if err := eng.ProcessQueue(ctx); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	failFirst = false

	// Second tick: delivery succeeds and the job is gone.
	if err := eng.ProcessQueue(ctx); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	stats, err := eng.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.QueueSize != 0 {
		t.Errorf("queue should be empty, got %d", stats.QueueSize)
	}
	if stats.SentToday != 1 {
		t.Errorf("expected exactly one success, got %d", stats.SentToday)
	}
}

func TestSendToWalletUnknownWallet(t *testing.T) {
	provider := &fakeProvider{}
	eng, _, cleanup := newTestEngine(t, provider, Config{})
	defer cleanup()

	result, err := eng.SendToWallet(context.Background(), "0xNOBODY", Payload{Title: "Hi", Body: "there"}, true)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(result.Tickets) != 0 || result.Queued {
		t.Errorf("expected empty result, got %+v", result)
	}
	if len(provider.calls) != 0 {
		t.Error("provider should not have been called")
	}
}

func TestSendToWalletsQueuesUnionOfTokens(t *testing.T) {
	provider := &fakeProvider{}
	eng, _, cleanup := newTestEngine(t, provider, Config{})
	defer cleanup()
	ctx := context.Background()

	if _, err := eng.RegisterToken(ctx, tok("A"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := eng.RegisterToken(ctx, tok("B"), "0xBBB", PlatformAndroid); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := eng.SendToWallets(ctx, []string{"0xAAA", "0xBBB", "0xAAA"}, Payload{Title: "Hi", Body: "all"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !result.Queued || result.JobID == "" {
		t.Fatalf("expected a queued job, got %+v", result)
	}

	stats, err := eng.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.QueueSize != 1 {
		t.Errorf("expected one queued job, got %d", stats.QueueSize)
	}

	// Draining the queue delivers to both tokens exactly once.
	if err := eng.ProcessQueue(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if got := provider.sentTokens(); len(got) != 2 {
		t.Errorf("expected 2 deliveries, got %v", got)
	}
}
