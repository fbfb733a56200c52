package engine

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterRejectsMalformedToken(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()

	_, err := eng.RegisterToken(context.Background(), "not-a-push-token", "0xAAA", PlatformIOS)
	if !errors.Is(err, ErrInvalidTokenFormat) {
		t.Fatalf("expected ErrInvalidTokenFormat, got %v", err)
	}
}

func TestRegisterNormalizesWallet(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()
	ctx := context.Background()

	rec, err := eng.RegisterToken(ctx, tok("T1"), "0xAbCdEf", PlatformIOS)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if rec.WalletAddress != "0xabcdef" {
		t.Errorf("wallet not normalized: %s", rec.WalletAddress)
	}

	// Lookup with any casing finds the token.
	tokens, err := eng.TokensForWallet(ctx, "0XABCDEF")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != tok("T1") {
		t.Errorf("expected [T1], got %v", tokens)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()
	ctx := context.Background()

	first, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformIOS)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	second, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformAndroid)
	if err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	// Metadata updates, creation time survives, no duplicate membership.
	if second.Platform != PlatformAndroid {
		t.Errorf("platform not updated: %s", second.Platform)
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("registeredAt should survive re-registration")
	}

	tokens, err := eng.TokensForWallet(ctx, "0xAAA")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Errorf("expected 1 token, got %d", len(tokens))
	}
}

func TestRegisterMovesTokenBetweenWallets(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()
	ctx := context.Background()

	if _, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := eng.RegisterToken(ctx, tok("T1"), "0xBBB", PlatformIOS); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	// A token belongs to at most one wallet at any time.
	old, err := eng.TokensForWallet(ctx, "0xAAA")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("token should have left the old wallet, got %v", old)
	}

	current, err := eng.TokensForWallet(ctx, "0xBBB")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(current) != 1 || current[0].Token != tok("T1") {
		t.Errorf("expected [T1] under new wallet, got %v", current)
	}
}

func TestUnregisterUnknownTokenIsNoop(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()
	ctx := context.Background()

	removed, err := eng.UnregisterToken(ctx, tok("ghost"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("unknown token should report false")
	}
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()
	ctx := context.Background()

	if _, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	removed, err := eng.UnregisterToken(ctx, tok("T1"))
	if err != nil || !removed {
		t.Fatalf("first unregister: removed=%v err=%v", removed, err)
	}
	removed, err = eng.UnregisterToken(ctx, tok("T1"))
	if err != nil {
		t.Fatalf("second unregister errored: %v", err)
	}
	if removed {
		t.Error("second unregister should report false")
	}

	tokens, err := eng.TokensForWallet(ctx, "0xAAA")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("wallet index should be empty, got %v", tokens)
	}
}

func TestQuarantineRemovesFromWalletIndex(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, &fakeProvider{}, Config{})
	defer cleanup()
	ctx := context.Background()

	if _, err := eng.RegisterToken(ctx, tok("T1"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := eng.RegisterToken(ctx, tok("T2"), "0xAAA", PlatformIOS); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := eng.Quarantine(ctx, tok("T1")); err != nil {
		t.Fatalf("quarantine failed: %v", err)
	}
	// Idempotent, and safe on unknown tokens.
	if err := eng.Quarantine(ctx, tok("T1")); err != nil {
		t.Fatalf("repeat quarantine failed: %v", err)
	}
	if err := eng.Quarantine(ctx, tok("never-registered")); err != nil {
		t.Fatalf("quarantine of unknown token failed: %v", err)
	}

	tokens, err := eng.TokensForWallet(ctx, "0xAAA")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != tok("T2") {
		t.Errorf("expected only T2 active, got %v", tokens)
	}
}
