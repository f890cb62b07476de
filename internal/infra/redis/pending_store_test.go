package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

func newPendingFixture(t *testing.T, ttl time.Duration) (*PendingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewPendingStore(client, ttl), mr
}

func TestRedisPendingStoreRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	store, _ := newPendingFixture(t, 15*time.Minute)

	rec := domain.PendingRegistration{
		ID:      "reg-1",
		Profile: domain.RegistrationProfile{Email: "a@example.com", Name: "A", PasswordHash: "h"},
		Code:    "123456",
	}
	if err := store.SaveRegistration(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.ConsumeRegistration(ctx, "reg-1", "000000"); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	got, err := store.ConsumeRegistration(ctx, "reg-1", "123456")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.Profile.Email != "a@example.com" || got.Profile.PasswordHash != "h" {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := store.ConsumeRegistration(ctx, "reg-1", "123456"); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestRedisPendingStoreExpiredRegistration(t *testing.T) {
	ctx := context.Background()
	ttl := 15 * time.Minute
	store, mr := newPendingFixture(t, ttl)

	// Seed a record whose logical window already lapsed but whose key is
	// still inside the grace lifetime.
	stale, _ := json.Marshal(registrationRecord{
		Email:     "a@example.com",
		Code:      "123456",
		CreatedAt: time.Now().Add(-ttl - time.Minute).Unix(),
	})
	mr.Set("pending:registration:reg-1", string(stale))

	if _, err := store.ConsumeRegistration(ctx, "reg-1", "123456"); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	// The expired lookup deletes the key; retry reports not-found.
	if _, err := store.ConsumeRegistration(ctx, "reg-1", "123456"); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestRedisPendingStoreRefreshRegistration(t *testing.T) {
	ctx := context.Background()
	store, _ := newPendingFixture(t, 15*time.Minute)

	if err := store.SaveRegistration(ctx, domain.PendingRegistration{
		ID:      "reg-1",
		Profile: domain.RegistrationProfile{Email: "a@example.com"},
		Code:    "111111",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	refreshed, err := store.RefreshRegistration(ctx, "reg-1", "222222")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Code != "222222" {
		t.Fatalf("code not replaced: %q", refreshed.Code)
	}

	if _, err := store.ConsumeRegistration(ctx, "reg-1", "111111"); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("old code must mismatch, got %v", err)
	}
	if _, err := store.ConsumeRegistration(ctx, "reg-1", "222222"); err != nil {
		t.Fatalf("consume with refreshed code: %v", err)
	}
}

func TestRedisPendingStoreRefreshUnknownID(t *testing.T) {
	store, _ := newPendingFixture(t, 15*time.Minute)
	_, err := store.RefreshRegistration(context.Background(), "ghost", "123456")
	if !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestRedisPendingStoreResetTwoPhase(t *testing.T) {
	ctx := context.Background()
	store, _ := newPendingFixture(t, 15*time.Minute)

	if err := store.SavePasswordReset(ctx, domain.PendingPasswordReset{
		ID:    "rst-1",
		Email: "a@example.com",
		Code:  "123456",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Unverified records cannot be consumed.
	if _, err := store.ConsumePasswordReset(ctx, "rst-1"); !errors.Is(err, domain.ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound, got %v", err)
	}

	if err := store.VerifyPasswordReset(ctx, "rst-1", "000000"); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if err := store.VerifyPasswordReset(ctx, "rst-1", "123456"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	got, err := store.ConsumePasswordReset(ctx, "rst-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !got.Verified || got.Email != "a@example.com" {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := store.ConsumePasswordReset(ctx, "rst-1"); !errors.Is(err, domain.ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound on second consume, got %v", err)
	}
}

func TestRedisPendingStoreKeyEviction(t *testing.T) {
	ctx := context.Background()
	ttl := time.Minute
	store, mr := newPendingFixture(t, ttl)

	if err := store.SaveRegistration(ctx, domain.PendingRegistration{ID: "reg-1", Code: "123456"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Past the grace lifetime Redis evicts the key entirely.
	mr.FastForward(2*ttl + time.Second)

	if _, err := store.ConsumeRegistration(ctx, "reg-1", "123456"); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound after eviction, got %v", err)
	}
}
