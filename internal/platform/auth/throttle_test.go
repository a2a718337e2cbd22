package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
)

type memCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
	locks  map[string]bool
	err    error
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{counts: map[string]int64{}, locks: map[string]bool{}}
}

func (m *memCounterStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[key], m.err
}

func (m *memCounterStore) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memCounterStore) Set(_ context.Context, key string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[key] = true
	return m.err
}

func (m *memCounterStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.counts, k)
		delete(m.locks, k)
	}
	return m.err
}

func TestLoginThrottle_LocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	th := newLoginThrottle(newMemCounterStore(), 3, time.Minute, zerolog.Nop())

	for i := 0; i < 2; i++ {
		th.Fail(ctx, "admin")
		if err := th.Check(ctx, "admin"); err != nil {
			t.Fatalf("attempt %d: unexpected lockout: %v", i+1, err)
		}
	}
	th.Fail(ctx, "admin")

	err := th.Check(ctx, "admin")
	if !errors.Is(err, apperr.ErrTooManyRequests) {
		t.Fatalf("expected too many requests, got %v", err)
	}
	if err := th.Check(ctx, "viewer"); err != nil {
		t.Errorf("other usernames must not be locked: %v", err)
	}
}

func TestLoginThrottle_ResetClearsLockout(t *testing.T) {
	ctx := context.Background()
	th := newLoginThrottle(newMemCounterStore(), 1, time.Minute, zerolog.Nop())

	th.Fail(ctx, "user")
	if err := th.Check(ctx, "user"); err == nil {
		t.Fatal("expected lockout")
	}
	th.Reset(ctx, "user")
	if err := th.Check(ctx, "user"); err != nil {
		t.Errorf("expected lockout cleared, got %v", err)
	}
}

func TestLoginThrottle_StoreErrorFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := newMemCounterStore()
	store.err = errors.New("connection refused")
	th := newLoginThrottle(store, 1, time.Minute, zerolog.Nop())

	th.Fail(ctx, "user")
	if err := th.Check(ctx, "user"); err != nil {
		t.Errorf("expected nil when store is down, got %v", err)
	}
}

func TestLoginThrottle_KeyedByClientAddress(t *testing.T) {
	ctx := context.Background()
	th := newLoginThrottle(newMemCounterStore(), 1, time.Minute, zerolog.Nop())

	th.Fail(ctx, LoginKey("admin", "10.0.0.1"))
	if err := th.Check(ctx, LoginKey("admin", "10.0.0.1")); err == nil {
		t.Fatal("expected lockout for the failing address")
	}
	if err := th.Check(ctx, LoginKey("admin", "10.0.0.2")); err != nil {
		t.Errorf("same username from another address must not be locked: %v", err)
	}
}

func TestLoginKey(t *testing.T) {
	if got := LoginKey("admin", "10.0.0.1"); got != "admin|10.0.0.1" {
		t.Errorf("got %q", got)
	}
	if got := LoginKey("admin", ""); got != "admin" {
		t.Errorf("got %q", got)
	}
}

func TestNoopThrottle(t *testing.T) {
	var th LoginThrottle = NoopThrottle{}
	th.Fail(context.Background(), "x")
	if err := th.Check(context.Background(), "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("admin123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "admin123" {
		t.Fatal("hash must not equal plaintext")
	}
	if !h.Compare(hash, "admin123") {
		t.Error("expected matching password")
	}
	if h.Compare(hash, "admin124") {
		t.Error("expected mismatch")
	}
	if h.Compare("not-a-hash", "admin123") {
		t.Error("expected mismatch on malformed hash")
	}
	if _, err := h.Hash(""); err == nil {
		t.Error("expected error for empty password")
	}
}
