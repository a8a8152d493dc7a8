package account

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

func newKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return EncodeKey(pub)
}

func TestRegisterAndFind(t *testing.T) {
	svc := NewService(NewStoreRepository(store.NewMemory()))
	ctx := context.Background()

	owner, active := newKey(t), newKey(t)
	acct, err := svc.Register(ctx, Registration{Name: "alice", OwnerKey: owner, ActiveKey: active})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	found, err := svc.Find(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if EncodeKey(found.OwnerKey) != owner || EncodeKey(found.ActiveKey) != active {
		t.Fatalf("keys did not round trip")
	}
	if !found.CreatedAt.Equal(acct.CreatedAt) {
		t.Fatalf("expected created_at %v, got %v", acct.CreatedAt, found.CreatedAt)
	}

	if _, err := svc.Register(ctx, Registration{Name: "alice", OwnerKey: owner, ActiveKey: active}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := svc.Find(ctx, "bob"); !errors.Is(err, status.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := NewService(NewStoreRepository(store.NewMemory()))
	ctx := context.Background()
	key := newKey(t)

	if _, err := svc.Register(ctx, Registration{Name: "Alice", OwnerKey: key, ActiveKey: key}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Name: "alice", OwnerKey: "zz", ActiveKey: key}); err == nil {
		t.Fatalf("expected bad key to be rejected")
	}
}

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"cronos":        true,
		"eosio.token":   true,
		"a1b2c3d4e5":    true,
		"":              false,
		"abc.":          false,
		"toolongname12": false,
		"has6":          false,
		"UPPER":         false,
		"dash-name":     false,
	}
	for name, want := range cases {
		if got := ValidName(name); got != want {
			t.Fatalf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}
