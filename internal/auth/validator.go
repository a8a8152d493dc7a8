package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/status"
)

// KeyLookup resolves an account's public keys.
type KeyLookup interface {
	Find(ctx context.Context, name string) (account.Account, error)
}

// Validator checks transaction signatures against registered keys.
type Validator struct {
	accounts KeyLookup
}

// NewValidator builds a validator over the account registry.
func NewValidator(accounts KeyLookup) *Validator {
	return &Validator{accounts: accounts}
}

// Verify checks every signature and returns the levels they grant. The owner
// key may sign for the active level.
func (v *Validator) Verify(ctx context.Context, digest [32]byte, sigs []Signature) ([]Level, error) {
	granted := make([]Level, 0, len(sigs))
	for _, s := range sigs {
		if !s.Permission.Valid() {
			return nil, fmt.Errorf("unknown permission %q: %w", s.Permission, status.ErrAuthorization)
		}
		acct, err := v.accounts.Find(ctx, s.Actor)
		if errors.Is(err, status.ErrNotFound) {
			return nil, fmt.Errorf("unknown signer %s: %w", s.Actor, status.ErrAuthorization)
		}
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(s.Sig)
		if err != nil {
			return nil, fmt.Errorf("malformed signature for %s: %w", s.Level, status.ErrAuthorization)
		}
		ok := ed25519.Verify(acct.OwnerKey, digest[:], raw)
		if !ok && s.Permission == Active {
			ok = ed25519.Verify(acct.ActiveKey, digest[:], raw)
		}
		if !ok {
			return nil, fmt.Errorf("bad signature for %s: %w", s.Level, status.ErrAuthorization)
		}
		granted = append(granted, s.Level)
	}
	return granted, nil
}
