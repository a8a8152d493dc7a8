package account

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Account is a registered ledger identity with one key per permission level.
type Account struct {
	Name      string
	OwnerKey  ed25519.PublicKey
	ActiveKey ed25519.PublicKey
	CreatedAt time.Time
}

// Registration is the request to provision a new account.
type Registration struct {
	Name      string
	OwnerKey  string
	ActiveKey string
}

// ErrInvalidName reports a name outside the account alphabet.
var ErrInvalidName = errors.New("invalid account name")

// ValidName reports whether name is a well-formed account name: one to
// twelve characters of a-z, 1-5 and '.', not ending with '.'.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > 12 || name[len(name)-1] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '1' && c <= '5':
		case c == '.':
		default:
			return false
		}
	}
	return true
}

// ParseKey decodes a hex ed25519 public key.
func ParseKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeKey is the inverse of ParseKey.
func EncodeKey(k ed25519.PublicKey) string {
	return hex.EncodeToString(k)
}
