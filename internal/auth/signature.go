package auth

import (
	"crypto/ed25519"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Signature binds a level to an ed25519 signature over a transaction digest.
type Signature struct {
	Level
	Sig string `json:"signature"`
}

// Digest hashes the canonical encoding of an unsigned transaction.
func Digest(payload []byte) [32]byte {
	return blake2b.Sum256(payload)
}

// Sign produces a signature for level over digest.
func Sign(key ed25519.PrivateKey, level Level, digest [32]byte) Signature {
	return Signature{Level: level, Sig: hex.EncodeToString(ed25519.Sign(key, digest[:]))}
}
