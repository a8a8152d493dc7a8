package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/status"
)

// Action is one call of a named handler on a contract account.
type Action struct {
	Account       string          `json:"account"`
	Name          string          `json:"name"`
	Authorization []auth.Level    `json:"authorization"`
	Data          json.RawMessage `json:"data"`
}

// NewAction encodes data as the payload of a call to account::name.
func NewAction(account, name string, data any, levels ...auth.Level) (Action, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Action{}, fmt.Errorf("encode %s::%s: %w", account, name, err)
	}
	return Action{Account: account, Name: name, Authorization: levels, Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (a Action) Decode(v any) error {
	if len(a.Data) == 0 {
		return fmt.Errorf("%s::%s has no payload: %w", a.Account, a.Name, status.ErrInvalidAction)
	}
	if err := json.Unmarshal(a.Data, v); err != nil {
		return fmt.Errorf("decode %s::%s: %v: %w", a.Account, a.Name, err, status.ErrInvalidAction)
	}
	return nil
}

// Transaction is an ordered list of actions applied atomically.
type Transaction struct {
	// Expiration is a unix timestamp after which the transaction is rejected.
	Expiration int64    `json:"expiration"`
	Nonce      string   `json:"nonce"`
	Actions    []Action `json:"actions"`
}

// Digest is the value signers sign.
func (t Transaction) Digest() ([32]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return [32]byte{}, err
	}
	return auth.Digest(raw), nil
}

// ID returns the hex digest, which doubles as the transaction id.
func (t Transaction) ID() (string, error) {
	d, err := t.Digest()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(d[:]), nil
}

// SignedTransaction is a transaction plus the signatures authorizing it.
type SignedTransaction struct {
	Transaction
	Signatures []auth.Signature `json:"signatures"`
}

// Signer is a private key acting for one level.
type Signer struct {
	Level auth.Level
	Key   ed25519.PrivateKey
}

// Sign signs t with every signer.
func Sign(t Transaction, signers ...Signer) (SignedTransaction, error) {
	digest, err := t.Digest()
	if err != nil {
		return SignedTransaction{}, err
	}
	st := SignedTransaction{Transaction: t}
	for _, s := range signers {
		st.Signatures = append(st.Signatures, auth.Sign(s.Key, s.Level, digest))
	}
	return st, nil
}

// Receipt reports the outcome of a pushed or deferred transaction.
type Receipt struct {
	ID        string      `json:"id"`
	Status    status.Code `json:"status"`
	BlockTime int64       `json:"block_time"`
	Console   []string    `json:"console,omitempty"`
	Error     string      `json:"error,omitempty"`
}
