package chain

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/logging"
	"github.com/cronos-sched/cronos/internal/store"
)

// ManualClock is a Clock moved only by tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a clock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set moves the clock to t.
func (m *ManualClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// TestNet is a memory-backed chain with generated keys, for tests of
// contracts deployed on it.
type TestNet struct {
	Chain *Chain
	Clock *ManualClock
	Store store.Store

	keys  map[string]ed25519.PrivateKey
	nonce int
}

// TestGenesis is the block time a TestNet starts at.
var TestGenesis = time.Unix(1_700_000_000, 0).UTC()

// NewTestNet registers names with fresh keys on an empty chain.
func NewTestNet(names ...string) (*TestNet, error) {
	s := store.NewMemory()
	accounts := account.NewService(account.NewStoreRepository(s))
	n := &TestNet{Clock: NewManualClock(TestGenesis), Store: s, keys: make(map[string]ed25519.PrivateKey)}
	for _, name := range names {
		if err := n.addAccount(accounts, name); err != nil {
			return nil, err
		}
	}
	n.Chain = New(s, auth.NewValidator(accounts), n.Clock, logging.Discard())
	return n, nil
}

func (n *TestNet) addAccount(accounts *account.Service, name string) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	_, err = accounts.Register(context.Background(), account.Registration{
		Name: name, OwnerKey: account.EncodeKey(pub), ActiveKey: account.EncodeKey(pub),
	})
	if err != nil {
		return err
	}
	n.keys[name] = priv
	return nil
}

// Push signs actions with the active key of every signer and pushes them
// under a fresh nonce.
func (n *TestNet) Push(ctx context.Context, signers []string, actions ...Action) (Receipt, error) {
	n.nonce++
	tx := Transaction{
		Expiration: n.Clock.Now().Add(time.Minute).Unix(),
		Nonce:      strconv.Itoa(n.nonce),
		Actions:    actions,
	}
	var ss []Signer
	for _, name := range signers {
		key, ok := n.keys[name]
		if !ok {
			return Receipt{}, fmt.Errorf("no key for %s", name)
		}
		ss = append(ss, Signer{Level: auth.Level{Actor: name, Permission: auth.Active}, Key: key})
	}
	signed, err := Sign(tx, ss...)
	if err != nil {
		return Receipt{}, err
	}
	return n.Chain.Push(ctx, signed)
}

// Call pushes one action name on code with data, authorized by and signed by
// actor. An empty actor sends it without authorization.
func (n *TestNet) Call(ctx context.Context, actor, code, name string, data any) (Receipt, error) {
	var (
		levels  []auth.Level
		signers []string
	)
	if actor != "" {
		levels = []auth.Level{{Actor: actor, Permission: auth.Active}}
		signers = []string{actor}
	}
	a, err := NewAction(code, name, data, levels...)
	if err != nil {
		return Receipt{}, err
	}
	return n.Push(ctx, signers, a)
}
