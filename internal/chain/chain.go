package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

const (
	// MaxDepth bounds nested inline actions and notifications.
	MaxDepth = 4
	// MaxExpiration is how far ahead a transaction may expire.
	MaxExpiration = time.Hour
)

// Contract handles every action dispatched to the account it is deployed on,
// including notifications of actions sent to other accounts.
type Contract interface {
	Apply(ctx context.Context, c *Context) error
}

// TableReader exposes a contract's tables to read-only queries.
type TableReader interface {
	Rows(ctx context.Context, tx store.Tx, scope, table string) ([]any, error)
}

// Verifier turns transaction signatures into granted levels.
type Verifier interface {
	Verify(ctx context.Context, digest [32]byte, sigs []auth.Signature) ([]auth.Level, error)
}

// Chain applies transactions one at a time against a store. Every
// transaction either commits all of its writes or none of them.
type Chain struct {
	mu        sync.Mutex
	store     store.Store
	verifier  Verifier
	clock     Clock
	log       *slog.Logger
	contracts map[string]Contract
	seen      map[string]time.Time
	deferred  map[deferredKey]deferredTx
}

// New builds a chain. A nil clock means the system clock.
func New(s store.Store, verifier Verifier, clock Clock, log *slog.Logger) *Chain {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Chain{
		store:     s,
		verifier:  verifier,
		clock:     clock,
		log:       log,
		contracts: make(map[string]Contract),
		seen:      make(map[string]time.Time),
		deferred:  make(map[deferredKey]deferredTx),
	}
}

// Deploy installs contract on account, replacing any previous code.
func (c *Chain) Deploy(account string, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[account] = contract
}

// Now returns the current block time.
func (c *Chain) Now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Second)
}

// Push validates and applies a signed transaction.
func (c *Chain) Push(ctx context.Context, signed SignedTransaction) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	receipt := Receipt{BlockTime: now.Unix()}
	fail := func(err error) (Receipt, error) {
		receipt.Status = status.CodeOf(err)
		receipt.Error = err.Error()
		return receipt, err
	}

	digest, err := signed.Digest()
	if err != nil {
		return fail(fmt.Errorf("encode transaction: %v: %w", err, status.ErrInvalidAction))
	}
	id, _ := signed.ID()
	receipt.ID = id

	c.pruneSeen(now)
	expires := time.Unix(signed.Expiration, 0).UTC()
	if expires.Before(now) {
		return fail(fmt.Errorf("transaction expired at %s: %w", expires.Format(time.RFC3339), status.ErrExpired))
	}
	if expires.After(now.Add(MaxExpiration)) {
		return fail(fmt.Errorf("expiration more than %s ahead: %w", MaxExpiration, status.ErrExpired))
	}
	if _, dup := c.seen[id]; dup {
		return fail(status.ErrDuplicateTransaction)
	}
	if len(signed.Actions) == 0 {
		return fail(fmt.Errorf("transaction has no actions: %w", status.ErrInvalidAction))
	}

	granted, err := c.verifier.Verify(ctx, digest, signed.Signatures)
	if err != nil {
		return fail(err)
	}
	for _, a := range signed.Actions {
		for _, l := range a.Authorization {
			if !auth.Has(granted, l.Actor, l.Permission) {
				return fail(fmt.Errorf("%s::%s declares %s without a signature: %w", a.Account, a.Name, l, status.ErrAuthorization))
			}
		}
	}

	console, err := c.apply(ctx, now, signed.Actions)
	receipt.Console = console
	if err != nil {
		c.log.Debug("transaction rejected", slog.String("id", id), slog.String("error", err.Error()))
		return fail(err)
	}
	c.seen[id] = expires
	receipt.Status = status.OK
	c.log.Debug("transaction applied", slog.String("id", id), slog.Int("actions", len(signed.Actions)))
	return receipt, nil
}

func (c *Chain) pruneSeen(now time.Time) {
	for id, exp := range c.seen {
		if exp.Before(now) {
			delete(c.seen, id)
		}
	}
}

// applyState collects the side effects of one transaction that only take
// effect once its store transaction commits.
type applyState struct {
	tx       store.Tx
	now      time.Time
	console  []string
	hooks    []func(context.Context)
	deferred []deferredTx
}

func (c *Chain) apply(ctx context.Context, now time.Time, actions []Action) ([]string, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	st := &applyState{tx: tx, now: now}
	for _, a := range actions {
		if err := c.dispatch(ctx, st, a, a.Account, a.Account, 0); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return st.console, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return st.console, fmt.Errorf("commit: %w", err)
	}

	for _, d := range st.deferred {
		c.deferred[d.key] = d
	}
	for _, fn := range st.hooks {
		fn(ctx)
	}
	return st.console, nil
}

func (c *Chain) dispatch(ctx context.Context, st *applyState, a Action, receiver, code string, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("inline depth exceeds %d: %w", MaxDepth, status.ErrInvalidAction)
	}
	contract, ok := c.contracts[receiver]
	if !ok {
		return fmt.Errorf("no contract deployed on %s: %w", receiver, status.ErrInvalidAction)
	}
	cx := &Context{chain: c, st: st, receiver: receiver, code: code, action: a, depth: depth}
	return contract.Apply(ctx, cx)
}

// Rows reads a table of the contract deployed on code.
func (c *Chain) Rows(ctx context.Context, code, scope, table string) ([]any, error) {
	c.mu.Lock()
	contract, ok := c.contracts[code]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no contract deployed on %s: %w", code, status.ErrNotFound)
	}
	reader, ok := contract.(TableReader)
	if !ok {
		return nil, fmt.Errorf("contract on %s has no tables: %w", code, status.ErrNotFound)
	}
	var rows []any
	err := store.View(ctx, c.store, func(tx store.Tx) error {
		var err error
		rows, err = reader.Rows(ctx, tx, scope, table)
		return err
	})
	return rows, err
}

// ProcessDeferred applies every deferred transaction whose delivery time has
// passed, oldest first. A failing deferred transaction is dropped.
func (c *Chain) ProcessDeferred(ctx context.Context) []Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	var due []deferredTx
	for k, d := range c.deferred {
		if !d.deliverAt.After(now) {
			due = append(due, d)
			delete(c.deferred, k)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].deliverAt.Equal(due[j].deliverAt) {
			return due[i].deliverAt.Before(due[j].deliverAt)
		}
		if due[i].key.sender != due[j].key.sender {
			return due[i].key.sender < due[j].key.sender
		}
		return due[i].key.id < due[j].key.id
	})

	receipts := make([]Receipt, 0, len(due))
	for _, d := range due {
		r := Receipt{ID: d.key.String(), BlockTime: now.Unix(), Status: status.OK}
		console, err := c.apply(ctx, now, d.actions)
		r.Console = console
		if err != nil {
			r.Status = status.CodeOf(err)
			r.Error = err.Error()
			c.log.Warn("deferred transaction failed", slog.String("id", r.ID), slog.String("error", err.Error()))
		}
		receipts = append(receipts, r)
	}
	return receipts
}

// PendingDeferred reports how many deferred transactions are queued.
func (c *Chain) PendingDeferred() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deferred)
}
