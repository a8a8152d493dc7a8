package chain

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/logging"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

var genesis = time.Unix(1_700_000_000, 0).UTC()

// counter is a toy contract keeping one integer per actor.
type counter struct {
	notified []string
}

type counterArgs struct {
	From   string `json:"from"`
	Target string `json:"target,omitempty"`
}

func (k *counter) Apply(ctx context.Context, c *Context) error {
	if c.Code() != c.Self() {
		k.notified = append(k.notified, c.Self()+"<-"+c.Code()+"::"+c.Action().Name)
		return nil
	}
	var args counterArgs
	if err := c.Decode(&args); err != nil {
		return err
	}
	switch c.Action().Name {
	case "inc":
		if err := c.RequireAuth(args.From, auth.Active); err != nil {
			return err
		}
		v, _, err := c.Tx().Singleton(ctx, c.Self(), args.From)
		if err != nil {
			return err
		}
		c.Print("inc %s", args.From)
		return c.Tx().PutSingleton(ctx, c.Self(), args.From, v+1)
	case "incfail":
		if err := c.Tx().PutSingleton(ctx, c.Self(), args.From, 99); err != nil {
			return err
		}
		return errors.New("boom")
	case "relay":
		a, err := NewAction(args.Target, "inc", counterArgs{From: args.From}, auth.Level{Actor: args.From, Permission: auth.Active})
		if err != nil {
			return err
		}
		return c.Invoke(ctx, a)
	case "selfcall":
		a, err := NewAction(args.Target, "inc", counterArgs{From: c.Self()}, auth.Level{Actor: c.Self(), Permission: auth.Active})
		if err != nil {
			return err
		}
		return c.Invoke(ctx, a)
	case "ping":
		return c.Notify(ctx, args.Target)
	case "later":
		a, err := NewAction(c.Self(), "inc", counterArgs{From: c.Self()}, auth.Level{Actor: c.Self(), Permission: auth.Active})
		if err != nil {
			return err
		}
		return c.Defer(1, 5*time.Second, []Action{a})
	default:
		return status.ErrInvalidAction
	}
}

func (k *counter) Rows(ctx context.Context, tx store.Tx, scope, table string) ([]any, error) {
	v, _, err := tx.Singleton(ctx, scope, table)
	if err != nil {
		return nil, err
	}
	return []any{v}, nil
}

type harness struct {
	chain *Chain
	clock *ManualClock
	store store.Store
	keys  map[string]ed25519.PrivateKey
}

func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	s := store.NewMemory()
	accounts := account.NewService(account.NewStoreRepository(s))
	h := &harness{clock: NewManualClock(genesis), store: s, keys: map[string]ed25519.PrivateKey{}}
	for _, name := range names {
		pub, priv, _ := ed25519.GenerateKey(nil)
		if _, err := accounts.Register(context.Background(), account.Registration{
			Name: name, OwnerKey: account.EncodeKey(pub), ActiveKey: account.EncodeKey(pub),
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		h.keys[name] = priv
	}
	h.chain = New(s, auth.NewValidator(accounts), h.clock, logging.Discard())
	return h
}

func (h *harness) push(t *testing.T, nonce, signer string, actions ...Action) (Receipt, error) {
	t.Helper()
	tx := Transaction{Expiration: h.clock.Now().Add(time.Minute).Unix(), Nonce: nonce, Actions: actions}
	var signers []Signer
	if signer != "" {
		signers = append(signers, Signer{Level: auth.Level{Actor: signer, Permission: auth.Active}, Key: h.keys[signer]})
	}
	signed, err := Sign(tx, signers...)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return h.chain.Push(context.Background(), signed)
}

func (h *harness) value(t *testing.T, scope, name string) int64 {
	t.Helper()
	rows, err := h.chain.Rows(context.Background(), "counter", scope, name)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	return rows[0].(int64)
}

func mustAction(t *testing.T, account, name string, args counterArgs, levels ...auth.Level) Action {
	t.Helper()
	a, err := NewAction(account, name, args, levels...)
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	return a
}

func active(name string) auth.Level { return auth.Level{Actor: name, Permission: auth.Active} }

func TestPushAppliesAndRejectsDuplicates(t *testing.T) {
	h := newHarness(t, "alice")
	h.chain.Deploy("counter", &counter{})

	inc := mustAction(t, "counter", "inc", counterArgs{From: "alice"}, active("alice"))
	r, err := h.push(t, "n1", "alice", inc)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if r.Status != status.OK || len(r.Console) != 1 || r.BlockTime != genesis.Unix() {
		t.Fatalf("unexpected receipt %+v", r)
	}
	if got := h.value(t, "counter", "alice"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	r, err = h.push(t, "n1", "alice", inc)
	if !errors.Is(err, status.ErrDuplicateTransaction) || r.Status != status.DuplicateTransaction {
		t.Fatalf("expected duplicate, got %v (%s)", err, r.Status)
	}
}

func TestPushRequiresSignatures(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	h.chain.Deploy("counter", &counter{})

	inc := mustAction(t, "counter", "inc", counterArgs{From: "alice"}, active("alice"))
	if _, err := h.push(t, "n1", "bob", inc); !errors.Is(err, status.ErrAuthorization) {
		t.Fatalf("expected declared level without signature to fail, got %v", err)
	}

	undeclared := mustAction(t, "counter", "inc", counterArgs{From: "alice"}, active("bob"))
	r, err := h.push(t, "n2", "bob", undeclared)
	if !errors.Is(err, status.ErrAuthorization) || r.Status != status.AuthorizationError {
		t.Fatalf("expected require auth to fail, got %v", err)
	}
}

func TestPushIsAllOrNothing(t *testing.T) {
	h := newHarness(t, "alice")
	h.chain.Deploy("counter", &counter{})

	inc := mustAction(t, "counter", "inc", counterArgs{From: "alice"}, active("alice"))
	fail := mustAction(t, "counter", "incfail", counterArgs{From: "bob"})
	if _, err := h.push(t, "n1", "alice", inc, fail); err == nil {
		t.Fatalf("expected failure")
	}
	if got := h.value(t, "counter", "alice"); got != 0 {
		t.Fatalf("expected first action rolled back, got %d", got)
	}
	if got := h.value(t, "counter", "bob"); got != 0 {
		t.Fatalf("expected failing action rolled back, got %d", got)
	}
}

func TestPushExpiry(t *testing.T) {
	h := newHarness(t, "alice")
	h.chain.Deploy("counter", &counter{})
	inc := mustAction(t, "counter", "inc", counterArgs{From: "alice"}, active("alice"))

	tx := Transaction{Expiration: genesis.Add(-time.Second).Unix(), Nonce: "old", Actions: []Action{inc}}
	signed, _ := Sign(tx, Signer{Level: active("alice"), Key: h.keys["alice"]})
	if _, err := h.chain.Push(context.Background(), signed); !errors.Is(err, status.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	tx = Transaction{Expiration: genesis.Add(2 * MaxExpiration).Unix(), Nonce: "far", Actions: []Action{inc}}
	signed, _ = Sign(tx, Signer{Level: active("alice"), Key: h.keys["alice"]})
	if _, err := h.chain.Push(context.Background(), signed); !errors.Is(err, status.ErrExpired) {
		t.Fatalf("expected far expiration rejected, got %v", err)
	}
}

func TestInlineAuthorization(t *testing.T) {
	h := newHarness(t, "alice")
	h.chain.Deploy("counter", &counter{})
	h.chain.Deploy("relay", &counter{})

	relay := mustAction(t, "relay", "relay", counterArgs{From: "alice", Target: "counter"}, active("alice"))
	if _, err := h.push(t, "n1", "alice", relay); err != nil {
		t.Fatalf("relay with carried authority: %v", err)
	}
	if got := h.value(t, "counter", "alice"); got != 1 {
		t.Fatalf("expected inline inc, got %d", got)
	}

	borrowed := mustAction(t, "relay", "relay", counterArgs{From: "bob", Target: "counter"}, active("alice"))
	if _, err := h.push(t, "n2", "alice", borrowed); !errors.Is(err, status.ErrAuthorization) {
		t.Fatalf("expected inline use of foreign authority to fail, got %v", err)
	}

	self := mustAction(t, "relay", "selfcall", counterArgs{Target: "counter"})
	if _, err := h.push(t, "n3", "", self); err != nil {
		t.Fatalf("contract should act with its own authority: %v", err)
	}
	if got := h.value(t, "counter", "relay"); got != 1 {
		t.Fatalf("expected relay counter 1, got %d", got)
	}
}

func TestNotify(t *testing.T) {
	h := newHarness(t, "alice")
	recipient := &counter{}
	h.chain.Deploy("counter", &counter{})
	h.chain.Deploy("watcher", recipient)

	ping := mustAction(t, "counter", "ping", counterArgs{Target: "watcher"})
	if _, err := h.push(t, "n1", "", ping); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if len(recipient.notified) != 1 || recipient.notified[0] != "watcher<-counter::ping" {
		t.Fatalf("unexpected notifications %v", recipient.notified)
	}

	nobody := mustAction(t, "counter", "ping", counterArgs{Target: "alice"})
	if _, err := h.push(t, "n2", "", nobody); err != nil {
		t.Fatalf("notify without contract should be skipped: %v", err)
	}
}

func TestDeferredTransactions(t *testing.T) {
	h := newHarness(t)
	h.chain.Deploy("counter", &counter{})

	later := mustAction(t, "counter", "later", counterArgs{})
	if _, err := h.push(t, "n1", "", later); err != nil {
		t.Fatalf("later: %v", err)
	}
	if _, err := h.push(t, "n2", "", later); err != nil {
		t.Fatalf("later again: %v", err)
	}
	if got := h.chain.PendingDeferred(); got != 1 {
		t.Fatalf("expected same id to replace, got %d pending", got)
	}

	if rs := h.chain.ProcessDeferred(context.Background()); len(rs) != 0 {
		t.Fatalf("nothing should be due yet, got %d", len(rs))
	}
	h.clock.Advance(5 * time.Second)
	rs := h.chain.ProcessDeferred(context.Background())
	if len(rs) != 1 || rs[0].Status != status.OK {
		t.Fatalf("unexpected receipts %+v", rs)
	}
	if got := h.value(t, "counter", "counter"); got != 1 {
		t.Fatalf("expected deferred inc, got %d", got)
	}

	fail := mustAction(t, "counter", "incfail", counterArgs{From: "x"})
	if _, err := h.push(t, "n3", "", later, fail); err == nil {
		t.Fatalf("expected failure")
	}
	if got := h.chain.PendingDeferred(); got != 0 {
		t.Fatalf("aborted transaction must not queue deferred work, got %d", got)
	}
}

func TestOnCommitRunsOnlyAfterCommit(t *testing.T) {
	h := newHarness(t)
	var fired int
	h.chain.Deploy("hook", contractFunc(func(ctx context.Context, c *Context) error {
		c.OnCommit(func(context.Context) { fired++ })
		if c.Action().Name == "abort" {
			return errors.New("abort")
		}
		return nil
	}))

	ok := Action{Account: "hook", Name: "ok"}
	abort := Action{Account: "hook", Name: "abort"}
	if _, err := h.push(t, "n1", "", ok); err != nil {
		t.Fatalf("ok: %v", err)
	}
	if _, err := h.push(t, "n2", "", abort); err == nil {
		t.Fatalf("expected abort")
	}
	if fired != 1 {
		t.Fatalf("expected one hook, got %d", fired)
	}
}

type contractFunc func(ctx context.Context, c *Context) error

func (f contractFunc) Apply(ctx context.Context, c *Context) error { return f(ctx, c) }

func TestUnknownContract(t *testing.T) {
	h := newHarness(t)
	if _, err := h.push(t, "n1", "", Action{Account: "ghost", Name: "x"}); !errors.Is(err, status.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
	if _, err := h.chain.Rows(context.Background(), "ghost", "ghost", "t"); !errors.Is(err, status.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
