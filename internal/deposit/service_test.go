package deposit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/ledger"
	"github.com/cronos-sched/cronos/internal/logging"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
	"github.com/cronos-sched/cronos/internal/token"
)

const (
	contractAccount = "cronos"
	tokenAccount    = "eosio.token"
)

type fakeEnv struct {
	tx      store.Tx
	code    string
	granted []auth.Level
	invoked []chain.Action
	fail    error
}

func (e *fakeEnv) Tx() store.Tx { return e.tx }
func (e *fakeEnv) Self() string { return contractAccount }
func (e *fakeEnv) Code() string { return e.code }
func (e *fakeEnv) RequireAuth(actor string, p auth.Permission) error {
	return auth.Require(e.granted, actor, p)
}
func (e *fakeEnv) Invoke(_ context.Context, a chain.Action) error {
	e.invoked = append(e.invoked, a)
	return e.fail
}

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	sym, err := asset.ParseSymbol("0,CRON")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	return NewService(ledger.New(contractAccount), tokenAccount, sym, logging.Discard()), store.NewMemory()
}

func begin(t *testing.T, s store.Store, env *fakeEnv) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	env.tx = tx
}

func TestOnTransferCreditsSender(t *testing.T) {
	svc, s := newService(t)
	env := &fakeEnv{code: tokenAccount}
	begin(t, s, env)
	ctx := context.Background()

	res, ok, err := svc.OnTransfer(ctx, env, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("500 cron")})
	if err != nil || !ok {
		t.Fatalf("on transfer: ok=%v err=%v", ok, err)
	}
	if res.Balance != 500 || res.Owner != "alice" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, ok, err = svc.OnTransfer(ctx, env, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("2.000 CRON")})
	if err != nil || !ok || res.Balance != 502 {
		t.Fatalf("expected lossless rescale credit, got %+v ok=%v err=%v", res, ok, err)
	}

	if _, ok, err := svc.OnTransfer(ctx, env, token.Transfer{From: contractAccount, To: "alice", Quantity: asset.MustParse("5 CRON")}); err != nil || ok {
		t.Fatalf("outgoing transfer must be ignored, ok=%v err=%v", ok, err)
	}
	got, _ := ledger.New(contractAccount).Get(ctx, env.tx, "alice")
	if got != 502 {
		t.Fatalf("expected 502, got %d", got)
	}
}

func TestOnTransferRejections(t *testing.T) {
	cases := []struct {
		name string
		code string
		tr   token.Transfer
	}{
		{"foreign token contract", "fake.token", token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("5 CRON")}},
		{"wrong symbol", tokenAccount, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("5 EOS")}},
		{"fractional", tokenAccount, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("0.5 CRON")}},
		{"zero", tokenAccount, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("0 CRON")}},
		{"not to contract", tokenAccount, token.Transfer{From: "alice", To: "bob", Quantity: asset.MustParse("5 CRON")}},
		{"memo too long", tokenAccount, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("5 CRON"), Memo: strings.Repeat("x", token.MaxMemo+1)}},
		{"memo not utf8", tokenAccount, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("5 CRON"), Memo: "\xff"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, s := newService(t)
			env := &fakeEnv{code: tc.code}
			begin(t, s, env)
			if _, _, err := svc.OnTransfer(context.Background(), env, tc.tr); !errors.Is(err, status.ErrInvalidTransfer) {
				t.Fatalf("expected invalid transfer, got %v", err)
			}
		})
	}
}

func TestDepositPullsThroughToken(t *testing.T) {
	svc, s := newService(t)
	env := &fakeEnv{code: contractAccount, granted: []auth.Level{{Actor: "alice", Permission: auth.Active}}}
	begin(t, s, env)
	ctx := context.Background()

	if err := svc.Deposit(ctx, env, token.Transfer{From: "alice", To: contractAccount, Quantity: asset.MustParse("500 cron"), Memo: "fund"}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(env.invoked) != 1 {
		t.Fatalf("expected one inline transfer, got %d", len(env.invoked))
	}
	var pulled token.Transfer
	if err := env.invoked[0].Decode(&pulled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.invoked[0].Account != tokenAccount || pulled.From != "alice" || pulled.To != contractAccount || pulled.Quantity.String() != "500 CRON" {
		t.Fatalf("unexpected inline transfer %+v", pulled)
	}
	if got, _ := ledger.New(contractAccount).Get(ctx, env.tx, "alice"); got != 0 {
		t.Fatalf("deposit must leave crediting to the notification, got %d", got)
	}

	if err := svc.Deposit(ctx, env, token.Transfer{From: "bob", To: contractAccount, Quantity: asset.MustParse("5 CRON")}); !errors.Is(err, status.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(ctx, s, contractAccount, "alice", 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	env := &fakeEnv{code: contractAccount, granted: []auth.Level{{Actor: "alice", Permission: auth.Active}}}
	begin(t, s, env)

	res, err := svc.Withdraw(ctx, env, "alice", asset.MustParse("40 CRON"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Balance != 60 {
		t.Fatalf("expected 60 left, got %d", res.Balance)
	}
	var paid token.Transfer
	_ = env.invoked[0].Decode(&paid)
	if paid.From != contractAccount || paid.To != "alice" || paid.Memo != WithdrawMemo {
		t.Fatalf("unexpected payout %+v", paid)
	}
	if env.invoked[0].Authorization[0].Actor != contractAccount {
		t.Fatalf("payout must be authorized by the contract")
	}

	if _, err := svc.Withdraw(ctx, env, "alice", asset.MustParse("61 CRON")); !errors.Is(err, status.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}
