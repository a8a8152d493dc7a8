package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/ledger"
	"github.com/cronos-sched/cronos/internal/logging"
	"github.com/cronos-sched/cronos/internal/store"
)

const contractAccount = "cronos"

var genesis = time.Unix(1_700_000_000, 0).UTC()

type fakeEnv struct {
	tx      store.Tx
	now     time.Time
	calls   []chain.Action
	handler func(ctx context.Context, tx store.Tx, a chain.Action) error
}

func (e *fakeEnv) Tx() store.Tx   { return e.tx }
func (e *fakeEnv) Self() string   { return contractAccount }
func (e *fakeEnv) Now() time.Time { return e.now }
func (e *fakeEnv) Invoke(ctx context.Context, a chain.Action) error {
	e.calls = append(e.calls, a)
	if e.handler != nil {
		return e.handler(ctx, e.tx, a)
	}
	return nil
}

func setup(t *testing.T, balances map[string]int64, rows ...store.ScheduleRow) (*Driver, *fakeEnv) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	for owner, amount := range balances {
		if err := ledger.SeedBalance(ctx, s, contractAccount, owner, amount); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(ctx) })
	for _, r := range rows {
		if err := tx.PutSchedule(ctx, contractAccount, r); err != nil {
			t.Fatalf("put schedule: %v", err)
		}
	}
	return New(ledger.New(contractAccount), 10, 0, logging.Discard()), &fakeEnv{tx: tx, now: genesis}
}

func entry(id uint64, from string, due time.Time) store.ScheduleRow {
	return store.ScheduleRow{ID: id, From: from, Account: contractAccount, Action: "dumb", Period: 3 * time.Second, Active: true, NextDue: due, LastUpdated: genesis}
}

func row(t *testing.T, env *fakeEnv, id uint64) store.ScheduleRow {
	t.Helper()
	r, ok, err := env.tx.Schedule(context.Background(), contractAccount, id)
	if err != nil || !ok {
		t.Fatalf("schedule %d: ok=%v err=%v", id, ok, err)
	}
	return r
}

func balance(t *testing.T, env *fakeEnv, owner string) int64 {
	t.Helper()
	b, err := ledger.New(contractAccount).Get(context.Background(), env.tx, owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func TestRunDueSkipsEntriesNotDue(t *testing.T) {
	d, env := setup(t, map[string]int64{"alice": 500}, entry(0, "alice", genesis.Add(3*time.Second)))

	rep, err := d.RunDue(context.Background(), env, 0)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if len(rep.Entries) != 0 || len(env.calls) != 0 {
		t.Fatalf("nothing should run before due, got %+v", rep)
	}
	if got := balance(t, env, "alice"); got != 500 {
		t.Fatalf("balance must be untouched, got %d", got)
	}
}

func TestRunDueChargesOncePerPeriod(t *testing.T) {
	d, env := setup(t, map[string]int64{"alice": 500}, entry(0, "alice", genesis.Add(3*time.Second)))
	ctx := context.Background()
	env.now = genesis.Add(3 * time.Second)

	rep, err := d.RunDue(ctx, env, 0)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if rep.Executed != 1 || rep.Entries[0].Balance != 490 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(env.calls) != 1 || env.calls[0].Account != contractAccount || env.calls[0].Name != "dumb" {
		t.Fatalf("unexpected invocation %+v", env.calls)
	}
	var inv Invocation
	if err := env.calls[0].Decode(&inv); err != nil || inv.From != "alice" {
		t.Fatalf("expected payload from alice, got %+v (%v)", inv, err)
	}
	if lvl := env.calls[0].Authorization; len(lvl) != 1 || lvl[0].Actor != contractAccount {
		t.Fatalf("invocation must carry the contract's authority, got %+v", lvl)
	}
	r := row(t, env, 0)
	if !r.NextDue.Equal(genesis.Add(6*time.Second)) || !r.LastUpdated.Equal(env.now) || !r.Active {
		t.Fatalf("unexpected row %+v", r)
	}

	rep, err = d.RunDue(ctx, env, 0)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(rep.Entries) != 0 || balance(t, env, "alice") != 490 {
		t.Fatalf("a second trigger in the same period must be a no-op, got %+v", rep)
	}
}

func TestRunDueDeactivatesUnfundedEntries(t *testing.T) {
	due := genesis.Add(3 * time.Second)
	d, env := setup(t, map[string]int64{"alice": 9}, entry(0, "alice", due))
	env.now = due.Add(time.Minute)

	rep, err := d.RunDue(context.Background(), env, 0)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if rep.Deactivated != 1 || len(env.calls) != 0 {
		t.Fatalf("expected deactivation without invocation, got %+v", rep)
	}
	r := row(t, env, 0)
	if r.Active || !r.NextDue.Equal(due) {
		t.Fatalf("expected inactive entry with unchanged next_due, got %+v", r)
	}
	if got := balance(t, env, "alice"); got != 9 {
		t.Fatalf("deactivation must not charge, got %d", got)
	}

	rep, _ = d.RunDue(context.Background(), env, 0)
	if len(rep.Entries) != 0 {
		t.Fatalf("inactive entries are never selected, got %+v", rep)
	}
}

func TestRunDueRollsBackFailedEntryOnly(t *testing.T) {
	due := genesis.Add(3 * time.Second)
	bad := entry(0, "alice", due)
	bad.Action = "explode"
	d, env := setup(t, map[string]int64{"alice": 100, "bob": 100}, bad, entry(1, "bob", due))
	env.now = due
	env.handler = func(ctx context.Context, tx store.Tx, a chain.Action) error {
		if a.Name != "explode" {
			return nil
		}
		if err := tx.PutBalance(ctx, contractAccount, store.BalanceRow{Owner: "mallory", Amount: 1_000}); err != nil {
			return err
		}
		return errors.New("target aborted")
	}

	rep, err := d.RunDue(context.Background(), env, 0)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if rep.Failed != 1 || rep.Executed != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Entries[0].Error == "" {
		t.Fatalf("failed outcome must carry the error")
	}
	if got := balance(t, env, "alice"); got != 100 {
		t.Fatalf("failed entry must not be charged, got %d", got)
	}
	if got := balance(t, env, "mallory"); got != 0 {
		t.Fatalf("writes of the failed invocation must be undone, got %d", got)
	}
	if r := row(t, env, 0); !r.NextDue.Equal(due) || !r.Active {
		t.Fatalf("failed entry must stay due, got %+v", r)
	}
	if got := balance(t, env, "bob"); got != 90 {
		t.Fatalf("next entry should still execute, got %d", got)
	}
}

func TestRunDueHonoursBatchLimitAndOrder(t *testing.T) {
	var rows []store.ScheduleRow
	for i := uint64(0); i < 5; i++ {
		rows = append(rows, entry(i, "alice", genesis.Add(time.Duration(5-i)*time.Second)))
	}
	d, env := setup(t, map[string]int64{"alice": 500}, rows...)
	env.now = genesis.Add(time.Minute)

	rep, err := d.RunDue(context.Background(), env, 2)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if len(rep.Entries) != 2 || rep.Entries[0].ID != 4 || rep.Entries[1].ID != 3 {
		t.Fatalf("expected the two oldest entries, got %+v", rep.Entries)
	}
	if got := balance(t, env, "alice"); got != 480 {
		t.Fatalf("expected two charges, got %d", got)
	}
}

func TestRunDueRotatesPastFailingEntries(t *testing.T) {
	const failing = 5
	due := genesis.Add(3 * time.Second)
	var rows []store.ScheduleRow
	for i := uint64(0); i < failing; i++ {
		r := entry(i, "mallory", due)
		r.Action = "nosuch"
		rows = append(rows, r)
	}
	rows = append(rows, entry(failing, "alice", due))
	d, env := setup(t, map[string]int64{"alice": 100, "mallory": 100}, rows...)
	env.handler = func(_ context.Context, _ store.Tx, a chain.Action) error {
		if a.Name == "nosuch" {
			return errors.New("no such action")
		}
		return nil
	}
	ctx := context.Background()

	env.now = due
	rep, err := d.RunDue(ctx, env, failing)
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if rep.Failed != failing || rep.Executed != 0 {
		t.Fatalf("expected the failing entries first, got %+v", rep)
	}
	for i := uint64(0); i < failing; i++ {
		if r := row(t, env, i); !r.LastUpdated.Equal(due) || !r.NextDue.Equal(due) {
			t.Fatalf("failed entry %d must be stamped and stay due, got %+v", i, r)
		}
	}

	rep, err = d.RunDue(ctx, env, failing)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if rep.Executed != 1 || rep.Entries[0].ID != failing {
		t.Fatalf("the funded entry must not starve behind failing ones, got %+v", rep)
	}
	if got := balance(t, env, "alice"); got != 90 {
		t.Fatalf("expected alice charged once, got %d", got)
	}
	if got := balance(t, env, "mallory"); got != 100 {
		t.Fatalf("failed entries are never charged, got %d", got)
	}
}

func TestBatchClamp(t *testing.T) {
	d := New(ledger.New(contractAccount), 10, 50, logging.Discard())
	if got := d.Batch(0); got != DefaultBatch {
		t.Fatalf("expected default batch, got %d", got)
	}
	if got := d.Batch(1_000); got != 50 {
		t.Fatalf("expected clamp to 50, got %d", got)
	}
	if got := New(ledger.New(contractAccount), 10, 1_000, logging.Discard()).Batch(1_000); got != MaxBatch {
		t.Fatalf("expected hard ceiling %d, got %d", MaxBatch, got)
	}
}
