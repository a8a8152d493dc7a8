package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

func balanceOf(t *testing.T, s store.Store, l *Ledger, owner string) int64 {
	t.Helper()
	var got int64
	err := store.View(context.Background(), s, func(tx store.Tx) error {
		var err error
		got, err = l.Get(context.Background(), tx, owner)
		return err
	})
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return got
}

func TestLedger_CreditCreatesRecord(t *testing.T) {
	s := store.NewMemory()
	l := New("cronos")
	ctx := context.Background()

	if got := balanceOf(t, s, l, "alice"); got != 0 {
		t.Fatalf("expected absent balance to read 0, got %d", got)
	}

	err := store.Update(ctx, s, func(tx store.Tx) error {
		bal, err := l.Credit(ctx, tx, "alice", 500)
		if err != nil {
			return err
		}
		if bal != 500 {
			t.Fatalf("expected 500 after credit, got %d", bal)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if got := balanceOf(t, s, l, "alice"); got != 500 {
		t.Fatalf("expected 500 persisted, got %d", got)
	}
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	s := store.NewMemory()
	l := New("cronos")
	ctx := context.Background()

	_ = store.View(ctx, s, func(tx store.Tx) error {
		if _, err := l.Credit(ctx, tx, "alice", 0); !errors.Is(err, status.ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for zero credit, got %v", err)
		}
		if _, err := l.Debit(ctx, tx, "alice", -1); !errors.Is(err, status.ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for negative debit, got %v", err)
		}
		return nil
	})
}

func TestLedger_DebitNeverGoesNegative(t *testing.T) {
	s := store.NewMemory()
	l := New("cronos")
	ctx := context.Background()
	if err := SeedBalance(ctx, s, "cronos", "alice", 15); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.Update(ctx, s, func(tx store.Tx) error {
		if _, err := l.Debit(ctx, tx, "alice", 10); err != nil {
			return err
		}
		if _, err := l.Debit(ctx, tx, "alice", 10); !errors.Is(err, status.ErrInsufficientBalance) {
			t.Fatalf("expected insufficient balance, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if got := balanceOf(t, s, l, "alice"); got != 5 {
		t.Fatalf("expected 5 left, got %d", got)
	}
}

func TestLedger_CreditOverflow(t *testing.T) {
	s := store.NewMemory()
	l := New("cronos")
	ctx := context.Background()
	if err := SeedBalance(ctx, s, "cronos", "alice", math.MaxInt64-1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = store.View(ctx, s, func(tx store.Tx) error {
		if _, err := l.Credit(ctx, tx, "alice", 2); !errors.Is(err, status.ErrInvalidAmount) {
			t.Fatalf("expected overflow rejection, got %v", err)
		}
		return nil
	})
}

func TestLedger_RollbackDiscardsPostings(t *testing.T) {
	s := store.NewMemory()
	l := New("cronos")
	ctx := context.Background()
	if err := SeedBalance(ctx, s, "cronos", "alice", 100); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, s, func(tx store.Tx) error {
		if _, err := l.Debit(ctx, tx, "alice", 40); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := balanceOf(t, s, l, "alice"); got != 100 {
		t.Fatalf("expected rollback to restore 100, got %d", got)
	}
}

func TestLedger_ConcurrentCredits(t *testing.T) {
	s := store.NewMemory()
	l := New("cronos")
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, s, func(tx store.Tx) error {
				_, err := l.Credit(ctx, tx, "alice", 50)
				return err
			})
			if err != nil {
				t.Errorf("credit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balanceOf(t, s, l, "alice"); got != workers*50 {
		t.Fatalf("expected %d after concurrent credits, got %d", workers*50, got)
	}

	var rows []store.BalanceRow
	_ = store.View(ctx, s, func(tx store.Tx) error {
		var err error
		rows, err = l.Rows(ctx, tx)
		return err
	})
	if len(rows) != 1 || rows[0].Owner != "alice" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
