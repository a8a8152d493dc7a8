package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// Ledger tracks prepaid balances owed to accounts by one contract. Amounts
// are smallest units of the contract's accepted symbol. Every call runs
// inside the caller's transaction, so a failed action leaves no postings.
type Ledger struct {
	scope string
}

// New creates a ledger whose rows live under the given contract scope.
func New(scope string) *Ledger {
	return &Ledger{scope: scope}
}

// Scope returns the contract account owning the balance table.
func (l *Ledger) Scope() string { return l.scope }

// Get returns the balance of owner. A missing record reads as zero.
func (l *Ledger) Get(ctx context.Context, tx store.Tx, owner string) (int64, error) {
	row, _, err := tx.Balance(ctx, l.scope, owner)
	if err != nil {
		return 0, fmt.Errorf("read balance %s: %w", owner, err)
	}
	return row.Amount, nil
}

// Credit adds amount to owner's balance, creating the record on first use.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, owner string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, status.ErrInvalidAmount
	}
	current, err := l.Get(ctx, tx, owner)
	if err != nil {
		return 0, err
	}
	if current > math.MaxInt64-amount {
		return 0, fmt.Errorf("credit %s overflows balance: %w", owner, status.ErrInvalidAmount)
	}
	next := current + amount
	if err := tx.PutBalance(ctx, l.scope, store.BalanceRow{Owner: owner, Amount: next}); err != nil {
		return 0, fmt.Errorf("write balance %s: %w", owner, err)
	}
	return next, nil
}

// Debit removes amount from owner's balance. It never debits partially.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, owner string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, status.ErrInvalidAmount
	}
	current, err := l.Get(ctx, tx, owner)
	if err != nil {
		return 0, err
	}
	if current < amount {
		return current, status.ErrInsufficientBalance
	}
	next := current - amount
	if err := tx.PutBalance(ctx, l.scope, store.BalanceRow{Owner: owner, Amount: next}); err != nil {
		return 0, fmt.Errorf("write balance %s: %w", owner, err)
	}
	return next, nil
}

// Rows lists every balance record ordered by owner.
func (l *Ledger) Rows(ctx context.Context, tx store.Tx) ([]store.BalanceRow, error) {
	return tx.Balances(ctx, l.scope)
}
