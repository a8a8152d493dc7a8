package ledger

import (
	"context"

	"github.com/cronos-sched/cronos/internal/store"
)

// SeedBalance is a test helper that sets the balance of owner directly.
func SeedBalance(ctx context.Context, s store.Store, scope, owner string, amount int64) error {
	return store.Update(ctx, s, func(tx store.Tx) error {
		return tx.PutBalance(ctx, scope, store.BalanceRow{Owner: owner, Amount: amount})
	})
}
