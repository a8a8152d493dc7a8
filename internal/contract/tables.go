package contract

import (
	"context"
	"fmt"
	"time"

	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// BalanceRow is a row of the balance table.
type BalanceRow struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

// TimetableRow is a row of the timetable table.
type TimetableRow struct {
	ID          uint64    `json:"id"`
	From        string    `json:"from"`
	Account     string    `json:"account"`
	Action      string    `json:"action"`
	Period      int64     `json:"period"`
	Active      bool      `json:"active"`
	NextDue     time.Time `json:"next_due"`
	LastUpdated time.Time `json:"last_updated"`
}

// Rows serves the balance and timetable tables. Both live in the contract's
// own scope; other scopes are empty.
func (k *Contract) Rows(ctx context.Context, tx store.Tx, scope, table string) ([]any, error) {
	switch table {
	case "balance", "timetable":
	default:
		return nil, fmt.Errorf("%s has no table %q: %w", k.cfg.Account, table, status.ErrNotFound)
	}
	if scope != k.cfg.Account {
		return []any{}, nil
	}

	if table == "balance" {
		balances, err := k.ledger.Rows(ctx, tx)
		if err != nil {
			return nil, err
		}
		rows := make([]any, 0, len(balances))
		for _, b := range balances {
			rows = append(rows, BalanceRow{Owner: b.Owner, Balance: b.Amount})
		}
		return rows, nil
	}

	entries, err := k.schedules.Entries(ctx, tx, k.cfg.Account)
	if err != nil {
		return nil, err
	}
	rows := make([]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, TimetableRow{
			ID:          e.ID,
			From:        e.From,
			Account:     e.Account,
			Action:      e.Action,
			Period:      int64(e.Period / time.Second),
			Active:      e.Active,
			NextDue:     e.NextDue,
			LastUpdated: e.LastUpdated,
		})
	}
	return rows, nil
}

func nextDeferredID(ctx context.Context, c *chain.Context) (uint64, error) {
	return store.NextID(ctx, c.Tx(), c.Self(), DeferredCounter)
}
