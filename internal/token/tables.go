package token

import (
	"context"
	"fmt"
	"strings"

	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// StatRow is a row of the stat table, scoped by symbol code.
type StatRow struct {
	Supply    asset.Asset `json:"supply"`
	MaxSupply asset.Asset `json:"max_supply"`
	Issuer    string      `json:"issuer"`
}

// AccountRow is a row of the accounts table, scoped by owner.
type AccountRow struct {
	Balance asset.Asset `json:"balance"`
}

// Rows serves the stat and accounts tables.
func (t *Contract) Rows(ctx context.Context, tx store.Tx, scope, table string) ([]any, error) {
	self := t.account
	switch table {
	case "stat":
		stat, ok, err := tx.TokenStat(ctx, self, strings.ToUpper(scope))
		if err != nil || !ok {
			return []any{}, err
		}
		sym := asset.Symbol{Code: stat.Code, Precision: stat.Precision}
		return []any{StatRow{Supply: asset.New(stat.Supply, sym), MaxSupply: asset.New(stat.MaxSupply, sym), Issuer: stat.Issuer}}, nil
	case "accounts":
		balances, err := tx.TokenBalances(ctx, self, scope)
		if err != nil {
			return nil, err
		}
		rows := make([]any, 0, len(balances))
		for _, b := range balances {
			stat, _, err := tx.TokenStat(ctx, self, b.Code)
			if err != nil {
				return nil, err
			}
			rows = append(rows, AccountRow{Balance: asset.New(b.Amount, asset.Symbol{Code: b.Code, Precision: stat.Precision})})
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("token has no table %q: %w", table, status.ErrNotFound)
	}
}
