// Package token is a minimal fungible-token contract: one issuer per symbol,
// capped supply, and transfers that notify both parties.
package token

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// MaxMemo is the longest memo a transfer may carry, in bytes.
const MaxMemo = 256

// Create registers a new symbol.
type Create struct {
	Issuer        string      `json:"issuer"`
	MaximumSupply asset.Asset `json:"maximum_supply"`
}

// Issue mints quantity to an account.
type Issue struct {
	To       string      `json:"to"`
	Quantity asset.Asset `json:"quantity"`
	Memo     string      `json:"memo"`
}

// Transfer moves quantity between two accounts. Recipient contracts receive
// it as a notification.
type Transfer struct {
	From     string      `json:"from"`
	To       string      `json:"to"`
	Quantity asset.Asset `json:"quantity"`
	Memo     string      `json:"memo"`
}

// Contract is the token contract deployed on one account.
type Contract struct {
	account string
}

// New returns the token contract for deployment on account.
func New(account string) *Contract { return &Contract{account: account} }

// Apply dispatches token actions. Notifications of other contracts' actions
// are ignored.
func (t *Contract) Apply(ctx context.Context, c *chain.Context) error {
	if c.Code() != c.Self() {
		return nil
	}
	switch c.Action().Name {
	case "create":
		var req Create
		if err := c.Decode(&req); err != nil {
			return err
		}
		return t.create(ctx, c, req)
	case "issue":
		var req Issue
		if err := c.Decode(&req); err != nil {
			return err
		}
		return t.issue(ctx, c, req)
	case "transfer":
		var req Transfer
		if err := c.Decode(&req); err != nil {
			return err
		}
		return t.transfer(ctx, c, req)
	default:
		return fmt.Errorf("token has no action %q: %w", c.Action().Name, status.ErrInvalidAction)
	}
}

func (t *Contract) create(ctx context.Context, c *chain.Context, req Create) error {
	if err := c.RequireAuth(c.Self(), auth.Active); err != nil {
		return err
	}
	if !account.ValidName(req.Issuer) {
		return fmt.Errorf("issuer %q: %w", req.Issuer, account.ErrInvalidName)
	}
	if req.MaximumSupply.Amount <= 0 {
		return fmt.Errorf("max supply must be positive: %w", status.ErrInvalidAmount)
	}
	sym := req.MaximumSupply.Symbol
	if _, exists, err := c.Tx().TokenStat(ctx, c.Self(), sym.Code); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("token %s already exists: %w", sym.Code, status.ErrInvalidAction)
	}
	return c.Tx().PutTokenStat(ctx, c.Self(), store.TokenStat{
		Code:      sym.Code,
		Precision: sym.Precision,
		Issuer:    req.Issuer,
		MaxSupply: req.MaximumSupply.Amount,
	})
}

func (t *Contract) issue(ctx context.Context, c *chain.Context, req Issue) error {
	stat, err := t.stat(ctx, c, req.Quantity)
	if err != nil {
		return err
	}
	if err := c.RequireAuth(stat.Issuer, auth.Active); err != nil {
		return err
	}
	if err := checkMemo(req.Memo); err != nil {
		return err
	}
	if req.Quantity.Amount > stat.MaxSupply-stat.Supply {
		return fmt.Errorf("quantity exceeds available supply: %w", status.ErrInvalidAmount)
	}
	stat.Supply += req.Quantity.Amount
	if err := c.Tx().PutTokenStat(ctx, c.Self(), stat); err != nil {
		return err
	}
	return t.add(ctx, c, req.To, stat.Code, req.Quantity.Amount)
}

func (t *Contract) transfer(ctx context.Context, c *chain.Context, req Transfer) error {
	if req.From == req.To {
		return fmt.Errorf("cannot transfer to self: %w", status.ErrInvalidAction)
	}
	if err := c.RequireAuth(req.From, auth.Active); err != nil {
		return err
	}
	if !account.ValidName(req.To) {
		return fmt.Errorf("recipient %q: %w", req.To, account.ErrInvalidName)
	}
	stat, err := t.stat(ctx, c, req.Quantity)
	if err != nil {
		return err
	}
	if err := checkMemo(req.Memo); err != nil {
		return err
	}
	if err := t.sub(ctx, c, req.From, stat.Code, req.Quantity.Amount); err != nil {
		return err
	}
	if err := t.add(ctx, c, req.To, stat.Code, req.Quantity.Amount); err != nil {
		return err
	}
	if err := c.Notify(ctx, req.From); err != nil {
		return err
	}
	return c.Notify(ctx, req.To)
}

// stat loads the symbol's stats and checks quantity against them.
func (t *Contract) stat(ctx context.Context, c *chain.Context, quantity asset.Asset) (store.TokenStat, error) {
	stat, ok, err := c.Tx().TokenStat(ctx, c.Self(), quantity.Symbol.Code)
	if err != nil {
		return store.TokenStat{}, err
	}
	if !ok {
		return store.TokenStat{}, fmt.Errorf("token %s: %w", quantity.Symbol.Code, status.ErrNotFound)
	}
	if quantity.Symbol.Precision != stat.Precision {
		return store.TokenStat{}, fmt.Errorf("symbol precision mismatch for %s: %w", stat.Code, status.ErrInvalidAmount)
	}
	if quantity.Amount <= 0 {
		return store.TokenStat{}, fmt.Errorf("quantity must be positive: %w", status.ErrInvalidAmount)
	}
	return stat, nil
}

func (t *Contract) add(ctx context.Context, c *chain.Context, owner, code string, amount int64) error {
	bal, _, err := c.Tx().TokenBalance(ctx, c.Self(), owner, code)
	if err != nil {
		return err
	}
	return c.Tx().PutTokenBalance(ctx, c.Self(), store.TokenBalance{Owner: owner, Code: code, Amount: bal.Amount + amount})
}

func (t *Contract) sub(ctx context.Context, c *chain.Context, owner, code string, amount int64) error {
	bal, _, err := c.Tx().TokenBalance(ctx, c.Self(), owner, code)
	if err != nil {
		return err
	}
	if bal.Amount < amount {
		return fmt.Errorf("overdrawn %s balance of %s: %w", code, owner, status.ErrInsufficientBalance)
	}
	return c.Tx().PutTokenBalance(ctx, c.Self(), store.TokenBalance{Owner: owner, Code: code, Amount: bal.Amount - amount})
}

func checkMemo(memo string) error {
	if len(memo) > MaxMemo || !utf8.ValidString(memo) {
		return fmt.Errorf("memo must be valid utf-8 of at most %d bytes: %w", MaxMemo, status.ErrInvalidAction)
	}
	return nil
}
