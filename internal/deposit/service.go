package deposit

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/ledger"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
	"github.com/cronos-sched/cronos/internal/token"
)

// WithdrawMemo tags token transfers paying out a withdrawal.
const WithdrawMemo = "cronos_withdraw"

// Env is the part of the running action the handler needs.
type Env interface {
	Tx() store.Tx
	Self() string
	Code() string
	RequireAuth(actor string, permission auth.Permission) error
	Invoke(ctx context.Context, a chain.Action) error
}

// Service credits prepaid balances from token transfers into the contract
// and pays them back out on withdrawal.
type Service struct {
	ledger *ledger.Ledger
	token  string
	symbol asset.Symbol
	log    *slog.Logger
}

// NewService builds the handler accepting symbol from the token contract
// deployed on tokenAccount.
func NewService(l *ledger.Ledger, tokenAccount string, symbol asset.Symbol, log *slog.Logger) *Service {
	return &Service{ledger: l, token: tokenAccount, symbol: symbol, log: log}
}

// Result reports a balance change.
type Result struct {
	Owner   string
	Amount  int64
	Balance int64
}

// OnTransfer handles the token contract's notification of a transfer that
// involves the contract. Incoming transfers are credited to the sender;
// outgoing ones are ignored and reported with ok == false.
func (s *Service) OnTransfer(ctx context.Context, env Env, t token.Transfer) (res Result, ok bool, err error) {
	if env.Code() != s.token {
		return Result{}, false, fmt.Errorf("transfer notification from %s, want %s: %w", env.Code(), s.token, status.ErrInvalidTransfer)
	}
	if t.From == env.Self() {
		return Result{}, false, nil
	}
	if t.To != env.Self() {
		return Result{}, false, fmt.Errorf("transfer to %s does not fund %s: %w", t.To, env.Self(), status.ErrInvalidTransfer)
	}
	q, err := s.accept(t.Quantity, t.Memo)
	if err != nil {
		return Result{}, false, err
	}
	bal, err := s.ledger.Credit(ctx, env.Tx(), t.From, q.Amount)
	if err != nil {
		return Result{}, false, err
	}
	s.log.Debug("deposit credited", slog.String("owner", t.From), slog.Int64("amount", q.Amount), slog.Int64("balance", bal))
	return Result{Owner: t.From, Amount: q.Amount, Balance: bal}, true, nil
}

// Deposit pulls quantity from the sender into the contract through the token
// contract. The credit itself happens when the token contract notifies the
// contract of the transfer.
func (s *Service) Deposit(ctx context.Context, env Env, t token.Transfer) error {
	if err := env.RequireAuth(t.From, auth.Active); err != nil {
		return err
	}
	if t.To != env.Self() || t.From == env.Self() {
		return fmt.Errorf("deposit must move funds from a holder to %s: %w", env.Self(), status.ErrInvalidTransfer)
	}
	q, err := s.accept(t.Quantity, t.Memo)
	if err != nil {
		return err
	}
	pull, err := chain.NewAction(s.token, "transfer",
		token.Transfer{From: t.From, To: env.Self(), Quantity: q, Memo: t.Memo},
		auth.Level{Actor: t.From, Permission: auth.Active})
	if err != nil {
		return err
	}
	return env.Invoke(ctx, pull)
}

// Withdraw debits owner's balance and sends the tokens back.
func (s *Service) Withdraw(ctx context.Context, env Env, owner string, quantity asset.Asset) (Result, error) {
	if err := env.RequireAuth(owner, auth.Active); err != nil {
		return Result{}, err
	}
	q, err := s.accept(quantity, "")
	if err != nil {
		return Result{}, err
	}
	bal, err := s.ledger.Debit(ctx, env.Tx(), owner, q.Amount)
	if err != nil {
		return Result{}, err
	}
	payout, err := chain.NewAction(s.token, "transfer",
		token.Transfer{From: env.Self(), To: owner, Quantity: q, Memo: WithdrawMemo},
		auth.Level{Actor: env.Self(), Permission: auth.Active})
	if err != nil {
		return Result{}, err
	}
	if err := env.Invoke(ctx, payout); err != nil {
		return Result{}, err
	}
	return Result{Owner: owner, Amount: q.Amount, Balance: bal}, nil
}

// accept checks a quantity and memo and returns the quantity in the
// accepted symbol's precision.
func (s *Service) accept(q asset.Asset, memo string) (asset.Asset, error) {
	if q.Symbol.Code != s.symbol.Code {
		return asset.Asset{}, fmt.Errorf("symbol %s not accepted, want %s: %w", q.Symbol.Code, s.symbol.Code, status.ErrInvalidTransfer)
	}
	scaled, err := q.Rescale(s.symbol.Precision)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("quantity %s: %v: %w", q, err, status.ErrInvalidTransfer)
	}
	if scaled.Amount <= 0 {
		return asset.Asset{}, fmt.Errorf("quantity must be positive: %w", status.ErrInvalidTransfer)
	}
	if len(memo) > token.MaxMemo || !utf8.ValidString(memo) {
		return asset.Asset{}, fmt.Errorf("memo must be valid utf-8 of at most %d bytes: %w", token.MaxMemo, status.ErrInvalidTransfer)
	}
	return scaled, nil
}
