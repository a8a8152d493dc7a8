// Package genesis boots a node: it deploys the token and scheduler contracts,
// registers their accounts and creates the deposit token.
package genesis

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/contract"
	"github.com/cronos-sched/cronos/internal/notification"
	"github.com/cronos-sched/cronos/internal/token"
)

// DefaultMaxSupply is the token cap, in whole units of the symbol.
const DefaultMaxSupply = 1_000_000_000

// Chain is the part of the ledger genesis drives.
type Chain interface {
	Deploy(name string, c chain.Contract)
	Push(ctx context.Context, signed chain.SignedTransaction) (chain.Receipt, error)
	Rows(ctx context.Context, code, scope, table string) ([]any, error)
	Now() time.Time
}

// Params describes the system accounts and token.
type Params struct {
	Contract contract.Config
	// Seed is the hex ed25519 seed of both system accounts.
	Seed      string
	MaxSupply int64
}

// Result is the booted node.
type Result struct {
	Key       ed25519.PrivateKey
	Generated bool
	Scheduler *contract.Contract
}

// Bootstrap is idempotent over a persistent store: accounts and the token
// that already exist are left alone.
func Bootstrap(ctx context.Context, p Params, ch Chain, accounts *account.Service, notifier notification.Notifier, log *slog.Logger) (Result, error) {
	key, generated, err := systemKey(p.Seed)
	if err != nil {
		return Result{}, err
	}
	res := Result{Key: key, Generated: generated}

	cfg := p.Contract
	ch.Deploy(cfg.TokenAccount, token.New(cfg.TokenAccount))
	res.Scheduler = contract.New(cfg, notifier, log)
	ch.Deploy(cfg.Account, res.Scheduler)

	pub := account.EncodeKey(key.Public().(ed25519.PublicKey))
	for _, name := range []string{cfg.TokenAccount, cfg.Account} {
		_, err := accounts.Register(ctx, account.Registration{Name: name, OwnerKey: pub, ActiveKey: pub})
		switch {
		case err == nil:
			log.Info("system account registered", slog.String("account", name))
		case errors.Is(err, account.ErrExists):
			log.Debug("system account exists", slog.String("account", name))
		default:
			return Result{}, fmt.Errorf("register %s: %w", name, err)
		}
	}

	stat, err := ch.Rows(ctx, cfg.TokenAccount, cfg.Symbol.Code, "stat")
	if err != nil {
		return Result{}, err
	}
	if len(stat) > 0 {
		return res, nil
	}

	supply := p.MaxSupply
	if supply <= 0 {
		supply = DefaultMaxSupply
	}
	maxSupply, err := asset.New(supply, asset.Symbol{Code: cfg.Symbol.Code}).Rescale(cfg.Symbol.Precision)
	if err != nil {
		return Result{}, fmt.Errorf("max supply: %w", err)
	}
	create, err := chain.NewAction(cfg.TokenAccount, "create", token.Create{Issuer: cfg.TokenAccount, MaximumSupply: maxSupply},
		auth.Level{Actor: cfg.TokenAccount, Permission: auth.Active})
	if err != nil {
		return Result{}, err
	}
	signed, err := chain.Sign(chain.Transaction{
		Expiration: ch.Now().Add(time.Minute).Unix(),
		Nonce:      uuid.NewString(),
		Actions:    []chain.Action{create},
	}, chain.Signer{Level: auth.Level{Actor: cfg.TokenAccount, Permission: auth.Active}, Key: key})
	if err != nil {
		return Result{}, err
	}
	if _, err := ch.Push(ctx, signed); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", cfg.Symbol, err)
	}
	log.Info("token created", slog.String("symbol", cfg.Symbol.String()), slog.String("max_supply", maxSupply.String()))
	return res, nil
}

func systemKey(seed string) (ed25519.PrivateKey, bool, error) {
	if seed == "" {
		_, priv, err := ed25519.GenerateKey(nil)
		return priv, true, err
	}
	raw, err := hex.DecodeString(seed)
	if err != nil || len(raw) != ed25519.SeedSize {
		return nil, false, fmt.Errorf("genesis key must be %d hex-encoded bytes", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(raw), false, nil
}
