// Package keeper is the off-ledger trigger: on a cron schedule it releases
// due deferred transactions and submits run_due to the scheduler contract.
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/contract"
)

// Ledger is the chain surface the keeper drives.
type Ledger interface {
	Now() time.Time
	Push(ctx context.Context, signed chain.SignedTransaction) (chain.Receipt, error)
	ProcessDeferred(ctx context.Context) []chain.Receipt
}

// Config controls the trigger.
type Config struct {
	// Schedule is a cron expression or descriptor, e.g. "@every 1s".
	Schedule string
	Contract string
	Batch    int
}

// Keeper submits triggers on a schedule.
type Keeper struct {
	cfg    Config
	ledger Ledger
	log    *slog.Logger
	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

// New builds a keeper. It does nothing until Start.
func New(cfg Config, ledger Ledger, log *slog.Logger) *Keeper {
	return &Keeper{
		cfg:    cfg,
		ledger: ledger,
		log:    log,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the trigger and starts the cron runner. Ticks run with ctx.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.c != nil {
		return nil
	}
	if _, err := k.parser.Parse(k.cfg.Schedule); err != nil {
		return fmt.Errorf("keeper schedule %q: %w", k.cfg.Schedule, err)
	}
	c := cron.New(cron.WithParser(k.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(k.cfg.Schedule, func() { _, _ = k.Tick(ctx) }); err != nil {
		return err
	}
	c.Start()
	k.c = c
	k.log.Info("keeper started", slog.String("schedule", k.cfg.Schedule), slog.String("contract", k.cfg.Contract), slog.Int("batch", k.cfg.Batch))
	return nil
}

// Stop halts the runner and waits for a running tick to finish.
func (k *Keeper) Stop() {
	k.mu.Lock()
	c := k.c
	k.c = nil
	k.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		k.log.Info("keeper stopped")
	}
}

// Tick releases due deferred transactions, then pushes one run_due.
func (k *Keeper) Tick(ctx context.Context) (chain.Receipt, error) {
	for _, r := range k.ledger.ProcessDeferred(ctx) {
		k.log.Debug("deferred transaction applied", slog.String("id", r.ID), slog.String("status", string(r.Status)))
	}

	a, err := chain.NewAction(k.cfg.Contract, "run_due", contract.RunDue{BatchLimit: k.cfg.Batch})
	if err != nil {
		return chain.Receipt{}, err
	}
	tx := chain.Transaction{
		Expiration: k.ledger.Now().Add(time.Minute).Unix(),
		Nonce:      uuid.NewString(),
		Actions:    []chain.Action{a},
	}
	receipt, err := k.ledger.Push(ctx, chain.SignedTransaction{Transaction: tx})
	if err != nil {
		k.log.Warn("run_due rejected", slog.String("status", string(receipt.Status)), slog.String("error", err.Error()))
		return receipt, err
	}
	if len(receipt.Console) > 0 {
		k.log.Debug("run_due applied", slog.String("id", receipt.ID), slog.String("console", receipt.Console[len(receipt.Console)-1]))
	}
	return receipt, nil
}
