// Package contract is the scheduler contract: it dispatches actions to the
// deposit handler, schedule manager and execution driver, and serves the
// balance and timetable tables.
package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cronos-sched/cronos/internal/asset"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/deposit"
	"github.com/cronos-sched/cronos/internal/driver"
	"github.com/cronos-sched/cronos/internal/ledger"
	"github.com/cronos-sched/cronos/internal/notification"
	"github.com/cronos-sched/cronos/internal/schedule"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/token"
)

const (
	// StopFlag is the singleton halting the run loop when set to 1.
	StopFlag = "flag.stop"
	// DeferredCounter hands out ids for deferred run transactions.
	DeferredCounter = "increment.deferred"
)

// ReservedActions are the contract's own actions that no timetable entry may
// target. Only dumb stays schedulable on the contract itself.
var ReservedActions = []string{"schedule", "deposit", "withdraw", "enable", "disable", "run_due", "run", "start", "stop"}

// Config fixes the parameters of one deployment.
type Config struct {
	Account      string
	TokenAccount string
	Symbol       asset.Symbol
	RunCost      int64
	MaxBatch     int
}

// Contract is the scheduler deployed on Config.Account.
type Contract struct {
	cfg       Config
	ledger    *ledger.Ledger
	deposits  *deposit.Service
	schedules *schedule.Manager
	driver    *driver.Driver
	notifier  notification.Notifier
	log       *slog.Logger
}

// New wires the scheduler components.
func New(cfg Config, notifier notification.Notifier, log *slog.Logger) *Contract {
	l := ledger.New(cfg.Account)
	return &Contract{
		cfg:       cfg,
		ledger:    l,
		deposits:  deposit.NewService(l, cfg.TokenAccount, cfg.Symbol, log),
		schedules: schedule.NewManager(l, cfg.RunCost, ReservedActions...),
		driver:    driver.New(l, cfg.RunCost, cfg.MaxBatch, log),
		notifier:  notifier,
		log:       log,
	}
}

// Apply dispatches one action or notification.
func (k *Contract) Apply(ctx context.Context, c *chain.Context) error {
	if c.Code() != c.Self() {
		return k.onNotify(ctx, c)
	}
	name := c.Action().Name
	switch name {
	case "dumb":
		var req Dumb
		if err := c.Decode(&req); err != nil {
			return err
		}
		c.Print("dumb called by %s", req.From)
		return nil
	case "schedule":
		return k.schedule(ctx, c)
	case "deposit":
		var req token.Transfer
		if err := c.Decode(&req); err != nil {
			return err
		}
		return k.deposits.Deposit(ctx, c, req)
	case "withdraw":
		return k.withdraw(ctx, c)
	case "enable", "disable":
		var req Toggle
		if err := c.Decode(&req); err != nil {
			return err
		}
		row, err := k.schedules.SetActive(ctx, c, req.From, req.JobID, name == "enable")
		if err != nil {
			return err
		}
		c.Print("job %d active=%t", row.ID, row.Active)
		return nil
	case "run_due":
		var req RunDue
		if err := c.Decode(&req); err != nil {
			return err
		}
		return k.runDue(ctx, c, req.BatchLimit)
	case "run":
		return k.run(ctx, c)
	case "start", "stop":
		return k.setStop(ctx, c, name == "stop")
	default:
		return fmt.Errorf("%s has no action %q: %w", c.Self(), name, status.ErrInvalidAction)
	}
}

func (k *Contract) onNotify(ctx context.Context, c *chain.Context) error {
	if c.Action().Name != "transfer" {
		return nil
	}
	var t token.Transfer
	if err := c.Decode(&t); err != nil {
		return err
	}
	res, credited, err := k.deposits.OnTransfer(ctx, c, t)
	if err != nil || !credited {
		return err
	}
	c.Print("credited %d to %s", res.Amount, res.Owner)
	k.notify(c, notification.Message{
		Kind:        notification.KindDepositCredited,
		Destination: res.Owner,
		Body:        fmt.Sprintf("credited %d, balance %d", res.Amount, res.Balance),
	})
	return nil
}

func (k *Contract) schedule(ctx context.Context, c *chain.Context) error {
	var req Schedule
	if err := c.Decode(&req); err != nil {
		return err
	}
	if req.Period <= 0 || req.Period > math.MaxInt64/int64(time.Second) {
		return fmt.Errorf("period %d: %w", req.Period, status.ErrInvalidPeriod)
	}
	row, err := k.schedules.Schedule(ctx, c, schedule.Request{
		From:    req.From,
		Account: req.Account,
		Action:  req.Action,
		Period:  time.Duration(req.Period) * time.Second,
	})
	if err != nil {
		return err
	}
	c.Print("Job id: %d", row.ID)
	return nil
}

func (k *Contract) withdraw(ctx context.Context, c *chain.Context) error {
	var req Withdraw
	if err := c.Decode(&req); err != nil {
		return err
	}
	res, err := k.deposits.Withdraw(ctx, c, req.From, req.Quantity)
	if err != nil {
		return err
	}
	k.notify(c, notification.Message{
		Kind:        notification.KindWithdrawal,
		Destination: res.Owner,
		Body:        fmt.Sprintf("withdrew %d, balance %d", res.Amount, res.Balance),
	})
	return nil
}

func (k *Contract) runDue(ctx context.Context, c *chain.Context, limit int) error {
	report, err := k.driver.RunDue(ctx, c, limit)
	if err != nil {
		return err
	}
	c.Print("run_due executed=%d deactivated=%d failed=%d", report.Executed, report.Deactivated, report.Failed)
	for _, out := range report.Entries {
		msg := notification.Message{Destination: out.From, Body: fmt.Sprintf("job %d %s::%s", out.ID, out.Account, out.Action)}
		switch out.Result {
		case driver.Executed:
			msg.Kind = notification.KindScheduleExecuted
			msg.Body += fmt.Sprintf(" next_due %d balance %d", out.NextDue.Unix(), out.Balance)
		case driver.Deactivated:
			msg.Kind = notification.KindScheduleDeactivated
			msg.Body += fmt.Sprintf(" balance %d", out.Balance)
		case driver.Failed:
			msg.Kind = notification.KindScheduleFailed
			msg.Body += ": " + out.Error
		}
		k.notify(c, msg)
	}
	return nil
}

// run drives the timetable from inside the ledger: it processes one batch
// and defers another run after the polling interval, until stopped.
func (k *Contract) run(ctx context.Context, c *chain.Context) error {
	var req Run
	if err := c.Decode(&req); err != nil {
		return err
	}
	if err := c.RequireAuth(c.Self(), auth.Active); err != nil {
		return err
	}
	if req.PollingInterval == 0 {
		return fmt.Errorf("polling interval must be positive: %w", status.ErrInvalidPeriod)
	}
	stopped, _, err := c.Tx().Singleton(ctx, c.Self(), StopFlag)
	if err != nil {
		return err
	}
	if stopped != 0 {
		c.Print("run loop stopped")
		return nil
	}
	if err := k.runDue(ctx, c, req.RowsCount); err != nil {
		return err
	}

	next, err := chain.NewAction(c.Self(), "run", Run{From: c.Self(), PollingInterval: req.PollingInterval, RowsCount: req.RowsCount},
		auth.Level{Actor: c.Self(), Permission: auth.Active})
	if err != nil {
		return err
	}
	id, err := nextDeferredID(ctx, c)
	if err != nil {
		return err
	}
	return c.Defer(id, time.Duration(req.PollingInterval)*time.Second, []chain.Action{next})
}

func (k *Contract) setStop(ctx context.Context, c *chain.Context, stop bool) error {
	var req Admin
	if err := c.Decode(&req); err != nil {
		return err
	}
	if err := c.RequireAuth(c.Self(), auth.Active); err != nil {
		return err
	}
	var v int64
	if stop {
		v = 1
	}
	if err := c.Tx().PutSingleton(ctx, c.Self(), StopFlag, v); err != nil {
		return err
	}
	if stop {
		c.Print("Set STOP")
	} else {
		c.Print("Set START")
	}
	return nil
}

func (k *Contract) notify(c *chain.Context, msg notification.Message) {
	if k.notifier == nil {
		return
	}
	c.OnCommit(func(ctx context.Context) {
		if err := k.notifier.Send(ctx, msg); err != nil {
			k.log.Warn("notification failed", slog.String("kind", msg.Kind), slog.String("error", err.Error()))
		}
	})
}
