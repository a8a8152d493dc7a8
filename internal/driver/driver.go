package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/ledger"
	"github.com/cronos-sched/cronos/internal/store"
)

const (
	// DefaultBatch is used when a trigger does not ask for a batch size.
	DefaultBatch = 20
	// MaxBatch is the hard ceiling on entries processed per trigger.
	MaxBatch = 100
)

// Env is the part of the running action the driver needs.
type Env interface {
	Tx() store.Tx
	Self() string
	Now() time.Time
	Invoke(ctx context.Context, a chain.Action) error
}

// Result classifies what happened to one due entry.
type Result string

const (
	Executed    Result = "executed"
	Deactivated Result = "deactivated"
	Failed      Result = "failed"
)

// Outcome is the fate of one entry in a trigger.
type Outcome struct {
	ID      uint64
	From    string
	Account string
	Action  string
	Result  Result
	NextDue time.Time
	Balance int64
	Error   string
}

// Report summarizes one trigger.
type Report struct {
	Executed    int
	Deactivated int
	Failed      int
	Entries     []Outcome
}

// Invocation is the payload delivered to a scheduled action.
type Invocation struct {
	From string `json:"from"`
}

// Driver executes due timetable entries.
type Driver struct {
	ledger   *ledger.Ledger
	runCost  int64
	maxBatch int
	log      *slog.Logger
}

// New builds a driver charging runCost per execution and processing at most
// maxBatch entries per trigger. maxBatch is capped at MaxBatch.
func New(l *ledger.Ledger, runCost int64, maxBatch int, log *slog.Logger) *Driver {
	if maxBatch <= 0 || maxBatch > MaxBatch {
		maxBatch = MaxBatch
	}
	return &Driver{ledger: l, runCost: runCost, maxBatch: maxBatch, log: log}
}

// Batch clamps a requested batch size to [1, maxBatch]. Non-positive
// requests get DefaultBatch.
func (d *Driver) Batch(limit int) int {
	if limit <= 0 {
		limit = DefaultBatch
	}
	if limit > d.maxBatch {
		limit = d.maxBatch
	}
	return limit
}

// RunDue processes up to limit active entries whose due time has passed,
// least recently touched first. Each entry runs inside its own savepoint: an
// entry whose owner cannot pay is deactivated, an entry whose action fails
// is rolled back and left due, and every other entry is charged, invoked and
// moved one period forward. Every processed entry gets last_updated = now,
// so failing entries rotate behind the rest. Store failures abort the whole
// trigger.
func (d *Driver) RunDue(ctx context.Context, env Env, limit int) (Report, error) {
	tx := env.Tx()
	now := env.Now()
	due, err := tx.DueSchedules(ctx, env.Self(), now, d.Batch(limit))
	if err != nil {
		return Report{}, fmt.Errorf("select due entries: %w", err)
	}

	var report Report
	for _, row := range due {
		out, err := d.runEntry(ctx, env, row, now)
		if err != nil {
			return Report{}, err
		}
		switch out.Result {
		case Executed:
			report.Executed++
		case Deactivated:
			report.Deactivated++
		case Failed:
			report.Failed++
		}
		report.Entries = append(report.Entries, out)
	}
	return report, nil
}

func (d *Driver) runEntry(ctx context.Context, env Env, row store.ScheduleRow, now time.Time) (Outcome, error) {
	tx := env.Tx()
	sp := fmt.Sprintf("entry_%d", row.ID)
	out := Outcome{ID: row.ID, From: row.From, Account: row.Account, Action: row.Action, NextDue: row.NextDue}

	if err := tx.Savepoint(ctx, sp); err != nil {
		return Outcome{}, err
	}

	bal, err := d.ledger.Get(ctx, tx, row.From)
	if err != nil {
		return Outcome{}, err
	}
	out.Balance = bal
	if bal < d.runCost {
		row.Active = false
		row.LastUpdated = now
		if err := tx.PutSchedule(ctx, env.Self(), row); err != nil {
			return Outcome{}, err
		}
		out.Result = Deactivated
		d.log.Info("schedule deactivated", slog.Uint64("id", row.ID), slog.String("from", row.From), slog.Int64("balance", bal))
		return out, tx.Release(ctx, sp)
	}

	left, err := d.ledger.Debit(ctx, tx, row.From, d.runCost)
	if err != nil {
		return Outcome{}, err
	}
	call, err := chain.NewAction(row.Account, row.Action, Invocation{From: row.From},
		auth.Level{Actor: env.Self(), Permission: auth.Active})
	if err != nil {
		return Outcome{}, err
	}
	if invokeErr := env.Invoke(ctx, call); invokeErr != nil {
		if err := tx.RollbackTo(ctx, sp); err != nil {
			return Outcome{}, errors.Join(invokeErr, err)
		}
		// Stamp the entry so it moves behind other due entries.
		row.LastUpdated = now
		if err := tx.PutSchedule(ctx, env.Self(), row); err != nil {
			return Outcome{}, err
		}
		out.Result = Failed
		out.Error = invokeErr.Error()
		d.log.Warn("scheduled action failed", slog.Uint64("id", row.ID), slog.String("target", row.Account+"::"+row.Action), slog.String("error", invokeErr.Error()))
		return out, tx.Release(ctx, sp)
	}

	row.NextDue = row.NextDue.Add(row.Period)
	row.LastUpdated = now
	if err := tx.PutSchedule(ctx, env.Self(), row); err != nil {
		return Outcome{}, err
	}
	out.Result = Executed
	out.NextDue = row.NextDue
	out.Balance = left
	return out, tx.Release(ctx, sp)
}
