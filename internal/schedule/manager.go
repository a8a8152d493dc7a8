package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/ledger"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// CounterName is the singleton that hands out schedule ids.
const CounterName = "increment.schedule"

// Env is the part of the running action the manager needs.
type Env interface {
	Tx() store.Tx
	Self() string
	Now() time.Time
	RequireAuth(actor string, permission auth.Permission) error
}

// Request asks for action on account to be invoked every period on behalf
// of From.
type Request struct {
	From    string
	Account string
	Action  string
	Period  time.Duration
}

// Manager owns the contract's timetable.
type Manager struct {
	ledger   *ledger.Ledger
	runCost  int64
	reserved map[string]bool
}

// NewManager builds a manager that gates entries on runCost. Reserved
// actions of the contract itself can never be scheduled: the driver invokes
// targets with the contract's authority.
func NewManager(l *ledger.Ledger, runCost int64, reserved ...string) *Manager {
	m := &Manager{ledger: l, runCost: runCost, reserved: make(map[string]bool, len(reserved))}
	for _, name := range reserved {
		m.reserved[name] = true
	}
	return m
}

// RunCost is the amount charged per execution.
func (m *Manager) RunCost() int64 { return m.runCost }

// Schedule validates req and inserts an active entry due one period from
// now. The requester must already hold enough balance for one run, but
// nothing is charged until the entry executes.
func (m *Manager) Schedule(ctx context.Context, env Env, req Request) (store.ScheduleRow, error) {
	if err := env.RequireAuth(req.From, auth.Active); err != nil {
		return store.ScheduleRow{}, err
	}
	if err := ValidatePeriod(req.Period); err != nil {
		return store.ScheduleRow{}, err
	}
	if !account.ValidName(req.Account) || !account.ValidName(req.Action) {
		return store.ScheduleRow{}, fmt.Errorf("%q::%q: %w", req.Account, req.Action, status.ErrInvalidTarget)
	}
	if req.Account == env.Self() && m.reserved[req.Action] {
		return store.ScheduleRow{}, fmt.Errorf("%s::%s is reserved: %w", req.Account, req.Action, status.ErrInvalidTarget)
	}
	if err := m.requireFunds(ctx, env, req.From); err != nil {
		return store.ScheduleRow{}, err
	}

	id, err := store.NextID(ctx, env.Tx(), env.Self(), CounterName)
	if err != nil {
		return store.ScheduleRow{}, err
	}
	now := env.Now()
	row := store.ScheduleRow{
		ID:          id,
		From:        req.From,
		Account:     req.Account,
		Action:      req.Action,
		Period:      req.Period,
		Active:      true,
		NextDue:     now.Add(req.Period),
		LastUpdated: now,
	}
	if err := env.Tx().PutSchedule(ctx, env.Self(), row); err != nil {
		return store.ScheduleRow{}, fmt.Errorf("insert schedule: %w", err)
	}
	return row, nil
}

// SetActive enables or disables entry id on behalf of its creator. A
// re-enabled entry whose due time has passed is pushed to one period from
// now, so it does not fire for the time it spent disabled.
func (m *Manager) SetActive(ctx context.Context, env Env, from string, id uint64, active bool) (store.ScheduleRow, error) {
	row, ok, err := env.Tx().Schedule(ctx, env.Self(), id)
	if err != nil {
		return store.ScheduleRow{}, err
	}
	if !ok {
		return store.ScheduleRow{}, fmt.Errorf("schedule %d: %w", id, status.ErrNotFound)
	}
	if row.From != from {
		return store.ScheduleRow{}, fmt.Errorf("schedule %d belongs to %s: %w", id, row.From, status.ErrAuthorization)
	}
	if err := env.RequireAuth(row.From, auth.Active); err != nil {
		return store.ScheduleRow{}, err
	}
	if row.Active == active {
		return row, nil
	}

	now := env.Now()
	if active {
		if err := m.requireFunds(ctx, env, row.From); err != nil {
			return store.ScheduleRow{}, err
		}
		if row.NextDue.Before(now) {
			row.NextDue = now.Add(row.Period)
		}
	}
	row.Active = active
	row.LastUpdated = now
	if err := env.Tx().PutSchedule(ctx, env.Self(), row); err != nil {
		return store.ScheduleRow{}, fmt.Errorf("update schedule: %w", err)
	}
	return row, nil
}

// Entries lists the timetable ordered by id.
func (m *Manager) Entries(ctx context.Context, tx store.Tx, scope string) ([]store.ScheduleRow, error) {
	return tx.Schedules(ctx, scope)
}

func (m *Manager) requireFunds(ctx context.Context, env Env, owner string) error {
	bal, err := m.ledger.Get(ctx, env.Tx(), owner)
	if err != nil {
		return err
	}
	if bal < m.runCost {
		return fmt.Errorf("%s holds %d, run costs %d: %w", owner, bal, m.runCost, status.ErrInsufficientBalance)
	}
	return nil
}

// ValidatePeriod accepts positive whole-second durations.
func ValidatePeriod(p time.Duration) error {
	if p <= 0 || p%time.Second != 0 {
		return fmt.Errorf("period %s: %w", p, status.ErrInvalidPeriod)
	}
	return nil
}
