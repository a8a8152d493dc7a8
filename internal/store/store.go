package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNoTransaction is returned when a transaction is used after Commit or Rollback.
var ErrNoTransaction = errors.New("transaction closed")

// BalanceRow is one entry of a contract's balance table.
type BalanceRow struct {
	Owner  string
	Amount int64
}

// ScheduleRow is one entry of a contract's timetable.
type ScheduleRow struct {
	ID          uint64
	From        string
	Account     string
	Action      string
	Period      time.Duration
	Active      bool
	NextDue     time.Time
	LastUpdated time.Time
}

// TokenStat describes an issued token.
type TokenStat struct {
	Code      string
	Precision uint8
	Issuer    string
	MaxSupply int64
	Supply    int64
}

// TokenBalance is an owner's holding of one token.
type TokenBalance struct {
	Owner  string
	Code   string
	Amount int64
}

// AccountRow stores the public keys of a registered account.
type AccountRow struct {
	Name      string
	OwnerKey  string
	ActiveKey string
	CreatedAt time.Time
}

// Tx is a unit of work over all contract state. Every method taking a scope
// reads or writes only rows stored under that contract account. Nothing
// written through a Tx is visible to other transactions before Commit.
type Tx interface {
	Balance(ctx context.Context, scope, owner string) (BalanceRow, bool, error)
	PutBalance(ctx context.Context, scope string, row BalanceRow) error
	Balances(ctx context.Context, scope string) ([]BalanceRow, error)

	Schedule(ctx context.Context, scope string, id uint64) (ScheduleRow, bool, error)
	PutSchedule(ctx context.Context, scope string, row ScheduleRow) error
	// Schedules returns every row ordered by id.
	Schedules(ctx context.Context, scope string) ([]ScheduleRow, error)
	// DueSchedules returns at most limit active rows with NextDue <= now,
	// least recently updated first, ordered by (LastUpdated, NextDue, ID).
	DueSchedules(ctx context.Context, scope string, now time.Time, limit int) ([]ScheduleRow, error)

	Singleton(ctx context.Context, scope, name string) (int64, bool, error)
	PutSingleton(ctx context.Context, scope, name string, value int64) error

	TokenStat(ctx context.Context, scope, code string) (TokenStat, bool, error)
	PutTokenStat(ctx context.Context, scope string, row TokenStat) error
	TokenBalance(ctx context.Context, scope, owner, code string) (TokenBalance, bool, error)
	PutTokenBalance(ctx context.Context, scope string, row TokenBalance) error
	TokenBalances(ctx context.Context, scope, owner string) ([]TokenBalance, error)

	Account(ctx context.Context, name string) (AccountRow, bool, error)
	InsertAccount(ctx context.Context, row AccountRow) error

	// Savepoint marks a point RollbackTo can return to. Savepoints nest.
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store hands out transactions. Implementations serialize writers.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrAccountExists is returned by InsertAccount for a taken name.
var ErrAccountExists = errors.New("account exists")

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func checkSavepoint(name string) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	return nil
}

// NextID reads the counter singleton name, stores its successor, and returns
// the value read. The first id handed out is 0.
func NextID(ctx context.Context, tx Tx, scope, name string) (uint64, error) {
	v, _, err := tx.Singleton(ctx, scope, name)
	if err != nil {
		return 0, err
	}
	if err := tx.PutSingleton(ctx, scope, name, v+1); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// View runs fn in a transaction that is always rolled back.
func View(ctx context.Context, s Store, fn func(Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck
	return fn(tx)
}

// Update runs fn in a transaction and commits it when fn succeeds.
func Update(ctx context.Context, s Store, fn func(Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(s int64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0).UTC()
}
