package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore persists contract state in a single SQLite file. The writer
// pool is limited to one connection, which also serializes transactions.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Balance(ctx context.Context, scope, owner string) (BalanceRow, bool, error) {
	row := BalanceRow{Owner: owner}
	err := t.tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE scope = ? AND owner = ?`, scope, owner).Scan(&row.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return BalanceRow{}, false, nil
	}
	if err != nil {
		return BalanceRow{}, false, err
	}
	return row, true, nil
}

func (t *sqliteTx) PutBalance(ctx context.Context, scope string, row BalanceRow) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO balances (scope, owner, amount) VALUES (?, ?, ?)
		ON CONFLICT (scope, owner) DO UPDATE SET amount = excluded.amount`, scope, row.Owner, row.Amount)
	return err
}

func (t *sqliteTx) Balances(ctx context.Context, scope string) ([]BalanceRow, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT owner, amount FROM balances WHERE scope = ? ORDER BY owner`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceRow
	for rows.Next() {
		var r BalanceRow
		if err := rows.Scan(&r.Owner, &r.Amount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) Schedule(ctx context.Context, scope string, id uint64) (ScheduleRow, bool, error) {
	row, err := scanSchedule(t.tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM timetable WHERE scope = ? AND id = ?`, scope, int64(id)).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleRow{}, false, nil
	}
	if err != nil {
		return ScheduleRow{}, false, err
	}
	return row, true, nil
}

func (t *sqliteTx) PutSchedule(ctx context.Context, scope string, row ScheduleRow) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO timetable (scope, `+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, id) DO UPDATE SET
			sender = excluded.sender, account = excluded.account, action = excluded.action,
			period_seconds = excluded.period_seconds, active = excluded.active,
			next_due = excluded.next_due, last_updated = excluded.last_updated`,
		scope, int64(row.ID), row.From, row.Account, row.Action, int64(row.Period/time.Second),
		row.Active, unix(row.NextDue), unix(row.LastUpdated))
	return err
}

func (t *sqliteTx) querySchedules(ctx context.Context, query string, args ...any) ([]ScheduleRow, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleRow
	for rows.Next() {
		r, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) Schedules(ctx context.Context, scope string) ([]ScheduleRow, error) {
	return t.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM timetable WHERE scope = ? ORDER BY id`, scope)
}

func (t *sqliteTx) DueSchedules(ctx context.Context, scope string, now time.Time, limit int) ([]ScheduleRow, error) {
	return t.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM timetable
		WHERE scope = ? AND active = 1 AND next_due <= ?
		ORDER BY last_updated, next_due, id LIMIT ?`, scope, now.Unix(), limit)
}

func (t *sqliteTx) Singleton(ctx context.Context, scope, name string) (int64, bool, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM singletons WHERE scope = ? AND name = ?`, scope, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (t *sqliteTx) PutSingleton(ctx context.Context, scope, name string, value int64) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO singletons (scope, name, value) VALUES (?, ?, ?)
		ON CONFLICT (scope, name) DO UPDATE SET value = excluded.value`, scope, name, value)
	return err
}

func (t *sqliteTx) TokenStat(ctx context.Context, scope, code string) (TokenStat, bool, error) {
	r := TokenStat{Code: code}
	var prec int64
	err := t.tx.QueryRowContext(ctx, `SELECT decimals, issuer, max_supply, supply FROM token_stats WHERE scope = ? AND code = ?`,
		scope, code).Scan(&prec, &r.Issuer, &r.MaxSupply, &r.Supply)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenStat{}, false, nil
	}
	if err != nil {
		return TokenStat{}, false, err
	}
	r.Precision = uint8(prec)
	return r, true, nil
}

func (t *sqliteTx) PutTokenStat(ctx context.Context, scope string, row TokenStat) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO token_stats (scope, code, decimals, issuer, max_supply, supply)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, code) DO UPDATE SET supply = excluded.supply`,
		scope, row.Code, int64(row.Precision), row.Issuer, row.MaxSupply, row.Supply)
	return err
}

func (t *sqliteTx) TokenBalance(ctx context.Context, scope, owner, code string) (TokenBalance, bool, error) {
	r := TokenBalance{Owner: owner, Code: code}
	err := t.tx.QueryRowContext(ctx, `SELECT amount FROM token_accounts WHERE scope = ? AND owner = ? AND code = ?`,
		scope, owner, code).Scan(&r.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenBalance{}, false, nil
	}
	if err != nil {
		return TokenBalance{}, false, err
	}
	return r, true, nil
}

func (t *sqliteTx) PutTokenBalance(ctx context.Context, scope string, row TokenBalance) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO token_accounts (scope, owner, code, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, owner, code) DO UPDATE SET amount = excluded.amount`, scope, row.Owner, row.Code, row.Amount)
	return err
}

func (t *sqliteTx) TokenBalances(ctx context.Context, scope, owner string) ([]TokenBalance, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT code, amount FROM token_accounts WHERE scope = ? AND owner = ? ORDER BY code`, scope, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TokenBalance
	for rows.Next() {
		r := TokenBalance{Owner: owner}
		if err := rows.Scan(&r.Code, &r.Amount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) Account(ctx context.Context, name string) (AccountRow, bool, error) {
	r := AccountRow{Name: name}
	var created int64
	err := t.tx.QueryRowContext(ctx, `SELECT owner_key, active_key, created_at FROM chain_accounts WHERE name = ?`, name).
		Scan(&r.OwnerKey, &r.ActiveKey, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return AccountRow{}, false, nil
	}
	if err != nil {
		return AccountRow{}, false, err
	}
	r.CreatedAt = fromUnix(created)
	return r, true, nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, row AccountRow) error {
	if _, ok, err := t.Account(ctx, row.Name); err != nil {
		return err
	} else if ok {
		return ErrAccountExists
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO chain_accounts (name, owner_key, active_key, created_at) VALUES (?, ?, ?, ?)`,
		row.Name, row.OwnerKey, row.ActiveKey, unix(row.CreatedAt))
	return err
}

func (t *sqliteTx) Savepoint(ctx context.Context, name string) error {
	if err := checkSavepoint(name); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

func (t *sqliteTx) RollbackTo(ctx context.Context, name string) error {
	if err := checkSavepoint(name); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

func (t *sqliteTx) Release(ctx context.Context, name string) error {
	if err := checkSavepoint(name); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *sqliteTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
