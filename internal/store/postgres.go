package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists contract state in PostgreSQL. Transactions run at
// serializable isolation so concurrent nodes sharing a database still observe
// a total order.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// Begin opens a serializable transaction.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Balance(ctx context.Context, scope, owner string) (BalanceRow, bool, error) {
	row := BalanceRow{Owner: owner}
	err := t.tx.QueryRow(ctx, `SELECT amount FROM balances WHERE scope = $1 AND owner = $2`, scope, owner).Scan(&row.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceRow{}, false, nil
	}
	if err != nil {
		return BalanceRow{}, false, err
	}
	return row, true, nil
}

func (t *postgresTx) PutBalance(ctx context.Context, scope string, row BalanceRow) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO balances (scope, owner, amount) VALUES ($1, $2, $3)
        ON CONFLICT (scope, owner) DO UPDATE SET amount = EXCLUDED.amount`, scope, row.Owner, row.Amount)
	return err
}

func (t *postgresTx) Balances(ctx context.Context, scope string) ([]BalanceRow, error) {
	rows, err := t.tx.Query(ctx, `SELECT owner, amount FROM balances WHERE scope = $1 ORDER BY owner`, scope)
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

const scheduleColumns = `id, sender, account, action, period_seconds, active, next_due, last_updated`

func scanSchedule(scan func(dest ...any) error) (ScheduleRow, error) {
	var (
		r                    ScheduleRow
		id                   int64
		period, due, updated int64
	)
	if err := scan(&id, &r.From, &r.Account, &r.Action, &period, &r.Active, &due, &updated); err != nil {
		return ScheduleRow{}, err
	}
	r.ID = uint64(id)
	r.Period = time.Duration(period) * time.Second
	r.NextDue = fromUnix(due)
	r.LastUpdated = fromUnix(updated)
	return r, nil
}

func (t *postgresTx) Schedule(ctx context.Context, scope string, id uint64) (ScheduleRow, bool, error) {
	row, err := scanSchedule(t.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM timetable WHERE scope = $1 AND id = $2`, scope, int64(id)).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduleRow{}, false, nil
	}
	if err != nil {
		return ScheduleRow{}, false, err
	}
	return row, true, nil
}

func (t *postgresTx) PutSchedule(ctx context.Context, scope string, row ScheduleRow) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO timetable (scope, `+scheduleColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (scope, id) DO UPDATE SET
            sender = EXCLUDED.sender, account = EXCLUDED.account, action = EXCLUDED.action,
            period_seconds = EXCLUDED.period_seconds, active = EXCLUDED.active,
            next_due = EXCLUDED.next_due, last_updated = EXCLUDED.last_updated`,
		scope, int64(row.ID), row.From, row.Account, row.Action, int64(row.Period/time.Second),
		row.Active, unix(row.NextDue), unix(row.LastUpdated))
	return err
}

func (t *postgresTx) querySchedules(ctx context.Context, query string, args ...any) ([]ScheduleRow, error) {
	rows, err := t.tx.Query(ctx, query, args...)
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

func (t *postgresTx) Schedules(ctx context.Context, scope string) ([]ScheduleRow, error) {
	return t.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM timetable WHERE scope = $1 ORDER BY id`, scope)
}

func (t *postgresTx) DueSchedules(ctx context.Context, scope string, now time.Time, limit int) ([]ScheduleRow, error) {
	return t.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM timetable
        WHERE scope = $1 AND active AND next_due <= $2
        ORDER BY last_updated, next_due, id LIMIT $3`, scope, now.Unix(), limit)
}

func (t *postgresTx) Singleton(ctx context.Context, scope, name string) (int64, bool, error) {
	var v int64
	err := t.tx.QueryRow(ctx, `SELECT value FROM singletons WHERE scope = $1 AND name = $2`, scope, name).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (t *postgresTx) PutSingleton(ctx context.Context, scope, name string, value int64) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO singletons (scope, name, value) VALUES ($1, $2, $3)
        ON CONFLICT (scope, name) DO UPDATE SET value = EXCLUDED.value`, scope, name, value)
	return err
}

func (t *postgresTx) TokenStat(ctx context.Context, scope, code string) (TokenStat, bool, error) {
	r := TokenStat{Code: code}
	var prec int16
	err := t.tx.QueryRow(ctx, `SELECT decimals, issuer, max_supply, supply FROM token_stats WHERE scope = $1 AND code = $2`,
		scope, code).Scan(&prec, &r.Issuer, &r.MaxSupply, &r.Supply)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenStat{}, false, nil
	}
	if err != nil {
		return TokenStat{}, false, err
	}
	r.Precision = uint8(prec)
	return r, true, nil
}

func (t *postgresTx) PutTokenStat(ctx context.Context, scope string, row TokenStat) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO token_stats (scope, code, decimals, issuer, max_supply, supply)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (scope, code) DO UPDATE SET supply = EXCLUDED.supply`,
		scope, row.Code, int16(row.Precision), row.Issuer, row.MaxSupply, row.Supply)
	return err
}

func (t *postgresTx) TokenBalance(ctx context.Context, scope, owner, code string) (TokenBalance, bool, error) {
	r := TokenBalance{Owner: owner, Code: code}
	err := t.tx.QueryRow(ctx, `SELECT amount FROM token_accounts WHERE scope = $1 AND owner = $2 AND code = $3`,
		scope, owner, code).Scan(&r.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenBalance{}, false, nil
	}
	if err != nil {
		return TokenBalance{}, false, err
	}
	return r, true, nil
}

func (t *postgresTx) PutTokenBalance(ctx context.Context, scope string, row TokenBalance) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO token_accounts (scope, owner, code, amount) VALUES ($1, $2, $3, $4)
        ON CONFLICT (scope, owner, code) DO UPDATE SET amount = EXCLUDED.amount`, scope, row.Owner, row.Code, row.Amount)
	return err
}

func (t *postgresTx) TokenBalances(ctx context.Context, scope, owner string) ([]TokenBalance, error) {
	rows, err := t.tx.Query(ctx, `SELECT code, amount FROM token_accounts WHERE scope = $1 AND owner = $2 ORDER BY code`, scope, owner)
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

func (t *postgresTx) Account(ctx context.Context, name string) (AccountRow, bool, error) {
	r := AccountRow{Name: name}
	var created int64
	err := t.tx.QueryRow(ctx, `SELECT owner_key, active_key, created_at FROM chain_accounts WHERE name = $1`, name).
		Scan(&r.OwnerKey, &r.ActiveKey, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountRow{}, false, nil
	}
	if err != nil {
		return AccountRow{}, false, err
	}
	r.CreatedAt = fromUnix(created)
	return r, true, nil
}

func (t *postgresTx) InsertAccount(ctx context.Context, row AccountRow) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO chain_accounts (name, owner_key, active_key, created_at) VALUES ($1, $2, $3, $4)`,
		row.Name, row.OwnerKey, row.ActiveKey, unix(row.CreatedAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAccountExists
	}
	return err
}

func (t *postgresTx) Savepoint(ctx context.Context, name string) error {
	if err := checkSavepoint(name); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+name)
	return err
}

func (t *postgresTx) RollbackTo(ctx context.Context, name string) error {
	if err := checkSavepoint(name); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

func (t *postgresTx) Release(ctx context.Context, name string) error {
	if err := checkSavepoint(name); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
