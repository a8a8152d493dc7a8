package store

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type scopedKey struct {
	scope string
	key   string
}

type tokenKey struct {
	scope string
	owner string
	code  string
}

type memoryState struct {
	balances      map[scopedKey]BalanceRow
	schedules     map[string]map[uint64]ScheduleRow
	singletons    map[scopedKey]int64
	tokenStats    map[scopedKey]TokenStat
	tokenBalances map[tokenKey]TokenBalance
	accounts      map[string]AccountRow
}

// memoryStore keeps all state in maps. A single writer at a time holds the
// semaphore from Begin until Commit or Rollback; writes are applied in place
// and undone from a log on rollback.
type memoryStore struct {
	sem   chan struct{}
	state *memoryState
}

// NewMemory creates an in-memory store useful for unit tests and devnets.
func NewMemory() Store {
	return &memoryStore{
		sem: make(chan struct{}, 1),
		state: &memoryState{
			balances:      make(map[scopedKey]BalanceRow),
			schedules:     make(map[string]map[uint64]ScheduleRow),
			singletons:    make(map[scopedKey]int64),
			tokenStats:    make(map[scopedKey]TokenStat),
			tokenBalances: make(map[tokenKey]TokenBalance),
			accounts:      make(map[string]AccountRow),
		},
	}
}

func (s *memoryStore) Begin(ctx context.Context) (Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &memoryTx{store: s, st: s.state, savepoints: map[string]int{}}, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }

type memoryTx struct {
	store      *memoryStore
	st         *memoryState
	undo       []func()
	savepoints map[string]int
	order      []string
	done       bool
}

func (t *memoryTx) check() error {
	if t.done {
		return ErrNoTransaction
	}
	return nil
}

func (t *memoryTx) Balance(_ context.Context, scope, owner string) (BalanceRow, bool, error) {
	if err := t.check(); err != nil {
		return BalanceRow{}, false, err
	}
	row, ok := t.st.balances[scopedKey{scope, owner}]
	return row, ok, nil
}

func (t *memoryTx) PutBalance(_ context.Context, scope string, row BalanceRow) error {
	if err := t.check(); err != nil {
		return err
	}
	k := scopedKey{scope, row.Owner}
	prev, existed := t.st.balances[k]
	t.st.balances[k] = row
	t.undo = append(t.undo, func() {
		if existed {
			t.st.balances[k] = prev
		} else {
			delete(t.st.balances, k)
		}
	})
	return nil
}

func (t *memoryTx) Balances(_ context.Context, scope string) ([]BalanceRow, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var rows []BalanceRow
	for k, row := range t.st.balances {
		if k.scope == scope {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Owner < rows[j].Owner })
	return rows, nil
}

func (t *memoryTx) Schedule(_ context.Context, scope string, id uint64) (ScheduleRow, bool, error) {
	if err := t.check(); err != nil {
		return ScheduleRow{}, false, err
	}
	row, ok := t.st.schedules[scope][id]
	return row, ok, nil
}

func (t *memoryTx) PutSchedule(_ context.Context, scope string, row ScheduleRow) error {
	if err := t.check(); err != nil {
		return err
	}
	table, ok := t.st.schedules[scope]
	if !ok {
		table = make(map[uint64]ScheduleRow)
		t.st.schedules[scope] = table
	}
	prev, existed := table[row.ID]
	table[row.ID] = row
	t.undo = append(t.undo, func() {
		if existed {
			table[row.ID] = prev
		} else {
			delete(table, row.ID)
		}
	})
	return nil
}

func (t *memoryTx) Schedules(_ context.Context, scope string) ([]ScheduleRow, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	rows := make([]ScheduleRow, 0, len(t.st.schedules[scope]))
	for _, row := range t.st.schedules[scope] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (t *memoryTx) DueSchedules(_ context.Context, scope string, now time.Time, limit int) ([]ScheduleRow, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var rows []ScheduleRow
	for _, row := range t.st.schedules[scope] {
		if row.Active && !row.NextDue.After(now) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].LastUpdated.Equal(rows[j].LastUpdated) {
			return rows[i].LastUpdated.Before(rows[j].LastUpdated)
		}
		if !rows[i].NextDue.Equal(rows[j].NextDue) {
			return rows[i].NextDue.Before(rows[j].NextDue)
		}
		return rows[i].ID < rows[j].ID
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (t *memoryTx) Singleton(_ context.Context, scope, name string) (int64, bool, error) {
	if err := t.check(); err != nil {
		return 0, false, err
	}
	v, ok := t.st.singletons[scopedKey{scope, name}]
	return v, ok, nil
}

func (t *memoryTx) PutSingleton(_ context.Context, scope, name string, value int64) error {
	if err := t.check(); err != nil {
		return err
	}
	k := scopedKey{scope, name}
	prev, existed := t.st.singletons[k]
	t.st.singletons[k] = value
	t.undo = append(t.undo, func() {
		if existed {
			t.st.singletons[k] = prev
		} else {
			delete(t.st.singletons, k)
		}
	})
	return nil
}

func (t *memoryTx) TokenStat(_ context.Context, scope, code string) (TokenStat, bool, error) {
	if err := t.check(); err != nil {
		return TokenStat{}, false, err
	}
	row, ok := t.st.tokenStats[scopedKey{scope, code}]
	return row, ok, nil
}

func (t *memoryTx) PutTokenStat(_ context.Context, scope string, row TokenStat) error {
	if err := t.check(); err != nil {
		return err
	}
	k := scopedKey{scope, row.Code}
	prev, existed := t.st.tokenStats[k]
	t.st.tokenStats[k] = row
	t.undo = append(t.undo, func() {
		if existed {
			t.st.tokenStats[k] = prev
		} else {
			delete(t.st.tokenStats, k)
		}
	})
	return nil
}

func (t *memoryTx) TokenBalance(_ context.Context, scope, owner, code string) (TokenBalance, bool, error) {
	if err := t.check(); err != nil {
		return TokenBalance{}, false, err
	}
	row, ok := t.st.tokenBalances[tokenKey{scope, owner, code}]
	return row, ok, nil
}

func (t *memoryTx) PutTokenBalance(_ context.Context, scope string, row TokenBalance) error {
	if err := t.check(); err != nil {
		return err
	}
	k := tokenKey{scope, row.Owner, row.Code}
	prev, existed := t.st.tokenBalances[k]
	t.st.tokenBalances[k] = row
	t.undo = append(t.undo, func() {
		if existed {
			t.st.tokenBalances[k] = prev
		} else {
			delete(t.st.tokenBalances, k)
		}
	})
	return nil
}

func (t *memoryTx) TokenBalances(_ context.Context, scope, owner string) ([]TokenBalance, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var rows []TokenBalance
	for k, row := range t.st.tokenBalances {
		if k.scope == scope && k.owner == owner {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows, nil
}

func (t *memoryTx) Account(_ context.Context, name string) (AccountRow, bool, error) {
	if err := t.check(); err != nil {
		return AccountRow{}, false, err
	}
	row, ok := t.st.accounts[name]
	return row, ok, nil
}

func (t *memoryTx) InsertAccount(_ context.Context, row AccountRow) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, exists := t.st.accounts[row.Name]; exists {
		return ErrAccountExists
	}
	t.st.accounts[row.Name] = row
	t.undo = append(t.undo, func() { delete(t.st.accounts, row.Name) })
	return nil
}

func (t *memoryTx) Savepoint(_ context.Context, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := checkSavepoint(name); err != nil {
		return err
	}
	t.savepoints[name] = len(t.undo)
	t.order = append(t.order, name)
	return nil
}

func (t *memoryTx) RollbackTo(_ context.Context, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	mark, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("savepoint %q does not exist", name)
	}
	t.unwind(mark)
	t.dropAfter(name)
	return nil
}

func (t *memoryTx) Release(_ context.Context, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.savepoints[name]; !ok {
		return fmt.Errorf("savepoint %q does not exist", name)
	}
	t.dropAfter(name)
	delete(t.savepoints, name)
	t.order = t.order[:len(t.order)-1]
	return nil
}

// dropAfter forgets savepoints created after name, as SQL does.
func (t *memoryTx) dropAfter(name string) {
	for len(t.order) > 0 && t.order[len(t.order)-1] != name {
		delete(t.savepoints, t.order[len(t.order)-1])
		t.order = t.order[:len(t.order)-1]
	}
}

func (t *memoryTx) unwind(mark int) {
	for i := len(t.undo) - 1; i >= mark; i-- {
		t.undo[i]()
	}
	t.undo = t.undo[:mark]
}

func (t *memoryTx) Commit(context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	t.finish()
	return nil
}

func (t *memoryTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.unwind(0)
	t.finish()
	return nil
}

func (t *memoryTx) finish() {
	t.done = true
	t.undo = nil
	<-t.store.sem
}
