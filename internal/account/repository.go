package account

import (
	"context"
	"errors"

	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// ErrExists is returned when registering a taken name.
var ErrExists = store.ErrAccountExists

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	Find(ctx context.Context, name string) (Account, error)
}

// StoreRepository keeps accounts in the shared contract state store.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository builds a repository over s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

// Create inserts a new account.
func (r *StoreRepository) Create(ctx context.Context, acct Account) error {
	return store.Update(ctx, r.store, func(tx store.Tx) error {
		return tx.InsertAccount(ctx, store.AccountRow{
			Name:      acct.Name,
			OwnerKey:  EncodeKey(acct.OwnerKey),
			ActiveKey: EncodeKey(acct.ActiveKey),
			CreatedAt: acct.CreatedAt,
		})
	})
}

// Find fetches an account by name. It opens its own read transaction, so it
// must not be called while the caller holds a store transaction.
func (r *StoreRepository) Find(ctx context.Context, name string) (Account, error) {
	var row store.AccountRow
	err := store.View(ctx, r.store, func(tx store.Tx) error {
		var (
			ok  bool
			err error
		)
		row, ok, err = tx.Account(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return status.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return fromRow(row)
}

func fromRow(row store.AccountRow) (Account, error) {
	owner, err := ParseKey(row.OwnerKey)
	if err != nil {
		return Account{}, errors.Join(errors.New("corrupt owner key for "+row.Name), err)
	}
	active, err := ParseKey(row.ActiveKey)
	if err != nil {
		return Account{}, errors.Join(errors.New("corrupt active key for "+row.Name), err)
	}
	return Account{Name: row.Name, OwnerKey: owner, ActiveKey: active, CreatedAt: row.CreatedAt}, nil
}
