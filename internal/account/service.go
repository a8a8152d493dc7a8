package account

import (
	"context"
	"time"
)

// Service manages the account lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new account service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register validates the name and keys and stores the account.
func (s *Service) Register(ctx context.Context, reg Registration) (Account, error) {
	if !ValidName(reg.Name) {
		return Account{}, ErrInvalidName
	}
	owner, err := ParseKey(reg.OwnerKey)
	if err != nil {
		return Account{}, err
	}
	active, err := ParseKey(reg.ActiveKey)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		Name:      reg.Name,
		OwnerKey:  owner,
		ActiveKey: active,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Find returns the account registered under name.
func (s *Service) Find(ctx context.Context, name string) (Account, error) {
	return s.repo.Find(ctx, name)
}
