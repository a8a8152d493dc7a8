package auth

import (
	"fmt"

	"github.com/cronos-sched/cronos/internal/status"
)

// Permission names a key level of an account.
type Permission string

const (
	// Owner is the recovery key; it satisfies every requirement.
	Owner Permission = "owner"
	// Active is the day-to-day signing key.
	Active Permission = "active"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return p == Owner || p == Active
}

// Satisfies reports whether holding p is enough for required.
func (p Permission) Satisfies(required Permission) bool {
	switch p {
	case Owner:
		return required.Valid()
	case Active:
		return required == Active
	default:
		return false
	}
}

// Level is an actor@permission pair declared on an action.
type Level struct {
	Actor      string     `json:"actor"`
	Permission Permission `json:"permission"`
}

func (l Level) String() string {
	return l.Actor + "@" + string(l.Permission)
}

// Has reports whether any granted level covers actor at permission.
func Has(granted []Level, actor string, permission Permission) bool {
	for _, g := range granted {
		if g.Actor == actor && g.Permission.Satisfies(permission) {
			return true
		}
	}
	return false
}

// Require fails with ErrAuthorization unless granted covers actor@permission.
func Require(granted []Level, actor string, permission Permission) error {
	if Has(granted, actor, permission) {
		return nil
	}
	return fmt.Errorf("missing authority of %s@%s: %w", actor, permission, status.ErrAuthorization)
}
