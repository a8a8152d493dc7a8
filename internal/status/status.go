package status

import (
	"errors"
)

// Code is the tagged outcome of an applied transaction. Anything other than
// OK means every write of the transaction was discarded.
type Code string

const (
	OK                   Code = "ok"
	InsufficientBalance  Code = "insufficient_balance"
	AuthorizationError   Code = "authorization_error"
	InvalidPeriod        Code = "invalid_period"
	InvalidTransfer      Code = "invalid_transfer"
	InvalidTarget        Code = "invalid_target"
	InvalidAmount        Code = "invalid_amount"
	NotFound             Code = "not_found"
	InvalidAction        Code = "invalid_action"
	DuplicateTransaction Code = "duplicate_transaction"
	Expired              Code = "expired"
	Internal             Code = "internal"
)

var (
	// ErrInsufficientBalance occurs when a balance cannot cover a run cost or debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAuthorization indicates the transaction lacks a required signature.
	ErrAuthorization = errors.New("missing required authority")

	// ErrInvalidPeriod is returned for non-positive or fractional-second periods.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidTransfer rejects a malformed funding transfer.
	ErrInvalidTransfer = errors.New("invalid transfer")

	// ErrInvalidTarget rejects a schedule whose account or action is not a valid name.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrInvalidAmount rejects non-positive or overflowing amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAction is returned for unknown actions, unknown contracts and bad payloads.
	ErrInvalidAction = errors.New("invalid action")

	// ErrDuplicateTransaction indicates the transaction id was already applied.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrExpired rejects transactions past their expiration.
	ErrExpired = errors.New("transaction expired")
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrInsufficientBalance, InsufficientBalance},
	{ErrAuthorization, AuthorizationError},
	{ErrInvalidPeriod, InvalidPeriod},
	{ErrInvalidTransfer, InvalidTransfer},
	{ErrInvalidTarget, InvalidTarget},
	{ErrInvalidAmount, InvalidAmount},
	{ErrNotFound, NotFound},
	{ErrInvalidAction, InvalidAction},
	{ErrDuplicateTransaction, DuplicateTransaction},
	{ErrExpired, Expired},
}

// CodeOf maps err (possibly wrapped) to its result code. A nil error is OK and
// anything unrecognised is Internal.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return Internal
}
