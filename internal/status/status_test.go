package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{ErrInsufficientBalance, InsufficientBalance},
		{fmt.Errorf("schedule: %w", ErrInvalidPeriod), InvalidPeriod},
		{fmt.Errorf("deposit: %w", fmt.Errorf("memo: %w", ErrInvalidTransfer)), InvalidTransfer},
		{fmt.Errorf("alice@active: %w", ErrAuthorization), AuthorizationError},
		{errors.New("disk on fire"), Internal},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
