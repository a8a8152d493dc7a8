package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/cronos-sched/cronos/internal/auth"
	"github.com/cronos-sched/cronos/internal/status"
	"github.com/cronos-sched/cronos/internal/store"
)

// Context is the view a contract has of the action it is handling.
type Context struct {
	chain    *Chain
	st       *applyState
	receiver string
	code     string
	action   Action
	depth    int
}

// Tx is the store transaction of the enclosing chain transaction.
func (c *Context) Tx() store.Tx { return c.st.tx }

// Self is the account whose contract is running.
func (c *Context) Self() string { return c.receiver }

// Code is the account the action was addressed to. It differs from Self when
// the contract is handling a notification.
func (c *Context) Code() string { return c.code }

// Now is the block time.
func (c *Context) Now() time.Time { return c.st.now }

// Action is the action being handled.
func (c *Context) Action() Action { return c.action }

// Decode unmarshals the action payload.
func (c *Context) Decode(v any) error { return c.action.Decode(v) }

// HasAuth reports whether the action carries actor@permission.
func (c *Context) HasAuth(actor string, permission auth.Permission) bool {
	return auth.Has(c.action.Authorization, actor, permission)
}

// RequireAuth fails unless the action carries actor@permission.
func (c *Context) RequireAuth(actor string, permission auth.Permission) error {
	return auth.Require(c.action.Authorization, actor, permission)
}

// Invoke runs a as an inline action within the current transaction. Each
// level it declares must already authorize the current action or belong to
// the running contract.
func (c *Context) Invoke(ctx context.Context, a Action) error {
	for _, l := range a.Authorization {
		if l.Actor != c.receiver && !c.HasAuth(l.Actor, l.Permission) {
			return fmt.Errorf("inline %s::%s cannot use %s: %w", a.Account, a.Name, l, status.ErrAuthorization)
		}
	}
	hooks, deferred := len(c.st.hooks), len(c.st.deferred)
	if err := c.chain.dispatch(ctx, c.st, a, a.Account, a.Account, c.depth+1); err != nil {
		c.st.hooks = c.st.hooks[:hooks]
		c.st.deferred = c.st.deferred[:deferred]
		return err
	}
	return nil
}

// Notify delivers the current action to recipient's contract. Recipients
// without a contract and the running contract itself are skipped.
func (c *Context) Notify(ctx context.Context, recipient string) error {
	if recipient == c.receiver {
		return nil
	}
	if _, ok := c.chain.contracts[recipient]; !ok {
		return nil
	}
	return c.chain.dispatch(ctx, c.st, c.action, recipient, c.code, c.depth+1)
}

// Defer schedules actions as a separate transaction delivered after delay.
// A pending transaction from the same contract with the same id is replaced.
// Nothing is queued unless the current transaction commits.
func (c *Context) Defer(id uint64, delay time.Duration, actions []Action) error {
	if delay < 0 {
		return fmt.Errorf("negative delay: %w", status.ErrInvalidAction)
	}
	for _, a := range actions {
		for _, l := range a.Authorization {
			if l.Actor != c.receiver {
				return fmt.Errorf("deferred %s::%s cannot use %s: %w", a.Account, a.Name, l, status.ErrAuthorization)
			}
		}
	}
	c.st.deferred = append(c.st.deferred, deferredTx{
		key:       deferredKey{sender: c.receiver, id: id},
		deliverAt: c.st.now.Add(delay),
		actions:   actions,
	})
	return nil
}

// OnCommit registers fn to run after the transaction commits.
func (c *Context) OnCommit(fn func(context.Context)) {
	c.st.hooks = append(c.st.hooks, fn)
}

// Print appends a line to the transaction console.
func (c *Context) Print(format string, args ...any) {
	c.st.console = append(c.st.console, fmt.Sprintf(format, args...))
}
