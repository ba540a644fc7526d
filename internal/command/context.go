// Package command provides the unit-of-work boundary that wraps every catch
// point operation: one database transaction plus the collaborators that act
// inside it, passed explicitly as a *Context.
package command

import (
	"context"

	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/jmoiron/sqlx"
)

// SubscriptionStore persists event subscriptions inside the caller's transaction.
type SubscriptionStore interface {
	InsertMessage(ctx context.Context, tx *sqlx.Tx, eventName string, exec *model.Execution) (*model.EventSubscription, error)
	SetConfiguration(ctx context.Context, tx *sqlx.Tx, sub *model.EventSubscription, key string) error
	ListByExecution(ctx context.Context, tx *sqlx.Tx, executionID string) ([]model.EventSubscription, error)
	Delete(ctx context.Context, tx *sqlx.Tx, sub *model.EventSubscription) error
}

// ExecutionManager is the slice of the execution engine a catch point needs.
type ExecutionManager interface {
	EventSubscriptions(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) ([]model.EventSubscription, error)
	// Leave continues flow past the current activity towards target.
	Leave(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, target string) error
	DeleteExecutionAndRelatedData(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, reason model.DeleteReason, cascade bool) error
}

// Dispatcher receives engine notifications. Enabled is consulted every time
// before Dispatch is called.
type Dispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, tx *sqlx.Tx, evt model.MessageWaitingEvent) error
}

// Context is the per-command state. Tx may be nil in tests that use fakes.
type Context struct {
	Tx            *sqlx.Tx
	Subscriptions SubscriptionStore
	Executions    ExecutionManager
	Events        Dispatcher
}

// EventsEnabled reports whether a dispatcher is configured and enabled right now.
func (c *Context) EventsEnabled() bool {
	return c.Events != nil && c.Events.Enabled()
}
