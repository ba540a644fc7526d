package command

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Executor runs commands in a fresh transaction each.
type Executor struct {
	db            *sqlx.DB
	subscriptions SubscriptionStore
	executions    ExecutionManager
	events        Dispatcher
}

// NewExecutor wires the collaborators every command receives. events may be nil.
func NewExecutor(db *sqlx.DB, subs SubscriptionStore, execs ExecutionManager, events Dispatcher) *Executor {
	return &Executor{
		db:            db,
		subscriptions: subs,
		executions:    execs,
		events:        events,
	}
}

// Execute begins a transaction, runs fn and commits. Any error from fn (or a
// panic) rolls the whole unit of work back and is returned unchanged.
func (e *Executor) Execute(ctx context.Context, fn func(cc *Context) error) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cc := &Context{
		Tx:            tx,
		Subscriptions: e.subscriptions,
		Executions:    e.executions,
		Events:        e.events,
	}
	if err := fn(cc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
