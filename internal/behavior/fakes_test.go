package behavior

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/jmoiron/sqlx"
)

// engine is an in-memory subscription store and execution manager.
type engine struct {
	seq        int
	subs       []model.EventSubscription
	executions map[string]*model.Execution
	left       map[string]string
	deleted    map[string]model.DeleteReason

	insertErr error
	deleteErr error
	leaveErr  error
}

func newEngine(execs ...*model.Execution) *engine {
	e := &engine{
		executions: map[string]*model.Execution{},
		left:       map[string]string{},
		deleted:    map[string]model.DeleteReason{},
	}
	for _, x := range execs {
		e.executions[x.ID] = x
	}
	return e
}

func (e *engine) InsertMessage(_ context.Context, _ *sqlx.Tx, name string, exec *model.Execution) (*model.EventSubscription, error) {
	if e.insertErr != nil {
		return nil, e.insertErr
	}
	e.seq++
	sub := model.EventSubscription{
		ID:          fmt.Sprintf("sub-%d", e.seq),
		EventType:   model.EventTypeMessage,
		EventName:   name,
		ExecutionID: exec.ID,
	}
	e.subs = append(e.subs, sub)
	return &e.subs[len(e.subs)-1], nil
}

func (e *engine) SetConfiguration(_ context.Context, _ *sqlx.Tx, sub *model.EventSubscription, key string) error {
	for i := range e.subs {
		if e.subs[i].ID == sub.ID {
			k := key
			e.subs[i].Configuration = &k
			sub.Configuration = &k
			return nil
		}
	}
	return &model.StorageError{Op: "set configuration", Err: model.ErrSubscriptionNotFound}
}

func (e *engine) ListByExecution(_ context.Context, _ *sqlx.Tx, executionID string) ([]model.EventSubscription, error) {
	var out []model.EventSubscription
	for _, s := range e.subs {
		if s.ExecutionID == executionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (e *engine) Delete(_ context.Context, _ *sqlx.Tx, sub *model.EventSubscription) error {
	if e.deleteErr != nil {
		return e.deleteErr
	}
	for i := range e.subs {
		if e.subs[i].ID == sub.ID {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return nil
		}
	}
	return &model.StorageError{Op: "delete", Err: model.ErrSubscriptionNotFound}
}

func (e *engine) EventSubscriptions(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) ([]model.EventSubscription, error) {
	return e.ListByExecution(ctx, tx, exec.ID)
}

func (e *engine) Leave(_ context.Context, _ *sqlx.Tx, exec *model.Execution, target string) error {
	if e.leaveErr != nil {
		return e.leaveErr
	}
	if _, ok := e.executions[exec.ID]; !ok {
		return &model.ExecutionStateError{ExecutionID: exec.ID, Op: "leave", Err: model.ErrExecutionNotFound}
	}
	e.left[exec.ID] = target
	exec.ActivityID = target
	return nil
}

func (e *engine) DeleteExecutionAndRelatedData(_ context.Context, _ *sqlx.Tx, exec *model.Execution, reason model.DeleteReason, _ bool) error {
	if _, ok := e.executions[exec.ID]; !ok {
		return &model.ExecutionStateError{ExecutionID: exec.ID, Op: "delete", Err: model.ErrExecutionNotFound}
	}
	delete(e.executions, exec.ID)
	e.deleted[exec.ID] = reason
	return nil
}

func (e *engine) byName(executionID, name string) []model.EventSubscription {
	var out []model.EventSubscription
	for _, s := range e.subs {
		if s.ExecutionID == executionID && s.EventName == name {
			out = append(out, s)
		}
	}
	return out
}

type sink struct {
	enabled bool
	events  []model.MessageWaitingEvent
	err     error
}

func (s *sink) Enabled() bool { return s.enabled }

func (s *sink) Dispatch(_ context.Context, _ *sqlx.Tx, evt model.MessageWaitingEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

// stubResolver returns fixed values; name may be swapped between calls.
type stubResolver struct {
	name    string
	key     *string
	nameErr error
	keyErr  error
}

func (r *stubResolver) MessageName(*model.Execution) (string, error) { return r.name, r.nameErr }

func (r *stubResolver) CorrelationKey(*model.Execution) (*string, error) { return r.key, r.keyErr }

func newContext(e *engine, s command.Dispatcher) *command.Context {
	return &command.Context{Subscriptions: e, Executions: e, Events: s}
}

var errBoom = errors.New("boom")
