// Package event notifies the outside world about catch point activity.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/jmoiron/sqlx"
)

const outboxAggregate = "execution"

// OutboxDispatcher writes notifications into the outbox inside the command's
// transaction, so a notification exists exactly when the subscription does.
type OutboxDispatcher struct {
	outbox  repository.OutboxRepository
	topic   string
	enabled atomic.Bool
}

var _ command.Dispatcher = (*OutboxDispatcher)(nil)

func NewOutboxDispatcher(outbox repository.OutboxRepository, topic string, enabled bool) *OutboxDispatcher {
	d := &OutboxDispatcher{outbox: outbox, topic: topic}
	d.enabled.Store(enabled)
	return d
}

func (d *OutboxDispatcher) Enabled() bool { return d.enabled.Load() }

// SetEnabled toggles dispatching; it affects catch points entered afterwards only.
func (d *OutboxDispatcher) SetEnabled(v bool) { d.enabled.Store(v) }

func (d *OutboxDispatcher) Dispatch(ctx context.Context, tx *sqlx.Tx, evt model.MessageWaitingEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.Type, err)
	}
	if err := d.outbox.Insert(ctx, tx, outboxAggregate, evt.ExecutionID, d.topic, payload); err != nil {
		return &model.StorageError{Op: "insert outbox", Err: err}
	}
	return nil
}
