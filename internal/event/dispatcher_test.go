package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outboxRow struct {
	aggregate, aggregateID, topic string
	payload                       []byte
}

type fakeOutbox struct {
	rows []outboxRow
	err  error
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, outboxRow{aggregate, aggregateID, topic, payload})
	return nil
}

func (f *fakeOutbox) LockUnpublished(context.Context, *sqlx.Tx, int) ([]model.OutboxEvent, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, *sqlx.Tx, []int64) error { return nil }
func (f *fakeOutbox) IncAttempts(context.Context, *sqlx.Tx, []int64) error   { return nil }

func TestDispatch_WritesOutboxRow(t *testing.T) {
	ob := &fakeOutbox{}
	d := NewOutboxDispatcher(ob, "bpmn.message.waiting", true)

	key := "A-1"
	exec := &model.Execution{ID: "exec-1", ProcessInstanceID: "pi-1", ActivityID: "waitForOrder"}
	require.NoError(t, d.Dispatch(context.Background(), nil, model.NewMessageWaitingEvent(exec, "OrderReceived", &key)))

	require.Len(t, ob.rows, 1)
	row := ob.rows[0]
	assert.Equal(t, "execution", row.aggregate)
	assert.Equal(t, "exec-1", row.aggregateID)
	assert.Equal(t, "bpmn.message.waiting", row.topic)

	var got model.MessageWaitingEvent
	require.NoError(t, json.Unmarshal(row.payload, &got))
	assert.Equal(t, model.EventMessageWaiting, got.Type)
	assert.Equal(t, "OrderReceived", got.MessageName)
	require.NotNil(t, got.CorrelationKey)
	assert.Equal(t, "A-1", *got.CorrelationKey)
}

func TestDispatch_AbsentKeySerializesAsNull(t *testing.T) {
	ob := &fakeOutbox{}
	d := NewOutboxDispatcher(ob, "t", true)

	exec := &model.Execution{ID: "exec-1"}
	require.NoError(t, d.Dispatch(context.Background(), nil, model.NewMessageWaitingEvent(exec, "OrderReceived", nil)))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(ob.rows[0].payload, &raw))
	v, ok := raw["correlation_key"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestDispatch_OutboxFailureIsStorageError(t *testing.T) {
	d := NewOutboxDispatcher(&fakeOutbox{err: errors.New("deadlock")}, "t", true)

	err := d.Dispatch(context.Background(), nil, model.NewMessageWaitingEvent(&model.Execution{ID: "e"}, "m", nil))
	var se *model.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestSetEnabled(t *testing.T) {
	d := NewOutboxDispatcher(&fakeOutbox{}, "t", false)
	assert.False(t, d.Enabled())
	d.SetEnabled(true)
	assert.True(t, d.Enabled())
}
