package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Eiffelllll/Activiti/internal/kafka"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var outboxCols = []string{"id", "aggregate", "aggregate_id", "topic", "payload", "attempts", "published_at", "created_at"}

type fakePublisher struct {
	errs   []error
	sent   [][]kafka.Message
	before func()
}

func (p *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	if p.before != nil {
		p.before()
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return err
		}
	}
	p.sent = append(p.sent, msgs)
	return nil
}

func newRelay(t *testing.T, pub kafka.Publisher, breaker *MicroBreaker) (*OutboxRelay, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	db := sqlx.NewDb(raw, "mysql")

	r := NewOutboxRelay(db, repository.NewOutboxRepository(db), pub, breaker)
	r.BatchSize = 10
	r.NewBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1) }
	return r, mock
}

func pending(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(outboxCols).
			AddRow(int64(7), "execution", "E1", "bpmn.message.waiting", []byte(`{"execution_id":"E1"}`), 0, nil, time.Now()).
			AddRow(int64(8), "execution", "E2", "bpmn.message.waiting", []byte(`{"execution_id":"E2"}`), 0, nil, time.Now()))
}

func TestRelayOnce_Publishes(t *testing.T) {
	pub := &fakePublisher{errs: []error{errors.New("leader not available")}}
	r, mock := newRelay(t, pub, NewMicroBreaker(3, time.Minute))

	pending(mock)
	mock.ExpectExec(`UPDATE outbox SET published_at = NOW\(\)`).
		WithArgs(int64(7), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.sent, 1, "second attempt succeeds")
	batch := pub.sent[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "bpmn.message.waiting", batch[0].Topic)
	assert.Equal(t, []byte("E1"), batch[0].Key)
	assert.JSONEq(t, `{"execution_id":"E2"}`, string(batch[1].Value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayOnce_NothingPending(t *testing.T) {
	pub := &fakePublisher{}
	r, mock := newRelay(t, pub, NewMicroBreaker(3, time.Minute))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(sqlmock.NewRows(outboxCols))
	mock.ExpectCommit()

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayOnce_FailureCountsAttemptsAndTripsBreaker(t *testing.T) {
	brokerDown := errors.New("broker down")
	pub := &fakePublisher{errs: []error{brokerDown, brokerDown}}
	breaker := NewMicroBreaker(1, time.Minute)
	r, mock := newRelay(t, pub, breaker)

	pending(mock)
	mock.ExpectExec(`UPDATE outbox SET attempts = attempts \+ 1`).
		WithArgs(int64(7), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := r.RelayOnce(context.Background())
	assert.ErrorIs(t, err, brokerDown)
	assert.Zero(t, n)
	assert.Equal(t, "open", breaker.State())

	// breaker open: rows stay locked-then-released, nothing is published
	pending(mock)
	mock.ExpectRollback()

	n, err = r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayOnce_CommitFailureKeepsBreakerCount(t *testing.T) {
	pub := &fakePublisher{}
	breaker := NewMicroBreaker(2, time.Minute)
	breaker.OnFailure()
	r, mock := newRelay(t, pub, breaker)

	pending(mock)
	mock.ExpectExec(`UPDATE outbox SET published_at = NOW\(\)`).
		WithArgs(int64(7), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	n, err := r.RelayOnce(context.Background())
	assert.ErrorContains(t, err, "connection lost")
	assert.Zero(t, n)
	require.Len(t, pub.sent, 1, "batch reached kafka and will be sent again")

	// the earlier failure still counts: one more trips the breaker
	breaker.OnFailure()
	assert.Equal(t, "open", breaker.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayOnce_ShutdownDuringProbeFreesSlot(t *testing.T) {
	now := time.Unix(1000, 0)
	breaker := NewMicroBreaker(1, time.Second)
	breaker.now = func() time.Time { return now }
	breaker.OnFailure()
	now = now.Add(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{errs: []error{context.Canceled}, before: cancel}
	r, mock := newRelay(t, pub, breaker)

	pending(mock)
	mock.ExpectRollback()

	n, err := r.RelayOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Equal(t, "half-open", breaker.State(), "cancellation is not a broker failure")
	assert.True(t, breaker.TryAcquire(), "probe slot was released")
}
