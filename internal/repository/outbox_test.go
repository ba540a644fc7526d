package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxInsert_OwnTransaction(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs("execution", "E", "bpmn.message.waiting", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := NewOutboxRepository(db).Insert(context.Background(), nil, "execution", "E", "bpmn.message.waiting", []byte(`{}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxLockAndMark(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate", "aggregate_id", "topic", "payload", "attempts", "published_at", "created_at"}).
			AddRow(int64(1), "execution", "E1", "t", []byte(`{}`), 0, nil, time.Now()).
			AddRow(int64(2), "execution", "E2", "t", []byte(`{}`), 1, nil, time.Now()))

	rows, err := repo.LockUnpublished(context.Background(), tx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].PublishedAt)

	mock.ExpectExec(`UPDATE outbox SET published_at = NOW\(\) WHERE id IN \(\?, \?\)`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.MarkPublished(context.Background(), tx, []int64{1, 2}))

	// empty id list is a no-op
	require.NoError(t, repo.IncAttempts(context.Background(), tx, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
