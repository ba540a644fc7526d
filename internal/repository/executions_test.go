package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var execCols = []string{"id", "parent_id", "proc_inst_id", "activity_id", "state", "variables", "created_at", "updated_at"}

func TestGetForUpdate(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	now := time.Now()

	mock.ExpectQuery(`FROM executions WHERE id = \? FOR UPDATE`).
		WithArgs("E").
		WillReturnRows(sqlmock.NewRows(execCols).
			AddRow("E", nil, "PI", "waitForOrder", "waiting", []byte(`{"orderId":"A-1"}`), now, now))

	exec, err := NewExecutionsRepository(db).GetForUpdate(context.Background(), tx, "E")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionWaiting, exec.State)
	assert.Nil(t, exec.ParentID)
	assert.Equal(t, "A-1", exec.Variables["orderId"])
}

func TestGetForUpdate_NotFound(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`FROM executions WHERE id = \? FOR UPDATE`).
		WithArgs("E").
		WillReturnRows(sqlmock.NewRows(execCols))

	_, err := NewExecutionsRepository(db).GetForUpdate(context.Background(), tx, "E")
	assert.ErrorIs(t, err, model.ErrExecutionNotFound)
}

func TestLeave(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE executions SET activity_id = \?, state = \?`).
		WithArgs("shipOrder", "active", "E").
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := &model.Execution{ID: "E", ActivityID: "waitForOrder", State: model.ExecutionWaiting}
	require.NoError(t, NewExecutionsRepository(db).Leave(context.Background(), tx, exec, "shipOrder"))
	assert.Equal(t, "shipOrder", exec.ActivityID)
	assert.Equal(t, model.ExecutionActive, exec.State)
}

func TestLeave_MissingExecution(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE executions SET activity_id`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewExecutionsRepository(db).Leave(context.Background(), tx, &model.Execution{ID: "E"}, "next")
	var xe *model.ExecutionStateError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, "leave", xe.Op)
	assert.ErrorIs(t, err, model.ErrExecutionNotFound)
}

func TestLeave_WithoutTargetEndsExecution(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`SELECT id FROM executions WHERE parent_id = \?`).
		WithArgs("E").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`DELETE FROM event_subscriptions WHERE execution_id = \?`).
		WithArgs("E").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM executions WHERE id = \?`).
		WithArgs("E").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewExecutionsRepository(db).Leave(context.Background(), tx, &model.Execution{ID: "E"}, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExecutionAndRelatedData(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`DELETE FROM event_subscriptions WHERE execution_id = \?`).
		WithArgs("E").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM executions WHERE id = \?`).
		WithArgs("E").
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := &model.Execution{ID: "E", ProcessInstanceID: "PI"}
	err := NewExecutionsRepository(db).DeleteExecutionAndRelatedData(context.Background(), tx, exec, model.DeleteReasonEventBasedGatewayCancel, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExecutionAndRelatedData_Cascade(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`SELECT id FROM executions WHERE parent_id = \?`).
		WithArgs("P").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("C"))
	mock.ExpectQuery(`SELECT id FROM executions WHERE parent_id = \?`).
		WithArgs("C").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`DELETE FROM event_subscriptions WHERE execution_id = \?`).WithArgs("C").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM executions WHERE id = \?`).WithArgs("C").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM event_subscriptions WHERE execution_id = \?`).WithArgs("P").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM executions WHERE id = \?`).WithArgs("P").WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewExecutionsRepository(db).DeleteExecutionAndRelatedData(context.Background(), tx, &model.Execution{ID: "P"}, model.DeleteReasonEventBasedGatewayCancel, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExecutionAndRelatedData_AlreadyGone(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`DELETE FROM event_subscriptions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM executions`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewExecutionsRepository(db).DeleteExecutionAndRelatedData(context.Background(), tx, &model.Execution{ID: "E"}, model.DeleteReasonEventBasedGatewayCancel, false)
	assert.ErrorIs(t, err, model.ErrExecutionNotFound)
}

func TestMergeVariables(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE executions SET variables = \?`).
		WithArgs(sqlmock.AnyArg(), "E").
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := &model.Execution{ID: "E", Variables: model.Variables{"a": 1}}
	require.NoError(t, NewExecutionsRepository(db).MergeVariables(context.Background(), tx, exec, map[string]any{"b": 2}))
	assert.Equal(t, model.Variables{"a": 1, "b": 2}, exec.Variables)

	// nothing to merge: no statement
	require.NoError(t, NewExecutionsRepository(db).MergeVariables(context.Background(), tx, exec, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
