package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const executionColumns = `id, parent_id, proc_inst_id, activity_id, state, variables, created_at, updated_at`

// ExecutionsRepository is the minimal execution engine behind catch points.
type ExecutionsRepository interface {
	command.ExecutionManager
	Insert(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) error
	Get(ctx context.Context, id string) (*model.Execution, error)
	// GetForUpdate locks the execution row until tx ends; commands on the
	// same execution are serialized by it.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Execution, error)
	MarkWaiting(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) error
	MergeVariables(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, vars map[string]any) error
}

type ExecutionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewExecutionsRepository(db *sqlx.DB) *ExecutionsRepositoryImpl {
	return &ExecutionsRepositoryImpl{db: db}
}

var _ ExecutionsRepository = (*ExecutionsRepositoryImpl)(nil)

func (r *ExecutionsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) error {
	if exec.State == "" {
		exec.State = model.ExecutionActive
	}
	const q = `
		INSERT INTO executions
		    (id, parent_id, proc_inst_id, activity_id, state, variables, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,            ?,           ?,     ?,         NOW(),      NOW())
	`
	_, err := tx.ExecContext(ctx, q,
		exec.ID, exec.ParentID, exec.ProcessInstanceID, exec.ActivityID, exec.State.String(), exec.Variables,
	)
	return err
}

func (r *ExecutionsRepositoryImpl) Get(ctx context.Context, id string) (*model.Execution, error) {
	return r.get(ctx, r.db, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
}

func (r *ExecutionsRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Execution, error) {
	return r.get(ctx, tx, `SELECT `+executionColumns+` FROM executions WHERE id = ? FOR UPDATE`, id)
}

func (r *ExecutionsRepositoryImpl) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*model.Execution, error) {
	var e model.Execution
	err := sqlx.GetContext(ctx, q, &e, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ExecutionsRepositoryImpl) EventSubscriptions(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) ([]model.EventSubscription, error) {
	var q sqlx.QueryerContext = r.db
	if tx != nil {
		q = tx
	}
	subs, err := listByExecution(ctx, q, exec.ID)
	if err != nil {
		return nil, &model.StorageError{Op: "list", Err: err}
	}
	return subs, nil
}

func (r *ExecutionsRepositoryImpl) MarkWaiting(ctx context.Context, tx *sqlx.Tx, exec *model.Execution) error {
	if err := r.update(ctx, tx, exec.ID, "mark waiting",
		`UPDATE executions SET state = ?, updated_at = NOW() WHERE id = ?`, model.ExecutionWaiting.String(), exec.ID,
	); err != nil {
		return err
	}
	exec.State = model.ExecutionWaiting
	return nil
}

func (r *ExecutionsRepositoryImpl) MergeVariables(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	merged := exec.Variables.Merge(vars)
	if err := r.update(ctx, tx, exec.ID, "merge variables",
		`UPDATE executions SET variables = ?, updated_at = NOW() WHERE id = ?`, merged, exec.ID,
	); err != nil {
		return err
	}
	exec.Variables = merged
	return nil
}

// Leave moves exec to target and reactivates it. An empty target means the
// branch has nowhere to go, so the execution ends and is removed.
func (r *ExecutionsRepositoryImpl) Leave(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, target string) error {
	if target == "" {
		return r.remove(ctx, tx, exec, "leave", true)
	}
	if err := r.update(ctx, tx, exec.ID, "leave",
		`UPDATE executions SET activity_id = ?, state = ?, updated_at = NOW() WHERE id = ?`,
		target, model.ExecutionActive.String(), exec.ID,
	); err != nil {
		return err
	}

	logger.Log.Debug("execution left catch point",
		zap.String("execution_id", exec.ID),
		zap.String("from", exec.ActivityID),
		zap.String("to", target),
	)
	exec.ActivityID = target
	exec.State = model.ExecutionActive
	return nil
}

// DeleteExecutionAndRelatedData removes exec's subscriptions and the execution
// itself; with cascade, child executions go first.
func (r *ExecutionsRepositoryImpl) DeleteExecutionAndRelatedData(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, reason model.DeleteReason, cascade bool) error {
	if err := r.remove(ctx, tx, exec, "delete", cascade); err != nil {
		return err
	}
	logger.Log.Info("execution deleted",
		zap.String("execution_id", exec.ID),
		zap.String("process_instance_id", exec.ProcessInstanceID),
		zap.String("reason", reason.String()),
	)
	return nil
}

func (r *ExecutionsRepositoryImpl) remove(ctx context.Context, tx *sqlx.Tx, exec *model.Execution, op string, cascade bool) error {
	if cascade {
		var children []string
		if err := tx.SelectContext(ctx, &children, `SELECT id FROM executions WHERE parent_id = ?`, exec.ID); err != nil {
			return &model.ExecutionStateError{ExecutionID: exec.ID, Op: op, Err: err}
		}
		for _, id := range children {
			child := &model.Execution{ID: id, ProcessInstanceID: exec.ProcessInstanceID}
			if err := r.remove(ctx, tx, child, op, true); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_subscriptions WHERE execution_id = ?`, exec.ID); err != nil {
		return &model.StorageError{Op: "delete by execution", Err: err}
	}
	return r.update(ctx, tx, exec.ID, op, `DELETE FROM executions WHERE id = ?`, exec.ID)
}

func (r *ExecutionsRepositoryImpl) update(ctx context.Context, tx *sqlx.Tx, id, op, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return &model.ExecutionStateError{ExecutionID: id, Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &model.ExecutionStateError{ExecutionID: id, Op: op, Err: err}
	}
	if n == 0 {
		return &model.ExecutionStateError{ExecutionID: id, Op: op, Err: model.ErrExecutionNotFound}
	}
	return nil
}
