package repository

import (
	"context"
	"time"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/metrics"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/Eiffelllll/Activiti/internal/util"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `id, event_type, event_name, configuration, execution_id, proc_inst_id, activity_id, created_at`

// SubscriptionsRepository persists rows of the event_subscriptions table.
// Every failure is reported as *model.StorageError.
type SubscriptionsRepository interface {
	command.SubscriptionStore
	// FindMessageSubscriptions lists message subscriptions named name; a non-nil
	// key additionally restricts to that correlation key.
	FindMessageSubscriptions(ctx context.Context, tx *sqlx.Tx, name string, key *string) ([]model.EventSubscription, error)
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

func (r *SubscriptionsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *SubscriptionsRepositoryImpl) queryer(tx *sqlx.Tx) sqlx.QueryerContext {
	if tx != nil {
		return tx
	}
	return r.db
}

// InsertMessage creates a message subscription owned by exec, without a correlation key.
func (r *SubscriptionsRepositoryImpl) InsertMessage(ctx context.Context, tx *sqlx.Tx, eventName string, exec *model.Execution) (*model.EventSubscription, error) {
	sub := &model.EventSubscription{
		ID:                util.NewID(),
		EventType:         model.EventTypeMessage,
		EventName:         eventName,
		ExecutionID:       exec.ID,
		ProcessInstanceID: exec.ProcessInstanceID,
		ActivityID:        exec.ActivityID,
		CreatedAt:         time.Now().UTC(),
	}

	const q = `
		INSERT INTO event_subscriptions
		    (id, event_type, event_name, configuration, execution_id, proc_inst_id, activity_id, created_at)
		VALUES
		    (?,  ?,          ?,          NULL,          ?,            ?,            ?,           ?)
	`
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			sub.ID, sub.EventType.String(), sub.EventName, sub.ExecutionID, sub.ProcessInstanceID, sub.ActivityID, sub.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, &model.StorageError{Op: "insert", Err: err}
	}

	metrics.SubscriptionsTotal.WithLabelValues("created").Inc()
	return sub, nil
}

// SetConfiguration stores the correlation key on an existing subscription.
func (r *SubscriptionsRepositoryImpl) SetConfiguration(ctx context.Context, tx *sqlx.Tx, sub *model.EventSubscription, key string) error {
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE event_subscriptions SET configuration = ? WHERE id = ?`, key, sub.ID)
		return err
	})
	if err != nil {
		return &model.StorageError{Op: "set configuration", Err: err}
	}
	sub.Configuration = &key
	return nil
}

func (r *SubscriptionsRepositoryImpl) ListByExecution(ctx context.Context, tx *sqlx.Tx, executionID string) ([]model.EventSubscription, error) {
	subs, err := listByExecution(ctx, r.queryer(tx), executionID)
	if err != nil {
		return nil, &model.StorageError{Op: "list", Err: err}
	}
	return subs, nil
}

// Delete removes sub. A row that is already gone is reported, not ignored.
func (r *SubscriptionsRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, sub *model.EventSubscription) error {
	var affected int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM event_subscriptions WHERE id = ?`, sub.ID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return &model.StorageError{Op: "delete", Err: err}
	}
	if affected == 0 {
		return &model.StorageError{Op: "delete", Err: model.ErrSubscriptionNotFound}
	}

	metrics.SubscriptionsTotal.WithLabelValues("deleted").Inc()
	return nil
}

func (r *SubscriptionsRepositoryImpl) FindMessageSubscriptions(ctx context.Context, tx *sqlx.Tx, name string, key *string) ([]model.EventSubscription, error) {
	q := `SELECT ` + subscriptionColumns + `
		FROM event_subscriptions
		WHERE event_type = ? AND event_name = ?`
	args := []any{model.EventTypeMessage.String(), name}

	if key != nil {
		q += " AND configuration = ?"
		args = append(args, *key)
	}
	q += " ORDER BY created_at, id"

	var rows []model.EventSubscription
	if err := sqlx.SelectContext(ctx, r.queryer(tx), &rows, q, args...); err != nil {
		return nil, &model.StorageError{Op: "find", Err: err}
	}
	return rows, nil
}

func listByExecution(ctx context.Context, q sqlx.QueryerContext, executionID string) ([]model.EventSubscription, error) {
	var rows []model.EventSubscription
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT `+subscriptionColumns+`
		  FROM event_subscriptions
		 WHERE execution_id = ?
		 ORDER BY created_at, id
	`, executionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
