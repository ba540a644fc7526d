package repository

import (
	"context"

	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxRepository defines persistence methods for the outbox table.
type OutboxRepository interface {
	// Insert writes a single outbox event. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error
	// LockUnpublished returns up to limit unpublished rows, oldest first, locked
	// for tx. Rows locked by another relay are skipped.
	LockUnpublished(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, tx *sqlx.Tx, ids []int64) error
	IncAttempts(ctx context.Context, tx *sqlx.Tx, ids []int64) error
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

// Insert adds an event row to outbox; the relay worker publishes it to Kafka
// under the row's topic after the enclosing transaction commits.
func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, aggregate, aggregateID, topic, payload)

		return err
	})
}

func (r *OutboxRepositoryImpl) LockUnpublished(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.OutboxEvent
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, aggregate, aggregate_id, topic, payload, attempts, published_at, created_at
		  FROM outbox
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	return r.execIn(ctx, tx, `UPDATE outbox SET published_at = NOW() WHERE id IN (?)`, ids)
}

func (r *OutboxRepositoryImpl) IncAttempts(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	return r.execIn(ctx, tx, `UPDATE outbox SET attempts = attempts + 1 WHERE id IN (?)`, ids)
}

func (r *OutboxRepositoryImpl) execIn(ctx context.Context, tx *sqlx.Tx, base string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(base, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}
