package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// WaitingRow is one message-waiting notification as stored in ClickHouse.
type WaitingRow struct {
	ExecutionID       string    `db:"execution_id"        json:"execution_id"`
	ProcessInstanceID string    `db:"process_instance_id" json:"process_instance_id"`
	ActivityID        string    `db:"activity_id"         json:"activity_id"`
	MessageName       string    `db:"message_name"        json:"message_name"`
	CorrelationKey    *string   `db:"correlation_key"     json:"correlation_key"`
	Timestamp         time.Time `db:"ts"                  json:"timestamp"`
}

// CHWaitingRepository reads the message-waiting history that ClickHouse
// ingests from the waiting-events Kafka topic.
type CHWaitingRepository interface {
	List(ctx context.Context, processInstanceID, messageName string, limit, offset int) ([]WaitingRow, error)
}

type chWaitingRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHWaitingRepository(ch *sqlx.DB) CHWaitingRepository {
	return &chWaitingRepository{ch: ch}
}

func (r *chWaitingRepository) List(ctx context.Context, processInstanceID, messageName string, limit, offset int) ([]WaitingRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT execution_id, process_instance_id, activity_id, message_name, correlation_key, ts
		FROM msgcatch.message_waiting_events
		WHERE 1 = 1
	`
	var args []any

	if processInstanceID != "" {
		q += " AND process_instance_id = ?"
		args = append(args, processInstanceID)
	}
	if messageName != "" {
		q += " AND message_name = ?"
		args = append(args, messageName)
	}

	q += " ORDER BY ts DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []WaitingRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
