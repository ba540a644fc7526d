package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Eiffelllll/Activiti/internal/kafka"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/metrics"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// OutboxRelay moves committed outbox rows (message-waiting notifications) to
// Kafka. Rows are locked with SKIP LOCKED, so several relays can run side by
// side without publishing the same batch twice.
//
// Delivery is at-least-once: a batch written to Kafka whose MarkPublished or
// commit then fails stays unpublished and is sent again on the next poll.
// Consumers dedupe on execution_id and timestamp.
type OutboxRelay struct {
	DB        *sqlx.DB
	Outbox    repository.OutboxRepository
	Publisher kafka.Publisher
	Breaker   *MicroBreaker

	BatchSize    int
	PollInterval time.Duration
	NewBackOff   func() backoff.BackOff
}

func NewOutboxRelay(db *sqlx.DB, outbox repository.OutboxRepository, pub kafka.Publisher, breaker *MicroBreaker) *OutboxRelay {
	return &OutboxRelay{
		DB:           db,
		Outbox:       outbox,
		Publisher:    pub,
		Breaker:      breaker,
		BatchSize:    100,
		PollInterval: 500 * time.Millisecond,
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next poll.
func (r *OutboxRelay) Run(ctx context.Context) error {
	if r.PollInterval <= 0 {
		r.PollInterval = 500 * time.Millisecond
	}
	tick := time.NewTicker(r.PollInterval)
	defer tick.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Log.Error("outbox relay failed", zap.Error(err))
		}
		if err == nil && n >= r.BatchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were published.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := r.Outbox.LockUnpublished(ctx, tx, r.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("lock outbox: %w", err)
	}
	if len(rows) == 0 {
		return 0, tx.Commit()
	}

	if !r.Breaker.TryAcquire() {
		logger.Log.Debug("outbox relay paused, breaker open", zap.Int("pending", len(rows)))
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, kafka.Message{
			Topic: row.Topic,
			Key:   []byte(row.AggregateID),
			Value: row.Payload,
		})
		ids = append(ids, row.ID)
	}

	pubErr := backoff.Retry(func() error {
		return r.Publisher.Publish(ctx, msgs...)
	}, backoff.WithContext(r.NewBackOff(), ctx))

	if pubErr != nil && ctx.Err() != nil {
		// shutting down: says nothing about the broker
		r.Breaker.Release()
		return 0, ctx.Err()
	}
	if pubErr != nil {
		r.Breaker.OnFailure()
		metrics.OutboxRelayedTotal.WithLabelValues("failed").Add(float64(len(ids)))
		if err := r.Outbox.IncAttempts(ctx, tx, ids); err != nil {
			return 0, fmt.Errorf("publish: %v; inc attempts: %w", pubErr, err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit: %w", err)
		}
		logger.Log.Warn("outbox publish failed",
			zap.Int("rows", len(ids)),
			zap.String("breaker", r.Breaker.State()),
			zap.Error(pubErr),
		)
		return 0, pubErr
	}

	if err := r.Outbox.MarkPublished(ctx, tx, ids); err != nil {
		r.Breaker.Release()
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		r.Breaker.Release()
		return 0, fmt.Errorf("commit: %w", err)
	}
	r.Breaker.OnSuccess()
	metrics.OutboxRelayedTotal.WithLabelValues("published").Add(float64(len(ids)))
	return len(ids), nil
}
