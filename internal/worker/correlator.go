package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Eiffelllll/Activiti/internal/kafka"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Correlator is the part of the correlation service the worker drives.
type Correlator interface {
	Correlate(ctx context.Context, messageName string, key *string, vars map[string]any) (int, error)
	MessageEventReceived(ctx context.Context, messageName, executionID string, vars map[string]any) error
}

// CorrelatorKafka consumes delivered messages and resumes the executions
// waiting for them:
//   - execution_id set: deliver to that execution only,
//   - otherwise: correlate by message name and optional correlation key.
type CorrelatorKafka struct {
	Source  kafka.Source
	Service Correlator

	Workers int
	// NewBackOff builds the retry policy for one message; transient
	// (storage) failures are retried, everything else is final.
	NewBackOff func() backoff.BackOff
}

func NewCorrelatorKafka(src kafka.Source, svc Correlator, workers int) *CorrelatorKafka {
	return &CorrelatorKafka{
		Source:  src,
		Service: svc,
		Workers: workers,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

// Run blocks until ctx is cancelled.
func (w *CorrelatorKafka) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 8
	}
	msgCh := make(chan kafka.Message, w.Workers*2)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(msgCh)
		w.fetchLoop(ctx, msgCh)
		return nil
	})
	for i := 0; i < w.Workers; i++ {
		g.Go(func() error {
			for m := range msgCh {
				w.processOne(ctx, m)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *CorrelatorKafka) fetchLoop(ctx context.Context, out chan<- kafka.Message) {
	pause := backoff.NewExponentialBackOff()
	pause.MaxElapsedTime = 0

	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d := pause.NextBackOff()
			logger.Log.Warn("kafka fetch failed", zap.Error(err), zap.Duration("retry_in", d))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}
		pause.Reset()

		select {
		case <-ctx.Done():
			return
		case out <- m:
		}
	}
}

func (w *CorrelatorKafka) processOne(ctx context.Context, m kafka.Message) {
	var msg model.DeliveredMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil || msg.MessageName == "" {
		// poison: commit and skip
		logger.Log.Warn("dropping undecodable delivered message",
			zap.Int64("offset", m.Offset),
			zap.Int("partition", m.Partition),
			zap.Error(err),
		)
		w.commit(ctx, m)
		return
	}

	op := func() error {
		err := w.deliver(ctx, msg)
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(w.NewBackOff(), ctx))

	fields := []zap.Field{
		zap.String("message_name", msg.MessageName),
		zap.String("execution_id", msg.ExecutionID),
	}
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNoMessageSubscription), errors.Is(err, model.ErrExecutionNotFound):
		logger.Log.Info("delivered message had no waiting execution", append(fields, zap.Error(err))...)
	default:
		logger.Log.Error("delivered message failed", append(fields, zap.Error(err))...)
	}

	// at-least-once; a message that still fails is not redelivered forever
	w.commit(ctx, m)
}

func (w *CorrelatorKafka) deliver(ctx context.Context, msg model.DeliveredMessage) error {
	if msg.ExecutionID != "" {
		return w.Service.MessageEventReceived(ctx, msg.MessageName, msg.ExecutionID, msg.Variables)
	}
	n, err := w.Service.Correlate(ctx, msg.MessageName, msg.CorrelationKey, msg.Variables)
	if err == nil {
		logger.Log.Debug("message correlated",
			zap.String("message_name", msg.MessageName),
			zap.Int("executions", n),
		)
	}
	return err
}

func (w *CorrelatorKafka) commit(ctx context.Context, m kafka.Message) {
	if err := w.Source.Commit(ctx, m); err != nil && ctx.Err() == nil {
		logger.Log.Error("kafka commit failed", zap.Error(err))
	}
}

// transient reports whether err came from the storage layer and may succeed
// on retry. Missing executions, missing subscriptions and bad expressions
// will not.
func transient(err error) bool {
	var se *model.StorageError
	if errors.As(err, &se) {
		return !errors.Is(se, model.ErrSubscriptionNotFound)
	}
	var xe *model.ExecutionStateError
	if errors.As(err, &xe) {
		return !errors.Is(xe, model.ErrExecutionNotFound)
	}
	return false
}
