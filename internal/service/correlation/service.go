// Package correlation holds the commands that drive catch points: arriving at
// one, delivering a message, and cancelling a branch from an event-based
// gateway. Each command runs in its own transaction and locks the execution
// row first, which serializes commands on the same execution.
package correlation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eiffelllll/Activiti/internal/behavior"
	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/metrics"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"go.uber.org/zap"
)

// Behaviors looks up the behavior bound to a catch point.
type Behaviors interface {
	Behavior(activityID string) (behavior.Behavior, error)
}

// Service runs catch point commands.
type Service struct {
	executor   *command.Executor
	executions repository.ExecutionsRepository
	subs       repository.SubscriptionsRepository
	behaviors  Behaviors
}

// New constructs the correlation service.
func New(
	executor *command.Executor,
	executionsRepo repository.ExecutionsRepository,
	subscriptionsRepo repository.SubscriptionsRepository,
	behaviors Behaviors,
) *Service {
	return &Service{
		executor:   executor,
		executions: executionsRepo,
		subs:       subscriptionsRepo,
		behaviors:  behaviors,
	}
}

// Enter parks the execution at the catch point of its current activity.
func (s *Service) Enter(ctx context.Context, executionID string) error {
	return s.executor.Execute(ctx, func(cc *command.Context) error {
		exec, err := s.executions.GetForUpdate(ctx, cc.Tx, executionID)
		if err != nil {
			return err
		}
		if exec.State == model.ExecutionWaiting {
			return fmt.Errorf("%w: %s at %s", model.ErrAlreadyWaiting, exec.ID, exec.ActivityID)
		}
		b, err := s.behaviors.Behavior(exec.ActivityID)
		if err != nil {
			return err
		}
		if err := b.Enter(ctx, cc, exec); err != nil {
			return err
		}
		return s.executions.MarkWaiting(ctx, cc.Tx, exec)
	})
}

// MessageEventReceived delivers messageName to one execution. The execution
// must hold a message subscription with that name; vars are merged into the
// execution before the catch point is triggered.
func (s *Service) MessageEventReceived(ctx context.Context, messageName, executionID string, vars map[string]any) error {
	err := s.executor.Execute(ctx, func(cc *command.Context) error {
		exec, err := s.executions.GetForUpdate(ctx, cc.Tx, executionID)
		if err != nil {
			return err
		}
		// a subscription left behind on an execution that already moved on
		// is not a delivery target
		if exec.State != model.ExecutionWaiting {
			return fmt.Errorf("%w: execution %s is %s at %s", model.ErrNoMessageSubscription, executionID, exec.State, exec.ActivityID)
		}
		b, err := s.behaviors.Behavior(exec.ActivityID)
		if errors.Is(err, model.ErrUnknownCatchPoint) {
			return fmt.Errorf("%w: execution %s at %s has no catch point", model.ErrNoMessageSubscription, executionID, exec.ActivityID)
		}
		if err != nil {
			return err
		}

		subs, err := cc.Executions.EventSubscriptions(ctx, cc.Tx, exec)
		if err != nil {
			return err
		}
		if !hasMessageSubscription(subs, messageName) {
			return fmt.Errorf("%w: execution %s, message %q", model.ErrNoMessageSubscription, executionID, messageName)
		}

		if err := s.executions.MergeVariables(ctx, cc.Tx, exec, vars); err != nil {
			return err
		}
		return b.Trigger(ctx, cc, exec, messageName, vars)
	})

	switch {
	case err == nil:
		metrics.CorrelationsTotal.WithLabelValues("triggered").Inc()
	case errors.Is(err, model.ErrNoMessageSubscription):
		metrics.CorrelationsTotal.WithLabelValues("no_subscription").Inc()
	default:
		metrics.CorrelationsTotal.WithLabelValues("failed").Inc()
	}
	return err
}

// Correlate delivers messageName to every execution subscribed to it; a
// non-nil key restricts delivery to subscriptions with that correlation key.
// Each execution is handled in its own transaction. Subscriptions whose
// execution is gone, no longer waiting, or not at a catch point are skipped.
// Returns how many were triggered.
func (s *Service) Correlate(ctx context.Context, messageName string, key *string, vars map[string]any) (int, error) {
	subs, err := s.subs.FindMessageSubscriptions(ctx, nil, messageName, key)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(subs))
	triggered := 0
	for _, sub := range subs {
		if _, dup := seen[sub.ExecutionID]; dup {
			continue
		}
		seen[sub.ExecutionID] = struct{}{}

		err := s.MessageEventReceived(ctx, messageName, sub.ExecutionID, vars)
		if errors.Is(err, model.ErrNoMessageSubscription) ||
			errors.Is(err, model.ErrExecutionNotFound) ||
			errors.Is(err, model.ErrUnknownCatchPoint) {
			logger.Log.Info("skipping subscription with no waiting execution",
				zap.String("execution_id", sub.ExecutionID),
				zap.String("subscription_id", sub.ID),
				zap.String("message_name", messageName),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return triggered, err
		}
		triggered++
	}
	return triggered, nil
}

// CancelByEventGateway terminates the execution's branch because a competing
// branch of an event-based gateway won.
func (s *Service) CancelByEventGateway(ctx context.Context, executionID string) error {
	err := s.executor.Execute(ctx, func(cc *command.Context) error {
		exec, err := s.executions.GetForUpdate(ctx, cc.Tx, executionID)
		if err != nil {
			return err
		}
		b, err := s.behaviors.Behavior(exec.ActivityID)
		if err != nil {
			return err
		}
		return b.EventCancelledByEventGateway(ctx, cc, exec)
	})
	if err == nil {
		metrics.CorrelationsTotal.WithLabelValues("cancelled").Inc()
	}
	return err
}

// Subscriptions lists the execution's current event subscriptions.
// Unknown executions report model.ErrExecutionNotFound.
func (s *Service) Subscriptions(ctx context.Context, executionID string) ([]model.EventSubscription, error) {
	if _, err := s.executions.Get(ctx, executionID); err != nil {
		return nil, err
	}
	return s.subs.ListByExecution(ctx, nil, executionID)
}

func hasMessageSubscription(subs []model.EventSubscription, name string) bool {
	for _, sub := range subs {
		if sub.IsMessage() && sub.EventName == name {
			return true
		}
	}
	return false
}
