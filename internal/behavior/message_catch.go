package behavior

import (
	"context"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/expression"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/model"
	"go.uber.org/zap"
)

// MessageCatch parks an execution until a named message arrives.
//
// States: Idle -> Waiting (Enter) -> Triggered (Trigger) | Cancelled
// (EventCancelledByEventGateway). Waiting exists only as subscription rows.
type MessageCatch struct {
	def      model.CatchEventDefinition
	resolver expression.Resolver
}

var _ Behavior = (*MessageCatch)(nil)

func NewMessageCatch(def model.CatchEventDefinition, resolver expression.Resolver) *MessageCatch {
	return &MessageCatch{def: def, resolver: resolver}
}

func (b *MessageCatch) Kind() model.EventKind { return model.EventKindMessage }

// Definition returns the static message definition of the catch point.
func (b *MessageCatch) Definition() model.CatchEventDefinition { return b.def }

// Resolver returns the resolver computing message name and correlation key.
func (b *MessageCatch) Resolver() expression.Resolver { return b.resolver }

func (b *MessageCatch) Enter(ctx context.Context, cc *command.Context, exec *model.Execution) error {
	name, err := b.resolver.MessageName(exec)
	if err != nil {
		return err
	}

	sub, err := cc.Subscriptions.InsertMessage(ctx, cc.Tx, name, exec)
	if err != nil {
		return err
	}

	key, err := b.resolver.CorrelationKey(exec)
	if err != nil {
		return err
	}
	if key != nil {
		if err := cc.Subscriptions.SetConfiguration(ctx, cc.Tx, sub, *key); err != nil {
			return err
		}
	}

	if cc.EventsEnabled() {
		if err := cc.Events.Dispatch(ctx, cc.Tx, model.NewMessageWaitingEvent(exec, name, key)); err != nil {
			return err
		}
	}

	logger.Log.Debug("message subscription created",
		zap.String("execution_id", exec.ID),
		zap.String("subscription_id", sub.ID),
		zap.String("message_name", name),
		zap.Stringp("correlation_key", key),
	)
	return nil
}

// Trigger removes the subscription and continues past the catch point. The
// trigger arguments are not used for matching; see deleteSubscriptions.
func (b *MessageCatch) Trigger(ctx context.Context, cc *command.Context, exec *model.Execution, triggerName string, triggerData any) error {
	if err := b.deleteSubscriptions(ctx, cc, exec); err != nil {
		return err
	}
	return cc.Executions.Leave(ctx, cc.Tx, exec, b.def.Outgoing)
}

func (b *MessageCatch) EventCancelledByEventGateway(ctx context.Context, cc *command.Context, exec *model.Execution) error {
	if err := b.deleteSubscriptions(ctx, cc, exec); err != nil {
		return err
	}
	return cc.Executions.DeleteExecutionAndRelatedData(ctx, cc.Tx, exec, model.DeleteReasonEventBasedGatewayCancel, false)
}

// deleteSubscriptions deletes every message subscription of exec named like the
// freshly resolved message name. Matching is by name only: the stored
// correlation key is not compared.
// TODO: compare the correlation key once multi-subscriber correlation semantics are settled.
func (b *MessageCatch) deleteSubscriptions(ctx context.Context, cc *command.Context, exec *model.Execution) error {
	name, err := b.resolver.MessageName(exec)
	if err != nil {
		return err
	}

	subs, err := cc.Executions.EventSubscriptions(ctx, cc.Tx, exec)
	if err != nil {
		return err
	}
	for i := range subs {
		sub := &subs[i]
		if !sub.IsMessage() || sub.EventName != name {
			continue
		}
		if err := cc.Subscriptions.Delete(ctx, cc.Tx, sub); err != nil {
			return err
		}
	}
	return nil
}
