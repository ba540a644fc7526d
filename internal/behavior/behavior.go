// Package behavior implements catch point semantics. Each event kind has its
// own Behavior, chosen once by New when the catch point definition is loaded.
package behavior

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/expression"
	"github.com/Eiffelllll/Activiti/internal/model"
)

var ErrUnsupportedEventKind = errors.New("unsupported catch event kind")

// Behavior is what the engine calls on a catch point.
type Behavior interface {
	Kind() model.EventKind
	// Enter runs when a token reaches the catch point.
	Enter(ctx context.Context, cc *command.Context, exec *model.Execution) error
	// Trigger runs when the awaited event arrives for exec.
	Trigger(ctx context.Context, cc *command.Context, exec *model.Execution, triggerName string, triggerData any) error
	// EventCancelledByEventGateway runs when a sibling branch of an
	// event-based gateway fired first.
	EventCancelledByEventGateway(ctx context.Context, cc *command.Context, exec *model.Execution) error
}

// New builds the behavior for def.
func New(def model.CatchEventDefinition, eval *expression.Evaluator) (Behavior, error) {
	switch def.Kind {
	case model.EventKindMessage:
		return NewMessageCatch(def, expression.NewMessageResolver(def.Message, eval)), nil
	default:
		return nil, fmt.Errorf("%w: %q at %s", ErrUnsupportedEventKind, def.Kind, def.ActivityID)
	}
}
