package expression

import (
	"errors"

	"github.com/Eiffelllll/Activiti/internal/model"
)

// EvaluationError is the error type returned for unresolvable expressions.
type EvaluationError = model.EvaluationError

var errEmptyName = errors.New("message name resolved to an empty value")

// Resolver derives the message name and optional correlation key for an execution.
type Resolver interface {
	MessageName(exec *model.Execution) (string, error)
	// CorrelationKey returns nil when no key applies; that is not an error.
	CorrelationKey(exec *model.Execution) (*string, error)
}

// MessageResolver resolves against a static message definition.
type MessageResolver struct {
	def  model.MessageDefinition
	eval *Evaluator
}

var _ Resolver = (*MessageResolver)(nil)

func NewMessageResolver(def model.MessageDefinition, eval *Evaluator) *MessageResolver {
	return &MessageResolver{def: def, eval: eval}
}

// Definition returns the message definition this resolver reads.
func (r *MessageResolver) Definition() model.MessageDefinition { return r.def }

// MessageName evaluates name_expression, falling back to the literal name and then the ref.
func (r *MessageResolver) MessageName(exec *model.Execution) (string, error) {
	text := r.def.NameExpression
	if text == "" {
		text = r.def.Name
	}
	if text == "" {
		text = r.def.Ref
	}
	if text == "" {
		return "", &EvaluationError{Err: errEmptyName}
	}

	name, ok, err := r.eval.Eval(text, exec.Variables)
	if err != nil {
		return "", err
	}
	if !ok || name == "" {
		return "", &EvaluationError{Expression: text, Err: errEmptyName}
	}
	return name, nil
}

func (r *MessageResolver) CorrelationKey(exec *model.Execution) (*string, error) {
	if r.def.CorrelationKey == "" {
		return nil, nil
	}
	key, ok, err := r.eval.Eval(r.def.CorrelationKey, exec.Variables)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &key, nil
}
