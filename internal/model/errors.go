package model

import (
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound  = errors.New("event subscription not found")
	ErrExecutionNotFound     = errors.New("execution not found")
	ErrNoMessageSubscription = errors.New("execution has no subscription to message")
	ErrUnknownCatchPoint     = errors.New("no catch event defined for activity")
	ErrAlreadyWaiting        = errors.New("execution is already waiting at its catch point")
)

// EvaluationError reports that a message name or correlation key could not be computed.
type EvaluationError struct {
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// StorageError reports a failed read or write against the subscription store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("subscription store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ExecutionStateError reports that the execution could not be advanced or deleted.
type ExecutionStateError struct {
	ExecutionID string
	Op          string
	Err         error
}

func (e *ExecutionStateError) Error() string {
	return fmt.Sprintf("execution %s %s: %v", e.ExecutionID, e.Op, e.Err)
}

func (e *ExecutionStateError) Unwrap() error { return e.Err }
