package model

import "time"

const EventMessageWaiting = "ACTIVITY_MESSAGE_WAITING"

// MessageWaitingEvent is published (via the outbox) when an execution starts
// waiting for a message.
type MessageWaitingEvent struct {
	Type              string    `json:"type"`
	ExecutionID       string    `json:"execution_id"`
	ProcessInstanceID string    `json:"process_instance_id"`
	ActivityID        string    `json:"activity_id"`
	MessageName       string    `json:"message_name"`
	CorrelationKey    *string   `json:"correlation_key"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewMessageWaitingEvent builds the notification for exec waiting on messageName.
func NewMessageWaitingEvent(exec *Execution, messageName string, correlationKey *string) MessageWaitingEvent {
	return MessageWaitingEvent{
		Type:              EventMessageWaiting,
		ExecutionID:       exec.ID,
		ProcessInstanceID: exec.ProcessInstanceID,
		ActivityID:        exec.ActivityID,
		MessageName:       messageName,
		CorrelationKey:    correlationKey,
		Timestamp:         time.Now().UTC(),
	}
}

// DeliveredMessage is consumed from Kafka by the correlator worker.
// ExecutionID set => deliver to that execution; otherwise correlate by name/key.
type DeliveredMessage struct {
	MessageName    string         `json:"message_name"`
	CorrelationKey *string        `json:"correlation_key,omitempty"`
	ExecutionID    string         `json:"execution_id,omitempty"`
	Variables      map[string]any `json:"variables,omitempty"`
}
