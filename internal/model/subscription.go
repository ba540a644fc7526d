package model

import "time"

type EventType string

const (
	EventTypeMessage EventType = "message"
)

func (t EventType) String() string { return string(t) }

// EventSubscription is the persisted intent of an execution to receive a named event.
// Rows are never updated after creation except for Configuration, which is set
// right after insert when a correlation key resolves.
type EventSubscription struct {
	ID                string    `db:"id"                json:"id"`
	EventType         EventType `db:"event_type"        json:"event_type"`
	EventName         string    `db:"event_name"        json:"event_name"`
	Configuration     *string   `db:"configuration"     json:"configuration,omitempty"` // correlation key, nil = absent
	ExecutionID       string    `db:"execution_id"      json:"execution_id"`
	ProcessInstanceID string    `db:"proc_inst_id"      json:"process_instance_id"`
	ActivityID        string    `db:"activity_id"       json:"activity_id"`
	CreatedAt         time.Time `db:"created_at"        json:"created_at"`
}

func (s EventSubscription) IsMessage() bool { return s.EventType == EventTypeMessage }
