package model

import "strings"

// EventKind tags the event definition attached to a catch point.
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindTimer   EventKind = "timer"
	EventKindSignal  EventKind = "signal"
)

func (k EventKind) String() string { return string(k) }

// ParseEventKind normalizes input; empty => message.
func ParseEventKind(s string) (EventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "message":
		return EventKindMessage, true
	case "timer":
		return EventKindTimer, true
	case "signal":
		return EventKindSignal, true
	default:
		return EventKindMessage, false
	}
}

// MessageDefinition is the static message event definition of a catch point.
type MessageDefinition struct {
	Ref            string `yaml:"ref"             json:"ref"`
	Name           string `yaml:"name"            json:"name"`
	NameExpression string `yaml:"name_expression" json:"name_expression,omitempty"`
	CorrelationKey string `yaml:"correlation_key" json:"correlation_key,omitempty"`
}

// CatchEventDefinition describes an intermediate catch event in a process model.
type CatchEventDefinition struct {
	ActivityID string            `yaml:"activity_id" json:"activity_id"`
	Kind       EventKind         `yaml:"kind"        json:"kind"`
	Message    MessageDefinition `yaml:"message"     json:"message"`
	Outgoing   string            `yaml:"outgoing"    json:"outgoing"` // empty => execution ends on leave
}
