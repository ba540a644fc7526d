package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ExecutionState string

const (
	ExecutionActive  ExecutionState = "active"
	ExecutionWaiting ExecutionState = "waiting"
)

func (s ExecutionState) String() string { return string(s) }

// Execution is a live branch of a process instance positioned at ActivityID.
type Execution struct {
	ID                string         `db:"id"           json:"id"`
	ParentID          *string        `db:"parent_id"    json:"parent_id,omitempty"`
	ProcessInstanceID string         `db:"proc_inst_id" json:"process_instance_id"`
	ActivityID        string         `db:"activity_id"  json:"activity_id"`
	State             ExecutionState `db:"state"        json:"state"`
	Variables         Variables      `db:"variables"    json:"variables"`
	CreatedAt         time.Time      `db:"created_at"   json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"   json:"updated_at"`
}

// Variables are execution-scoped process variables stored as a JSON object.
type Variables map[string]any

func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func (v *Variables) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v = Variables{}
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("variables: unsupported scan type %T", src)
	}
	out := Variables{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("variables: %w", err)
		}
	}
	*v = out
	return nil
}

// Merge copies other into v, overwriting existing names.
func (v Variables) Merge(other map[string]any) Variables {
	out := make(Variables, len(v)+len(other))
	for k, val := range v {
		out[k] = val
	}
	for k, val := range other {
		out[k] = val
	}
	return out
}

type DeleteReason string

const (
	DeleteReasonEventBasedGatewayCancel DeleteReason = "event-based-gateway-cancel"
)

func (r DeleteReason) String() string { return string(r) }
