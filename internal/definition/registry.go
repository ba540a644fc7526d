// Package definition loads catch point definitions and binds each one to its behavior.
package definition

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Eiffelllll/Activiti/internal/behavior"
	"github.com/Eiffelllll/Activiti/internal/expression"
	"github.com/Eiffelllll/Activiti/internal/model"
	"gopkg.in/yaml.v3"
)

type file struct {
	CatchEvents []catchEvent `yaml:"catch_events"`
}

type catchEvent struct {
	ActivityID string                  `yaml:"activity_id"`
	Kind       string                  `yaml:"kind"`
	Message    model.MessageDefinition `yaml:"message"`
	Outgoing   string                  `yaml:"outgoing"`
}

// Registry maps activity ids to their catch point behavior.
type Registry struct {
	defs      map[string]model.CatchEventDefinition
	behaviors map[string]behavior.Behavior
}

// expressionCacheSize bounds the compiled programs kept per process.
const expressionCacheSize = 512

// Open loads path with a fresh expression evaluator.
func Open(path string) (*Registry, error) {
	eval, err := expression.NewEvaluator(expressionCacheSize)
	if err != nil {
		return nil, err
	}
	return LoadFile(path, eval)
}

// LoadFile reads a YAML definitions file.
func LoadFile(path string, eval *expression.Evaluator) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions %s: %w", path, err)
	}
	return Load(raw, eval)
}

// Load parses raw YAML and builds every behavior up front.
func Load(raw []byte, eval *expression.Evaluator) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	r := &Registry{
		defs:      make(map[string]model.CatchEventDefinition, len(f.CatchEvents)),
		behaviors: make(map[string]behavior.Behavior, len(f.CatchEvents)),
	}
	for i, ce := range f.CatchEvents {
		id := strings.TrimSpace(ce.ActivityID)
		if id == "" {
			return nil, fmt.Errorf("catch_events[%d]: missing activity_id", i)
		}
		if _, dup := r.defs[id]; dup {
			return nil, fmt.Errorf("catch_events[%d]: duplicate activity_id %q", i, id)
		}
		kind, ok := model.ParseEventKind(ce.Kind)
		if !ok {
			return nil, fmt.Errorf("catch_events[%d]: unknown kind %q", i, ce.Kind)
		}

		def := model.CatchEventDefinition{
			ActivityID: id,
			Kind:       kind,
			Message:    ce.Message,
			Outgoing:   strings.TrimSpace(ce.Outgoing),
		}
		if kind == model.EventKindMessage && def.Message.Ref == "" && def.Message.Name == "" && def.Message.NameExpression == "" {
			return nil, fmt.Errorf("catch_events[%d]: message catch %q has no message", i, id)
		}

		b, err := behavior.New(def, eval)
		if err != nil {
			return nil, err
		}
		r.defs[id] = def
		r.behaviors[id] = b
	}
	return r, nil
}

// Behavior returns the behavior at activityID or model.ErrUnknownCatchPoint.
func (r *Registry) Behavior(activityID string) (behavior.Behavior, error) {
	b, ok := r.behaviors[activityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownCatchPoint, activityID)
	}
	return b, nil
}

func (r *Registry) Definition(activityID string) (model.CatchEventDefinition, bool) {
	d, ok := r.defs[activityID]
	return d, ok
}

func (r *Registry) Len() int { return len(r.defs) }

// ActivityIDs lists the defined catch points in name order.
func (r *Registry) ActivityIDs() []string {
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
