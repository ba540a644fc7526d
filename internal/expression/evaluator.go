// Package expression resolves message names and correlation keys from
// execution variables. Text may embed ${...} segments holding CEL expressions
// over the variables, e.g. "order-${orderId}" or "${customer.region}".
package expression

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 512

var (
	segmentRe = regexp.MustCompile(`\$\{([^}]*)\}`)
	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	errNullSegment = errors.New("expression inside template evaluated to null")
)

// CEL keywords cannot be declared as variables.
var reserved = map[string]struct{}{
	"true": {}, "false": {}, "null": {}, "in": {}, "as": {}, "break": {}, "const": {},
	"continue": {}, "else": {}, "for": {}, "function": {}, "if": {}, "import": {},
	"let": {}, "loop": {}, "package": {}, "namespace": {}, "return": {}, "var": {},
	"void": {}, "while": {},
}

// Evaluator compiles and runs CEL programs, caching them per expression and
// variable set.
type Evaluator struct {
	cache *lru.Cache[string, cel.Program]
}

func NewEvaluator(cacheSize int) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	c, err := lru.New[string, cel.Program](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Evaluator{cache: c}, nil
}

// Eval renders text against vars. The bool is false when text is a single
// ${...} segment that evaluated to null.
func (e *Evaluator) Eval(text string, vars map[string]any) (string, bool, error) {
	matches := segmentRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, true, nil
	}

	activation := declarable(vars)

	// whole text is one expression: null means absent
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(text) {
		out, err := e.run(text[matches[0][2]:matches[0][3]], activation)
		if err != nil {
			return "", false, &EvaluationError{Expression: text, Err: err}
		}
		s, ok := stringify(out)
		return s, ok, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(text[last:m[0]])
		out, err := e.run(text[m[2]:m[3]], activation)
		if err != nil {
			return "", false, &EvaluationError{Expression: text, Err: err}
		}
		s, ok := stringify(out)
		if !ok {
			return "", false, &EvaluationError{Expression: text, Err: errNullSegment}
		}
		sb.WriteString(s)
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String(), true, nil
}

func (e *Evaluator) run(expr string, activation map[string]any) (ref.Val, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty expression")
	}

	names := make([]string, 0, len(activation))
	for k := range activation {
		names = append(names, k)
	}
	sort.Strings(names)
	key := expr + "\x00" + strings.Join(names, ",")

	prg, ok := e.cache.Get(key)
	if !ok {
		var err error
		prg, err = compile(expr, names)
		if err != nil {
			return nil, err
		}
		e.cache.Add(key, prg)
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func compile(expr string, names []string) (cel.Program, error) {
	opts := make([]cel.EnvOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	return env.Program(ast)
}

func declarable(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if _, bad := reserved[k]; bad || !identRe.MatchString(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func stringify(v ref.Val) (string, bool) {
	if v == nil || v.Type() == types.NullType {
		return "", false
	}
	switch x := v.Value().(type) {
	case string:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}
