package consumer

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/parser"
)

// Filter is a compiled CEL predicate over events. The expression sees name,
// start_ns, end_ns, duration_ns and fields (a map of the event's values).
// The zero Filter matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression matches every event.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("start_ns", cel.IntType),
		cel.Variable("end_ns", cel.IntType),
		cel.Variable("duration_ns", cel.IntType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, errors.Wrap(iss.Err(), "filter")
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return Filter{}, errors.Errorf("filter: expression must be boolean, got %s", t)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, errors.Wrap(err, "filter")
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter. Evaluation errors do not match.
func (f Filter) Match(e *parser.Event) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"name":        e.Name(),
		"start_ns":    e.StartNanos,
		"end_ns":      e.EndNanos,
		"duration_ns": e.EndNanos - e.StartNanos,
		"fields":      celFields(e.Fields()),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Wrap returns an event callback that calls fn only for matching events.
func (f Filter) Wrap(fn func(*parser.Event)) func(*parser.Event) {
	if !f.enabled {
		return fn
	}
	return func(e *parser.Event) {
		if f.Match(e) {
			fn(e)
		}
	}
}

// celFields widens values to the types CEL's default adapter understands.
func celFields(m map[string]any) map[string]any {
	for k, v := range m {
		switch x := v.(type) {
		case int32:
			m[k] = int64(x)
		case int16:
			m[k] = int64(x)
		case uint16:
			m[k] = int64(x)
		case byte:
			m[k] = int64(x)
		case float32:
			m[k] = float64(x)
		case parser.Reference:
			m[k] = x.Index
		case map[string]any:
			m[k] = celFields(x)
		}
	}
	return m
}
