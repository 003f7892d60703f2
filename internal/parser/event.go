package parser

import (
	"time"

	"github.com/rzbill/flr/internal/metadata"
)

// Event is one decoded event record. Values holds one entry per field of
// Type, as returned by the type's composite parser.
type Event struct {
	Type       *metadata.TypeDescriptor
	StartNanos int64
	EndNanos   int64
	Values     []any

	ctx *ObjectContext
}

// Name returns the event type name.
func (e *Event) Name() string { return e.Type.Name }

// StartTime returns the event start.
func (e *Event) StartTime() time.Time { return time.Unix(0, e.StartNanos) }

// EndTime returns the event end.
func (e *Event) EndTime() time.Time { return time.Unix(0, e.EndNanos) }

// Duration returns EndTime - StartTime.
func (e *Event) Duration() time.Duration { return time.Duration(e.EndNanos - e.StartNanos) }

// Context returns the object context of the event's fields.
func (e *Event) Context() *ObjectContext { return e.ctx }

// Value returns the field called name.
func (e *Event) Value(name string) (any, bool) {
	i := e.Type.FieldIndex(name)
	if i < 0 || i >= len(e.Values) {
		return nil, false
	}
	return e.Values[i], true
}

// Fields returns the event values keyed by field name. Inline objects become
// nested maps; constant-pool references stay Reference values.
func (e *Event) Fields() map[string]any {
	return fieldMap(e.Type, e.Values)
}

func fieldMap(t *metadata.TypeDescriptor, values []any) map[string]any {
	m := make(map[string]any, len(t.Fields))
	for i, f := range t.Fields {
		if i >= len(values) {
			break
		}
		v := values[i]
		if nested, ok := v.([]any); ok && !f.ConstantPool && f.Type != nil && !f.Type.Primitive {
			v = fieldMap(f.Type, nested)
		}
		m[f.Name] = v
	}
	return m
}

// Copy returns an event that does not share storage with e. Use it to keep an
// event delivered from a stream with reuse enabled.
func (e *Event) Copy() *Event {
	c := *e
	c.Values = append([]any(nil), e.Values...)
	return &c
}
