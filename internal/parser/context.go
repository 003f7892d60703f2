package parser

import (
	"sync"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/metadata"
)

// ObjectContext describes where a value sits: the event type it belongs to,
// the fields of the enclosing object and the time converter of its chunk.
//
// The contexts of nested fields are built together on the first call to
// Instance and shared by every context derived from the same root.
type ObjectContext struct {
	eventType *metadata.TypeDescriptor
	fields    []*metadata.FieldDescriptor
	converter chunk.TimeConverter
	lookup    *contextLookup
}

type contextLookup struct {
	once sync.Once
	m    map[*metadata.FieldDescriptor]*ObjectContext
}

// NewObjectContext returns the root context for fields of eventType.
func NewObjectContext(eventType *metadata.TypeDescriptor, fields []*metadata.FieldDescriptor, converter chunk.TimeConverter) *ObjectContext {
	return &ObjectContext{
		eventType: eventType,
		fields:    fields,
		converter: converter,
		lookup:    &contextLookup{},
	}
}

// EventType returns the event type the context was created for.
func (c *ObjectContext) EventType() *metadata.TypeDescriptor { return c.eventType }

// Fields returns the fields of the object the context describes.
func (c *ObjectContext) Fields() []*metadata.FieldDescriptor { return c.fields }

// Instance returns the context for the object held in field. Every call with
// the same field returns the same context, and a field reached through several
// parents maps to a single context. Fields not reachable from the root return
// nil.
func (c *ObjectContext) Instance(field *metadata.FieldDescriptor) *ObjectContext {
	c.lookup.once.Do(func() { c.lookup.m = c.build() })
	return c.lookup.m[field]
}

func (c *ObjectContext) build() map[*metadata.FieldDescriptor]*ObjectContext {
	m := make(map[*metadata.FieldDescriptor]*ObjectContext)
	queue := append([]*metadata.FieldDescriptor(nil), c.fields...)
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if _, seen := m[f]; seen {
			continue
		}
		var children []*metadata.FieldDescriptor
		if f.Type != nil {
			children = f.Type.Fields
		}
		m[f] = &ObjectContext{
			eventType: c.eventType,
			fields:    children,
			converter: c.converter,
			lookup:    c.lookup,
		}
		queue = append(queue, children...)
	}
	return m
}

// ConvertTimestamp converts chunk ticks to nanoseconds since the epoch.
func (c *ObjectContext) ConvertTimestamp(ticks int64) int64 {
	return c.converter.ConvertTimestamp(ticks)
}

// ConvertTimespan converts a tick delta to nanoseconds.
func (c *ObjectContext) ConvertTimespan(ticks int64) int64 {
	return c.converter.ConvertTimespan(ticks)
}
