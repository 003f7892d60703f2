package parser

import (
	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/metadata"
)

// Factory builds parsers for the types of one chunk. Composite parsers are
// memoized per descriptor; a composite is registered before its members are
// built so self-referencing types terminate.
type Factory struct {
	composites map[*metadata.TypeDescriptor]*Composite
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{composites: make(map[*metadata.TypeDescriptor]*Composite)}
}

// Parser returns the parser for values of t stored inline.
func (f *Factory) Parser(t *metadata.TypeDescriptor) (Parser, error) {
	if t == nil {
		return nil, errors.Wrap(chunk.ErrUnknownType, "nil descriptor")
	}
	if t.Primitive {
		k, ok := KindOf(t.Name)
		if !ok {
			return nil, errors.Wrapf(chunk.ErrUnknownType, "primitive %q", t.Name)
		}
		return NewPrimitive(k), nil
	}
	return f.Composite(t)
}

// Composite returns the memoized composite for t.
func (f *Factory) Composite(t *metadata.TypeDescriptor) (*Composite, error) {
	if c, ok := f.composites[t]; ok {
		return c, nil
	}
	c := &Composite{Members: make([]Parser, len(t.Fields))}
	f.composites[t] = c
	for i, field := range t.Fields {
		p, err := f.fieldParser(field)
		if err != nil {
			delete(f.composites, t)
			return nil, errors.Wrapf(err, "%s.%s", t.Name, field.Name)
		}
		c.Members[i] = p
	}
	return c, nil
}

func (f *Factory) fieldParser(field *metadata.FieldDescriptor) (Parser, error) {
	if field.Type == nil {
		return nil, errors.Wrap(chunk.ErrUnknownType, "unresolved field type")
	}
	if field.ConstantPool {
		return NewReference(field.Type.ID), nil
	}
	return f.Parser(field.Type)
}
