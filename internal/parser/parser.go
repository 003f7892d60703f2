// Package parser decodes event records of a chunk into Go values.
//
// A Parser reads one value from a chunk.Reader. Primitive parsers handle the
// fixed set of scalar kinds, Reference parsers read constant-pool indexes, and
// Composite parsers read their members in declaration order. Factory builds the
// parser tree for a metadata type and EventParser walks the records of a chunk.
package parser

import (
	"fmt"

	"github.com/rzbill/flr/internal/chunk"
)

// Parser reads a single value.
type Parser interface {
	// Parse reads and returns the value.
	Parse(r *chunk.Reader) (any, error)
	// Skip advances past the value.
	Skip(r *chunk.Reader) error
	// ParseReferences returns only the constant-pool references within the
	// value, or nil when it holds none.
	ParseReferences(r *chunk.Reader) (any, error)
}

// Kind enumerates the primitive encodings.
type Kind int

const (
	KindLong Kind = iota
	KindInt
	KindShort
	KindChar
	KindByte
	KindBoolean
	KindFloat
	KindDouble
	KindString
)

var kindNames = map[string]Kind{
	"long":             KindLong,
	"int":              KindInt,
	"short":            KindShort,
	"char":             KindChar,
	"byte":             KindByte,
	"boolean":          KindBoolean,
	"float":            KindFloat,
	"double":           KindDouble,
	"java.lang.String": KindString,
}

// KindOf maps a primitive type name to its kind.
func KindOf(name string) (Kind, bool) {
	k, ok := kindNames[name]
	return k, ok
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Primitive parses a scalar. Strings decode to string, or nil for the null
// string.
type Primitive struct {
	kind Kind
}

// NewPrimitive returns the parser for k.
func NewPrimitive(k Kind) *Primitive { return &Primitive{kind: k} }

// Kind returns the scalar kind.
func (p *Primitive) Kind() Kind { return p.kind }

func (p *Primitive) Parse(r *chunk.Reader) (any, error) {
	switch p.kind {
	case KindLong:
		return r.ReadLong()
	case KindInt:
		return r.ReadInt()
	case KindShort:
		return r.ReadShort()
	case KindChar:
		return r.ReadChar()
	case KindByte:
		return r.ReadByte()
	case KindBoolean:
		return r.ReadBoolean()
	case KindFloat:
		return r.ReadFloat()
	case KindDouble:
		return r.ReadDouble()
	case KindString:
		s, err := r.ReadEncodedString()
		if err != nil || s == nil {
			return nil, err
		}
		return *s, nil
	default:
		return nil, fmt.Errorf("parser: unknown kind %d", p.kind)
	}
}

func (p *Primitive) Skip(r *chunk.Reader) error {
	switch p.kind {
	case KindByte, KindBoolean:
		return r.Skip(1)
	case KindFloat:
		return r.Skip(4)
	case KindDouble:
		return r.Skip(8)
	case KindString:
		return r.SkipEncodedString()
	default:
		_, err := r.ReadLong()
		return err
	}
}

func (p *Primitive) ParseReferences(r *chunk.Reader) (any, error) {
	return nil, p.Skip(r)
}

// Reference is a constant-pool entry of a type.
type Reference struct {
	TypeID int64
	Index  int64
}

func (r Reference) String() string { return fmt.Sprintf("ref(%d:%d)", r.TypeID, r.Index) }

// ReferenceParser reads a constant-pool index of a fixed type.
type ReferenceParser struct {
	typeID int64
}

// NewReference returns the parser for references into the pool of typeID.
func NewReference(typeID int64) *ReferenceParser { return &ReferenceParser{typeID: typeID} }

func (p *ReferenceParser) Parse(r *chunk.Reader) (any, error) {
	idx, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return Reference{TypeID: p.typeID, Index: idx}, nil
}

func (p *ReferenceParser) Skip(r *chunk.Reader) error {
	_, err := r.ReadLong()
	return err
}

func (p *ReferenceParser) ParseReferences(r *chunk.Reader) (any, error) {
	return p.Parse(r)
}
