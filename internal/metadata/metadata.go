// Package metadata holds the type descriptors a chunk declares and decodes
// them from the chunk's metadata record.
package metadata

import (
	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/chunk"
)

var primitiveNames = map[string]bool{
	"long":             true,
	"int":              true,
	"short":            true,
	"char":             true,
	"byte":             true,
	"boolean":          true,
	"float":            true,
	"double":           true,
	"java.lang.String": true,
}

// TypeDescriptor describes one declared type. Field types point at other
// descriptors of the same Metadata, so the graph may share nodes and cycle.
type TypeDescriptor struct {
	ID        int64
	Name      string
	Fields    []*FieldDescriptor
	Primitive bool
}

// Field returns the field called name, or nil.
func (t *TypeDescriptor) Field(name string) *FieldDescriptor {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldIndex returns the position of the field called name, or -1.
func (t *TypeDescriptor) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// FieldDescriptor describes one member of a type.
type FieldDescriptor struct {
	Name string
	Type *TypeDescriptor
	// ConstantPool marks a field stored as an index into the constant pool.
	ConstantPool bool
}

// Metadata is the decoded type table of one chunk.
type Metadata struct {
	ID    int64
	Types []*TypeDescriptor

	byID   map[int64]*TypeDescriptor
	byName map[string]*TypeDescriptor
}

// Type looks a descriptor up by id.
func (m *Metadata) Type(id int64) (*TypeDescriptor, bool) {
	t, ok := m.byID[id]
	return t, ok
}

// TypeByName looks a descriptor up by name.
func (m *Metadata) TypeByName(name string) (*TypeDescriptor, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Decoder implements chunk.MetadataDecoder and keeps the last decoded table.
type Decoder struct {
	Metadata *Metadata
}

var _ chunk.MetadataDecoder = (*Decoder)(nil)

// Read decodes the metadata record of h.
func Read(h *chunk.Header) (*Metadata, error) {
	var d Decoder
	if err := h.ReadMetadata(&d); err != nil {
		return nil, err
	}
	return d.Metadata, nil
}

type pendingField struct {
	field  *FieldDescriptor
	typeID int64
}

// DecodeMetadata reads the type table following the metadata id.
func (d *Decoder) DecodeMetadata(r *chunk.Reader, metadataID int64) error {
	count, err := r.ReadInt()
	if err != nil {
		return err
	}
	if err := checkCount(r, "type", count); err != nil {
		return err
	}
	md := &Metadata{
		ID:     metadataID,
		byID:   make(map[int64]*TypeDescriptor, count),
		byName: make(map[string]*TypeDescriptor, count),
	}
	var pending []pendingField
	for i := int32(0); i < count; i++ {
		t, fields, err := readType(r)
		if err != nil {
			return errors.Wrapf(err, "type %d of %d", i, count)
		}
		md.Types = append(md.Types, t)
		md.byID[t.ID] = t
		md.byName[t.Name] = t
		pending = append(pending, fields...)
	}
	for _, p := range pending {
		t, ok := md.byID[p.typeID]
		if !ok {
			return errors.Wrapf(chunk.ErrUnknownType, "field %q refers to type %d", p.field.Name, p.typeID)
		}
		p.field.Type = t
	}
	d.Metadata = md
	return nil
}

// checkCount bounds a wire count by the bytes left in the reader. Every type
// and field occupies at least one byte.
func checkCount(r *chunk.Reader, what string, n int32) error {
	if n < 0 {
		return errors.Wrapf(chunk.ErrBadRecordSize, "negative %s count %d", what, n)
	}
	if left := r.Size() - r.Position(); int64(n) > left {
		return errors.Wrapf(chunk.ErrBadRecordSize, "%s count %d exceeds %d remaining bytes", what, n, left)
	}
	return nil
}

func readType(r *chunk.Reader) (*TypeDescriptor, []pendingField, error) {
	id, err := r.ReadLong()
	if err != nil {
		return nil, nil, err
	}
	name, err := r.ReadEncodedString()
	if err != nil {
		return nil, nil, err
	}
	n, err := r.ReadInt()
	if err != nil {
		return nil, nil, err
	}
	if err := checkCount(r, "field", n); err != nil {
		return nil, nil, err
	}
	t := &TypeDescriptor{ID: id}
	if name != nil {
		t.Name = *name
	}
	pending := make([]pendingField, 0, n)
	for j := int32(0); j < n; j++ {
		fname, err := r.ReadEncodedString()
		if err != nil {
			return nil, nil, err
		}
		typeID, err := r.ReadLong()
		if err != nil {
			return nil, nil, err
		}
		cp, err := r.ReadByte()
		if err != nil {
			return nil, nil, err
		}
		f := &FieldDescriptor{ConstantPool: cp != 0}
		if fname != nil {
			f.Name = *fname
		}
		t.Fields = append(t.Fields, f)
		pending = append(pending, pendingField{field: f, typeID: typeID})
	}
	t.Primitive = len(t.Fields) == 0 && primitiveNames[t.Name]
	return t, pending, nil
}
