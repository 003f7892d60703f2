package chunktest

import (
	"fmt"
	"os"
)

// Type ids used by Standard.
const (
	TypeLong    int64 = 10
	TypeInt     int64 = 11
	TypeBoolean int64 = 12
	TypeDouble  int64 = 13
	TypeString  int64 = 14
	TypeSample  int64 = 20
)

// Field declares one member of a Type.
type Field struct {
	Name         string
	TypeID       int64
	ConstantPool bool
}

// Type declares one metadata type.
type Type struct {
	ID     int64
	Name   string
	Fields []Field
}

// Standard returns the primitive types plus a "Sample" event type with
// startTime, duration (both ticks) and a string message.
func Standard() []Type {
	return []Type{
		{ID: TypeLong, Name: "long"},
		{ID: TypeInt, Name: "int"},
		{ID: TypeBoolean, Name: "boolean"},
		{ID: TypeDouble, Name: "double"},
		{ID: TypeString, Name: "java.lang.String"},
		{ID: TypeSample, Name: "Sample", Fields: []Field{
			{Name: "startTime", TypeID: TypeLong},
			{Name: "duration", TypeID: TypeLong},
			{Name: "message", TypeID: TypeString},
		}},
	}
}

// Chunk accumulates the content of one chunk. Ticks are nanoseconds unless
// TicksPerSecond and StartTicks are changed.
type Chunk struct {
	Major          uint16
	Minor          uint16
	StartNanos     int64
	DurationNanos  int64
	StartTicks     int64
	TicksPerSecond int64
	Flags          uint32
	MetadataID     int64
	Types          []Type

	records []byte
}

// New returns a chunk spanning [startNanos, startNanos+durationNanos) with the
// Standard types and ticks equal to nanoseconds since the epoch.
func New(startNanos, durationNanos int64) *Chunk {
	return &Chunk{
		Major:          2,
		Minor:          0,
		StartNanos:     startNanos,
		DurationNanos:  durationNanos,
		StartTicks:     startNanos,
		TicksPerSecond: 1_000_000_000,
		MetadataID:     1,
		Types:          Standard(),
	}
}

// Record appends a raw record.
func (c *Chunk) Record(typeID int64, body []byte) *Chunk {
	c.records = AppendRecord(c.records, typeID, body)
	return c
}

// Event appends a record of typeID whose fields are encoded from values:
// int64, int32, int16 and uint16 as varints, string as UTF-8, nil as the null
// string, bool and byte as one byte, float32 and float64 as raw bits.
func (c *Chunk) Event(typeID int64, values ...any) *Chunk {
	var body []byte
	for _, v := range values {
		body = appendValue(body, v)
	}
	return c.Record(typeID, body)
}

// Sample appends a Sample event.
func (c *Chunk) Sample(startTicks, durationTicks int64, message string) *Chunk {
	return c.Event(TypeSample, startTicks, durationTicks, message)
}

func appendValue(b []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return AppendNull(b)
	case int64:
		return AppendLong(b, x)
	case int:
		return AppendLong(b, int64(x))
	case int32:
		return AppendLong(b, int64(x))
	case int16:
		return AppendLong(b, int64(x))
	case uint16:
		return AppendLong(b, int64(x))
	case string:
		return AppendString(b, x)
	case bool:
		if x {
			return append(b, 1)
		}
		return append(b, 0)
	case byte:
		return append(b, x)
	case float32:
		return AppendFloat(b, x)
	case float64:
		return AppendDouble(b, x)
	case []byte:
		return append(b, x...)
	default:
		panic(fmt.Sprintf("chunktest: unsupported value %T", v))
	}
}

func (c *Chunk) metadataRecord() []byte {
	var body []byte
	body = AppendLong(body, c.StartTicks)
	body = AppendLong(body, 0)
	body = AppendLong(body, c.MetadataID)
	body = AppendLong(body, int64(len(c.Types)))
	for _, t := range c.Types {
		body = AppendLong(body, t.ID)
		body = AppendString(body, t.Name)
		body = AppendLong(body, int64(len(t.Fields)))
		for _, f := range t.Fields {
			body = AppendString(body, f.Name)
			body = AppendLong(body, f.TypeID)
			if f.ConstantPool {
				body = append(body, 1)
			} else {
				body = append(body, 0)
			}
		}
	}
	return AppendRecord(nil, 0, body)
}

// Bytes lays out header, event records and the metadata record.
func (c *Chunk) Bytes() []byte {
	meta := c.metadataRecord()
	metaOffset := int64(68 + len(c.records))
	size := metaOffset + int64(len(meta))

	b := make([]byte, 0, size)
	b = append(b, 'F', 'L', 'R', 0)
	b = AppendRawShort(b, c.Major)
	b = AppendRawShort(b, c.Minor)
	b = AppendRawLong(b, size)
	b = AppendRawLong(b, 0)
	b = AppendRawLong(b, metaOffset)
	b = AppendRawLong(b, c.StartNanos)
	b = AppendRawLong(b, c.DurationNanos)
	b = AppendRawLong(b, c.StartTicks)
	b = AppendRawLong(b, c.TicksPerSecond)
	b = AppendRawInt(b, c.Flags)
	b = append(b, c.records...)
	return append(b, meta...)
}

// Concat joins chunks into the content of one recording file.
func Concat(chunks ...*Chunk) []byte {
	var b []byte
	for _, c := range chunks {
		b = append(b, c.Bytes()...)
	}
	return b
}

// WriteFile writes chunks to path.
func WriteFile(path string, chunks ...*Chunk) error {
	return os.WriteFile(path, Concat(chunks...), 0o644)
}
