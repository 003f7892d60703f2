package parser

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/chunk/chunktest"
	"github.com/rzbill/flr/internal/metadata"
)

func openChunk(t *testing.T, c *chunktest.Chunk) *EventParser {
	t.Helper()
	b := c.Bytes()
	r := chunk.NewReader(bytes.NewReader(b), int64(len(b)), 32)
	h, err := chunk.ReadHeader(r, 0, 0)
	require.NoError(t, err)
	md, err := metadata.Read(h)
	require.NoError(t, err)
	return NewEventParser(h, md)
}

func readAll(t *testing.T, p *EventParser) []*Event {
	t.Helper()
	var out []*Event
	for {
		e, err := p.ReadEvent()
		require.NoError(t, err)
		if e == nil {
			return out
		}
		out = append(out, e)
	}
}

func TestReadEvents(t *testing.T) {
	p := openChunk(t, chunktest.New(0, 100).
		Sample(10, 5, "first").
		Sample(20, 0, "second"))

	events := readAll(t, p)
	require.Len(t, events, 2)
	e := events[0]
	assert.Equal(t, "Sample", e.Name())
	assert.Equal(t, int64(10), e.StartNanos)
	assert.Equal(t, int64(15), e.EndNanos)
	assert.Equal(t, int64(5), e.Duration().Nanoseconds())
	msg, ok := e.Value("message")
	require.True(t, ok)
	assert.Equal(t, "first", msg)
	_, ok = e.Value("nope")
	assert.False(t, ok)
	assert.Equal(t, map[string]any{"startTime": int64(10), "duration": int64(5), "message": "first"}, e.Fields())
	require.NotNil(t, e.Context())
	assert.Equal(t, e.Type, e.Context().EventType())

	assert.Equal(t, int64(20), events[1].EndNanos)
	assert.Equal(t, p.Header().End, p.Position())
}

func TestReadEventsSkipsReservedRecords(t *testing.T) {
	p := openChunk(t, chunktest.New(0, 100).
		Record(chunk.RecordConstantPool, []byte{1, 2, 3}).
		Sample(10, 1, "a"))
	events := readAll(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].EndNanos)
}

func TestReadEventsFilterWindow(t *testing.T) {
	c := chunktest.New(0, 100)
	for _, end := range []int64{5, 9, 10, 15, 19, 20, 25} {
		c.Sample(end-1, 1, "x")
	}
	p := openChunk(t, c)
	p.SetFilter(10, 20)
	var ends []int64
	for _, e := range readAll(t, p) {
		ends = append(ends, e.EndNanos)
	}
	assert.Equal(t, []int64{10, 15, 19}, ends)
}

func TestReadEventsReuse(t *testing.T) {
	p := openChunk(t, chunktest.New(0, 100).Sample(1, 1, "a").Sample(2, 1, "b"))
	p.SetReuse(true)
	first, err := p.ReadEvent()
	require.NoError(t, err)
	kept := first.Copy()
	second, err := p.ReadEvent()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(3), second.EndNanos)
	assert.Equal(t, int64(2), kept.EndNanos)
}

func TestReadEventsNestedAndReferences(t *testing.T) {
	c := chunktest.New(0, 100)
	c.Types = append(c.Types,
		chunktest.Type{ID: 30, Name: "Frame", Fields: []chunktest.Field{
			{Name: "line", TypeID: chunktest.TypeInt},
			{Name: "method", TypeID: chunktest.TypeString, ConstantPool: true},
		}},
		chunktest.Type{ID: 31, Name: "Alloc", Fields: []chunktest.Field{
			{Name: "frame", TypeID: 30},
			{Name: "startTime", TypeID: chunktest.TypeLong},
			{Name: "size", TypeID: chunktest.TypeLong},
		}},
	)
	c.Event(31, int32(12), int64(4), int64(50), int64(4096))
	p := openChunk(t, c)

	events := readAll(t, p)
	require.Len(t, events, 1)
	e := events[0]
	// No duration field: the event is instantaneous.
	assert.Equal(t, int64(50), e.StartNanos)
	assert.Equal(t, int64(50), e.EndNanos)
	assert.Equal(t, map[string]any{
		"frame":     map[string]any{"line": int32(12), "method": Reference{TypeID: chunktest.TypeString, Index: 4}},
		"startTime": int64(50),
		"size":      int64(4096),
	}, e.Fields())

	frame := e.Type.Field("frame")
	ctx := e.Context().Instance(frame)
	require.NotNil(t, ctx)
	assert.Len(t, ctx.Fields(), 2)
}

func TestReadEventsUntimedUsesChunkStart(t *testing.T) {
	c := chunktest.New(1_000, 100)
	c.Types = append(c.Types, chunktest.Type{ID: 32, Name: "Marker", Fields: []chunktest.Field{
		{Name: "id", TypeID: chunktest.TypeLong},
	}})
	c.Event(32, int64(1))
	events := readAll(t, openChunk(t, c))
	require.Len(t, events, 1)
	assert.Equal(t, int64(1_000), events[0].EndNanos)
}

func TestReadEventsUnknownType(t *testing.T) {
	p := openChunk(t, chunktest.New(0, 100).Event(77, int64(1)))
	_, err := p.ReadEvent()
	assert.ErrorIs(t, err, chunk.ErrUnknownRecordType)
	assert.True(t, chunk.IsEncodingError(err))
}

func TestReadEventsBadRecordSize(t *testing.T) {
	c := chunktest.New(0, 100).Record(20, nil)
	b := c.Bytes()
	b[chunk.HeaderSize] = 0 // zero-length record
	r := chunk.NewReader(bytes.NewReader(b), int64(len(b)), 0)
	h, err := chunk.ReadHeader(r, 0, 0)
	require.NoError(t, err)
	md, err := metadata.Read(h)
	require.NoError(t, err)
	_, err = NewEventParser(h, md).ReadEvent()
	assert.ErrorIs(t, err, chunk.ErrBadRecordSize)
	assert.True(t, chunk.IsFormatError(err))
}

func TestReadEventsUnboundedFilter(t *testing.T) {
	p := openChunk(t, chunktest.New(0, 100).Sample(math.MaxInt64-10, 1, "late"))
	events := readAll(t, p)
	require.Len(t, events, 1)
}
