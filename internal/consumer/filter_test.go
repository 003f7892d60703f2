package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flr/internal/metadata"
	"github.com/rzbill/flr/internal/parser"
)

func lockEvent() *parser.Event {
	long := &metadata.TypeDescriptor{ID: 1, Name: "long", Primitive: true}
	integer := &metadata.TypeDescriptor{ID: 2, Name: "int", Primitive: true}
	str := &metadata.TypeDescriptor{ID: 3, Name: "java.lang.String", Primitive: true}
	thread := &metadata.TypeDescriptor{ID: 4, Name: "Thread", Fields: []*metadata.FieldDescriptor{
		{Name: "id", Type: long},
	}}
	lock := &metadata.TypeDescriptor{ID: 5, Name: "Lock", Fields: []*metadata.FieldDescriptor{
		{Name: "owner", Type: thread, ConstantPool: true},
		{Name: "waiters", Type: integer},
		{Name: "message", Type: str},
		{Name: "thread", Type: thread},
	}}
	return &parser.Event{
		Type:       lock,
		StartNanos: 100,
		EndNanos:   350,
		Values:     []any{parser.Reference{TypeID: 4, Index: 7}, int32(3), "held", []any{int64(42)}},
	}
}

func TestFilterMatch(t *testing.T) {
	e := lockEvent()
	tests := []struct {
		expr string
		want bool
	}{
		{`name == "Lock"`, true},
		{`name == "Sample"`, false},
		{`fields.waiters > 2`, true},
		{`fields.owner == 7`, true},
		{`fields.thread.id == 42`, true},
		{`fields.message.startsWith("he")`, true},
		{`duration_ns >= 250 && end_ns < 400`, true},
		{`start_ns > 100`, false},
		{`fields.missing == 1`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(e))
		})
	}
}

func TestFilterCompileErrors(t *testing.T) {
	_, err := NewFilter(`name ==`)
	assert.Error(t, err)

	_, err = NewFilter(`start_ns + 1`)
	assert.ErrorContains(t, err, "boolean")

	_, err = NewFilter(`unknown_var == 1`)
	assert.Error(t, err)
}

func TestFilterEmpty(t *testing.T) {
	f, err := NewFilter("  ")
	require.NoError(t, err)
	assert.True(t, f.Match(lockEvent()))

	var zero Filter
	assert.True(t, zero.Match(lockEvent()))
}

func TestFilterWrap(t *testing.T) {
	f, err := NewFilter(`fields.waiters >= 3`)
	require.NoError(t, err)

	var seen int
	fn := f.Wrap(func(*parser.Event) { seen++ })
	e := lockEvent()
	fn(e)
	e.Values[1] = int32(1)
	fn(e)
	assert.Equal(t, 1, seen)
}
