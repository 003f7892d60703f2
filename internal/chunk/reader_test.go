package chunk

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flr/internal/chunk/chunktest"
)

func readerOver(b []byte, blockSize int) *Reader {
	return NewReader(bytes.NewReader(b), int64(len(b)), blockSize)
}

func TestReadLongRoundTrip(t *testing.T) {
	values := []int64{0, 1, 127, 128, 300, 1 << 21, 1<<56 - 1, 1 << 56, math.MaxInt64, -1, math.MinInt64}
	var buf []byte
	for _, v := range values {
		buf = chunktest.AppendLong(buf, v)
	}
	r := readerOver(buf, 16)
	for _, want := range values {
		got, err := r.ReadLong()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int64(len(buf)), r.Position())
}

func TestReadLongEncodedLengths(t *testing.T) {
	assert.Equal(t, 1, chunktest.LongLen(0))
	assert.Equal(t, 1, chunktest.LongLen(127))
	assert.Equal(t, 2, chunktest.LongLen(128))
	assert.Equal(t, 9, chunktest.LongLen(math.MaxInt64))
	assert.Equal(t, 9, chunktest.LongLen(-1))
}

func TestReadLongNinthByteIsFull(t *testing.T) {
	// Eight continuation bytes of zero payload, then 0xff shifted by 56.
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0xff}
	got, err := readerOver(buf, 4).ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(-1)<<56, got)
}

func TestNarrowingReads(t *testing.T) {
	var buf []byte
	buf = chunktest.AppendLong(buf, 1<<40|7)
	buf = chunktest.AppendLong(buf, 0x1_0005)
	buf = chunktest.AppendLong(buf, 'é')
	buf = append(buf, 2)
	buf = chunktest.AppendDouble(buf, 2.5)
	buf = chunktest.AppendFloat(buf, -1.25)

	r := readerOver(buf, 8)
	i, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(7), i)
	s, err := r.ReadShort()
	require.NoError(t, err)
	assert.Equal(t, int16(5), s)
	c, err := r.ReadChar()
	require.NoError(t, err)
	assert.Equal(t, uint16('é'), c)
	ok, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, ok)
	d, err := r.ReadDouble()
	require.NoError(t, err)
	assert.Equal(t, 2.5, d)
	f, err := r.ReadFloat()
	require.NoError(t, err)
	assert.Equal(t, float32(-1.25), f)
}

func TestReadEncodedString(t *testing.T) {
	var buf []byte
	buf = chunktest.AppendNull(buf)
	buf = chunktest.AppendString(buf, "")
	buf = chunktest.AppendString(buf, "héllo")
	buf = chunktest.AppendUTF16(buf, "snow ☃ 𝄞")
	buf = chunktest.AppendLatin1(buf, "café")

	r := readerOver(buf, 5)
	s, err := r.ReadEncodedString()
	require.NoError(t, err)
	assert.Nil(t, s)

	for _, want := range []string{"", "héllo", "snow ☃ 𝄞", "café"} {
		s, err = r.ReadEncodedString()
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, want, *s)
	}
	assert.Equal(t, int64(len(buf)), r.Position())
}

func TestSkipEncodedString(t *testing.T) {
	var buf []byte
	buf = chunktest.AppendString(buf, "skip me")
	buf = chunktest.AppendUTF16(buf, "and me")
	buf = chunktest.AppendNull(buf)
	buf = chunktest.AppendLatin1(buf, "x")
	buf = chunktest.AppendLong(buf, 42)

	r := readerOver(buf, 8)
	for i := 0; i < 4; i++ {
		require.NoError(t, r.SkipEncodedString())
	}
	v, err := r.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestReadEncodedStringRejectsTags(t *testing.T) {
	_, err := readerOver([]byte{9}, 4).ReadEncodedString()
	assert.ErrorIs(t, err, ErrUnknownEncoding)
	assert.True(t, IsEncodingError(err))

	_, err = readerOver([]byte{2, 1}, 4).ReadEncodedString()
	assert.ErrorIs(t, err, ErrConstantPoolString)
	assert.True(t, IsEncodingError(err))
	assert.False(t, IsIOError(err))
}

func TestReadEncodedStringLengthBeyondFile(t *testing.T) {
	buf := chunktest.AppendLong([]byte{3}, 1000)
	_, err := readerOver(buf, 4).ReadEncodedString()
	assert.True(t, IsIOError(err))
}

func TestReadPastEnd(t *testing.T) {
	r := readerOver([]byte{1, 2}, 4)
	_, err := r.ReadRawInt()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEOF)
	assert.True(t, IsIOError(err))
	assert.False(t, IsFormatError(err))

	r = readerOver([]byte{1, 2}, 4)
	require.NoError(t, r.SetPosition(2))
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, ErrEOF)
	assert.ErrorIs(t, r.SetPosition(3), ErrEOF)
}

func TestBlockHeuristic(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	r := readerOver(data, 100)

	// First miss re-centers on the position.
	require.NoError(t, r.SetPosition(500))
	assert.Equal(t, int64(450), r.current.start)
	assert.Equal(t, int64(550), r.current.end)

	// Just past the current block extends forward and keeps the old block.
	require.NoError(t, r.SetPosition(560))
	assert.Equal(t, int64(550), r.current.start)
	assert.Equal(t, int64(650), r.current.end)
	assert.Equal(t, int64(450), r.previous.start)

	// Back into the previous block is a swap with no load.
	prev := r.previous
	require.NoError(t, r.SetPosition(460))
	assert.Same(t, prev, r.current)

	// Just before the current block extends backward.
	require.NoError(t, r.SetPosition(440))
	assert.Equal(t, int64(350), r.current.start)
	assert.Equal(t, int64(450), r.current.end)

	// Far away re-centers, clamped to zero.
	require.NoError(t, r.SetPosition(10))
	assert.Equal(t, int64(0), r.current.start)
	assert.Equal(t, int64(100), r.current.end)

	// The last block is truncated at the file size.
	require.NoError(t, r.SetPosition(990))
	assert.Equal(t, int64(940), r.current.start)
	assert.Equal(t, int64(1000), r.current.end)

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(990%256), b)
}

func TestBlockBufferReuse(t *testing.T) {
	r := readerOver(make([]byte, 1000), 100)
	require.NoError(t, r.SetPosition(500))
	require.NoError(t, r.SetPosition(10))
	first := &r.previous.buf[0]
	require.NoError(t, r.SetPosition(900))
	assert.Same(t, first, &r.current.buf[0])
}

func TestReadFullyAcrossBlocks(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	r := readerOver(data, 16)
	require.NoError(t, r.SetPosition(5))
	got := make([]byte, 200)
	require.NoError(t, r.ReadFully(got))
	assert.Equal(t, data[5:205], got)
	assert.Equal(t, int64(205), r.Position())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.flr")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	r, err := Open(path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Size())
	assert.Equal(t, path, r.Path())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{4, 5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, r.Refresh())
	assert.Equal(t, int64(5), r.Size())
	require.NoError(t, r.SetPosition(4))
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(5), b)
	require.NoError(t, r.Close())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.flr"), 0)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "open", ioErr.Op)
	assert.True(t, IsIOError(err))
}
