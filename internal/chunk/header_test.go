package chunk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flr/internal/chunk/chunktest"
)

func TestReadHeader(t *testing.T) {
	c := chunktest.New(1_000, 500).Sample(1_100, 10, "a")
	c.Flags = 7
	c.Minor = 3
	b := c.Bytes()

	r := readerOver(b, 32)
	h, err := ReadHeader(r, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), h.Major)
	assert.Equal(t, uint16(3), h.Minor)
	assert.Equal(t, int64(len(b)), h.Size)
	assert.Equal(t, h.Start+h.Size, h.End)
	assert.Equal(t, int64(HeaderSize), h.EventStart)
	assert.Equal(t, int64(1_000), h.StartNanos)
	assert.Equal(t, int64(500), h.DurationNanos)
	assert.Equal(t, int64(1_500), h.EndNanos())
	assert.Equal(t, uint32(7), h.Flags)
	assert.True(t, h.LastChunk)
	assert.Equal(t, time.Unix(0, 1_000), h.StartTime())
	assert.Equal(t, 500*time.Nanosecond, h.Duration())
}

func TestReadHeaderBadMagic(t *testing.T) {
	b := chunktest.New(0, 1).Bytes()
	b[0] = 'X'
	_, err := ReadHeader(readerOver(b, 0), 0, 0)
	assert.ErrorIs(t, err, ErrBadMagic)
	assert.True(t, IsFormatError(err))
}

func TestReadHeaderUnsupportedVersion(t *testing.T) {
	for _, major := range []uint16{0, 3, 0xffff} {
		c := chunktest.New(0, 1)
		c.Major = major
		r := readerOver(c.Bytes(), 0)
		_, err := ReadHeader(r, 0, 0)
		require.ErrorIs(t, err, ErrUnsupportedVersion, "major %d", major)
		assert.True(t, IsFormatError(err))
		assert.Equal(t, int64(6), r.Position(), "minor must not be consumed")
	}
	for _, major := range []uint16{1, 2} {
		c := chunktest.New(0, 1)
		c.Major = major
		_, err := ReadHeader(readerOver(c.Bytes(), 0), 0, 0)
		assert.NoError(t, err, "major %d", major)
	}
}

func TestReadHeaderTruncated(t *testing.T) {
	b := chunktest.New(0, 1).Bytes()[:40]
	_, err := ReadHeader(readerOver(b, 0), 0, 0)
	assert.ErrorIs(t, err, ErrEOF)
}

func TestReadHeaderBadSize(t *testing.T) {
	b := chunktest.New(0, 1).Bytes()
	copy(b[8:16], []byte{0, 0, 0, 0, 0, 0, 0, 10})
	_, err := ReadHeader(readerOver(b, 0), 0, 0)
	assert.ErrorIs(t, err, ErrBadChunkSize)
}

func TestNextHeaderChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.flr")
	require.NoError(t, chunktest.WriteFile(path,
		chunktest.New(0, 100).Sample(10, 1, "x"),
		chunktest.New(100, 100).Sample(110, 1, "y").Sample(120, 1, "z"),
		chunktest.New(200, 100),
	))
	r, err := Open(path, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	h, err := ReadHeader(r, 0, 0)
	require.NoError(t, err)
	var starts []int64
	for {
		assert.Equal(t, h.Start+h.Size, h.End)
		starts = append(starts, h.Start)
		next, err := h.NextHeader()
		if err != nil {
			require.ErrorIs(t, err, ErrNoData)
			assert.True(t, h.LastChunk)
			break
		}
		assert.False(t, h.LastChunk)
		assert.Equal(t, h.Sequence+1, next.Sequence)
		h = next
	}
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.Greater(t, starts[i], starts[i-1])
	}
	assert.Equal(t, r.Size(), h.End)
}

type recordingDecoder struct {
	id      int64
	payload int64
}

func (d *recordingDecoder) DecodeMetadata(r *Reader, id int64) error {
	d.id = id
	n, err := r.ReadInt()
	d.payload = int64(n)
	return err
}

func TestReadMetadata(t *testing.T) {
	c := chunktest.New(0, 10).Sample(1, 1, "a")
	c.MetadataID = 42
	r := readerOver(c.Bytes(), 16)
	h, err := ReadHeader(r, 0, 0)
	require.NoError(t, err)

	var d recordingDecoder
	require.NoError(t, h.ReadMetadata(&d))
	assert.Equal(t, int64(42), d.id)
	assert.Equal(t, int64(len(chunktest.Standard())), d.payload)
}

func TestReadMetadataUnexpectedRecord(t *testing.T) {
	c := chunktest.New(0, 10).Sample(1, 1, "a")
	r := readerOver(c.Bytes(), 16)
	h, err := ReadHeader(r, 0, 0)
	require.NoError(t, err)

	// Point the metadata offset at the event record.
	h.MetadataOffset = HeaderSize
	err = h.ReadMetadata(&recordingDecoder{})
	assert.ErrorIs(t, err, ErrUnexpectedRecord)
	assert.True(t, IsFormatError(err))
}

func TestTimeConverter(t *testing.T) {
	c := NewTimeConverter(1_000, 5_000_000_000, 1_000)
	assert.Equal(t, int64(5_000_000_000), c.ConvertTimestamp(1_000))
	assert.Equal(t, int64(5_002_000_000), c.ConvertTimestamp(1_002))
	assert.Equal(t, int64(3_000_000), c.ConvertTimespan(3))

	h := &Header{StartTicks: 10, StartNanos: 100, TicksPerSecond: 1_000_000_000}
	assert.Equal(t, int64(105), h.TimeConverter().ConvertTimestamp(15))
}
