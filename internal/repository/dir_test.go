package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flr/internal/chunk/chunktest"
)

func writeChunk(t *testing.T, dir, name string, start, duration int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, chunktest.WriteFile(path, chunktest.New(start, duration).Sample(start, 1, name)))
	return path
}

func TestDirLookups(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, "b.flr", 100, 100)
	writeChunk(t, dir, "a.flr", 0, 100)
	writeChunk(t, dir, "c.flr", 200, 50)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.flr"), []byte("FLR"), 0o644))

	d, err := Open(Options{Path: dir, Fixed: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	chunks := d.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, filepath.Join(dir, "a.flr"), chunks[0].Path)
	assert.Equal(t, int64(250), chunks[2].EndNanos())
	assert.True(t, d.Fixed())

	c, ok := d.FirstChunkAfter(150)
	require.True(t, ok)
	assert.Equal(t, int64(100), c.StartNanos)

	c, ok = d.FirstChunkAfter(-5)
	require.True(t, ok)
	assert.Equal(t, int64(0), c.StartNanos)

	_, ok = d.FirstChunkAfter(250)
	assert.False(t, ok)

	c, ok = d.NextChunk(101)
	require.True(t, ok)
	assert.Equal(t, int64(200), c.StartNanos)

	c, ok = d.LastChunk()
	require.True(t, ok)
	assert.Equal(t, int64(200), c.StartNanos)
}

func TestDirEmpty(t *testing.T) {
	d, err := Open(Options{Path: t.TempDir()})
	require.NoError(t, err)
	_, ok := d.LastChunk()
	assert.False(t, ok)
	_, ok = d.FirstChunkAfter(0)
	assert.False(t, ok)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestOpenRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := Open(Options{Path: path})
	assert.Error(t, err)
	_, err = Open(Options{})
	assert.Error(t, err)
}

func TestDirHeaderCache(t *testing.T) {
	dir := t.TempDir()
	path := writeChunk(t, dir, "a.flr", 0, 10)
	d, err := Open(Options{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, d.headers.ItemCount())

	changed, err := d.Scan()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, d.headers.ItemCount())

	// A rewritten file gets a new key.
	require.NoError(t, chunktest.WriteFile(path, chunktest.New(5, 10).Sample(5, 1, "x").Sample(6, 1, "y")))
	changed, err = d.Scan()
	require.NoError(t, err)
	assert.True(t, changed)
	c, _ := d.LastChunk()
	assert.Equal(t, int64(5), c.StartNanos)
}

func TestWaitWakesOnNewChunk(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, "a.flr", 0, 10)
	d, err := Open(Options{Path: dir, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	done := make(chan bool, 1)
	go func() { done <- d.Wait(nil, 2*time.Second) }()

	time.Sleep(30 * time.Millisecond)
	writeChunk(t, dir, "b.flr", 10, 10)

	select {
	case woke := <-done:
		assert.True(t, woke)
	case <-time.After(3 * time.Second):
		t.Fatalf("waiter did not wake")
	}
	_, ok := d.NextChunk(10)
	assert.True(t, ok)
}

func TestWaitTimeoutAndStop(t *testing.T) {
	d, err := Open(Options{Path: t.TempDir()})
	require.NoError(t, err)

	assert.False(t, d.Wait(nil, 20*time.Millisecond))

	stop := make(chan struct{})
	done := make(chan bool, 1)
	go func() { done <- d.Wait(stop, 0) }()
	close(stop)
	select {
	case woke := <-done:
		assert.False(t, woke)
	case <-time.After(time.Second):
		t.Fatalf("stop did not interrupt wait")
	}
}

func TestNotifyRescans(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(Options{Path: dir})
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() { done <- d.Wait(nil, 2*time.Second) }()
	time.Sleep(20 * time.Millisecond)
	writeChunk(t, dir, "a.flr", 0, 10)
	d.Notify()
	assert.True(t, <-done)
}

func TestBarrierAndRecording(t *testing.T) {
	var b Barrier
	_, engaged := b.StopTime()
	assert.False(t, engaged)
	b.Engage(42)
	ts, engaged := b.StopTime()
	assert.True(t, engaged)
	assert.Equal(t, int64(42), ts)

	start := time.Unix(0, 1_000)
	r := NewRecording(start)
	assert.Equal(t, int64(1_000), r.StartNanos())
	assert.False(t, r.Stopped())
	r.Stop()
	assert.True(t, r.Stopped())
}

func TestDirSkipsIncompleteChunk(t *testing.T) {
	dir := t.TempDir()
	b := chunktest.New(0, 100).Sample(0, 1, "x").Bytes()
	path := filepath.Join(dir, "a.flr")
	require.NoError(t, os.WriteFile(path, b[:len(b)-10], 0o644))

	d, err := Open(Options{Path: dir, Fixed: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	assert.Empty(t, d.Chunks())

	require.NoError(t, os.WriteFile(path, b, 0o644))
	changed, err := d.Scan()
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, d.Chunks(), 1)
	assert.Equal(t, int64(len(b)), d.Chunks()[0].Size)
}
