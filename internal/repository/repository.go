// Package repository locates the chunk files of a recording and tracks the
// state a live stream needs to decide when to stop.
package repository

import (
	"sync"
	"sync/atomic"
	"time"
)

// ChunkFile is a chunk file known to a repository.
type ChunkFile struct {
	Path          string
	Size          int64
	StartNanos    int64
	DurationNanos int64
}

// EndNanos is the end of the chunk in nanoseconds since the epoch.
func (c ChunkFile) EndNanos() int64 { return c.StartNanos + c.DurationNanos }

// Repository finds chunk files by time.
type Repository interface {
	// FirstChunkAfter returns the first chunk that covers ns or starts after it.
	FirstChunkAfter(ns int64) (ChunkFile, bool)
	// LastChunk returns the most recent chunk.
	LastChunk() (ChunkFile, bool)
	// NextChunk returns the first chunk starting at or after ns.
	NextChunk(ns int64) (ChunkFile, bool)
	// Wait blocks until new chunks may be available, the timeout elapses or
	// stop is closed.
	Wait(stop <-chan struct{}, timeout time.Duration) bool
	// Fixed reports whether the location was pinned by the user.
	Fixed() bool
}

// Barrier carries the wall-clock time at which a recording is being stopped.
type Barrier struct {
	mu       sync.Mutex
	stopTime int64
	engaged  bool
}

// Engage records the stop time.
func (b *Barrier) Engage(stopNanos int64) {
	b.mu.Lock()
	b.stopTime = stopNanos
	b.engaged = true
	b.mu.Unlock()
}

// StopTime returns the stop time and whether the barrier is engaged.
func (b *Barrier) StopTime() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopTime, b.engaged
}

// Recording is the state of the recording a stream belongs to.
type Recording struct {
	startNanos int64
	stopped    atomic.Bool
}

// NewRecording returns a running recording started at start.
func NewRecording(start time.Time) *Recording {
	return &Recording{startNanos: start.UnixNano()}
}

// StartNanos returns the recording start.
func (r *Recording) StartNanos() int64 { return r.startNanos }

// Stop marks the recording stopped.
func (r *Recording) Stop() { r.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (r *Recording) Stopped() bool { return r.stopped.Load() }
