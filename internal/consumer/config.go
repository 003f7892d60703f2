package consumer

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rzbill/flr/internal/parser"
)

// Handle identifies a registered action so it can be removed.
type Handle uint64

type eventAction struct {
	handle   Handle
	typeName string
	fn       func(*parser.Event)
}

type flushAction struct {
	handle Handle
	fn     func()
}

type errorAction struct {
	handle Handle
	fn     func(error)
}

type chunkAction struct {
	handle Handle
	fn     func(endNanos int64)
}

// streamConfig is the mutable configuration of a stream. Every mutation marks
// it changed; the worker picks changes up through a fresh dispatcher.
type streamConfig struct {
	mu      sync.Mutex
	changed atomic.Bool

	ordered    bool
	reuse      bool
	startNanos int64
	endNanos   int64
	hasStart   bool
	hasEnd     bool

	next   Handle
	events []eventAction
	flush  []flushAction
	close  []flushAction
	errs   []errorAction
	chunks []chunkAction
}

func (c *streamConfig) update(fn func()) {
	c.mu.Lock()
	fn()
	c.changed.Store(true)
	c.mu.Unlock()
}

func (c *streamConfig) handle() Handle {
	c.next++
	return c.next
}

func (c *streamConfig) remove(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := false
	c.events = removeHandle(c.events, h, func(a eventAction) Handle { return a.handle }, &removed)
	c.flush = removeHandle(c.flush, h, func(a flushAction) Handle { return a.handle }, &removed)
	c.close = removeHandle(c.close, h, func(a flushAction) Handle { return a.handle }, &removed)
	c.errs = removeHandle(c.errs, h, func(a errorAction) Handle { return a.handle }, &removed)
	c.chunks = removeHandle(c.chunks, h, func(a chunkAction) Handle { return a.handle }, &removed)
	if removed {
		c.changed.Store(true)
	}
	return removed
}

func removeHandle[T any](s []T, h Handle, key func(T) Handle, removed *bool) []T {
	out := s[:0:0]
	for _, a := range s {
		if key(a) == h {
			*removed = true
			continue
		}
		out = append(out, a)
	}
	return out
}

// closeActions returns the close actions registered so far.
func (c *streamConfig) closeActions() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(), len(c.close))
	for i, a := range c.close {
		out[i] = a.fn
	}
	return out
}

// snapshot builds an immutable dispatcher. Callers hold mu.
func (c *streamConfig) snapshot() *dispatcher {
	d := &dispatcher{
		ordered:     c.ordered,
		reuse:       c.reuse,
		filterStart: math.MinInt64,
		filterEnd:   math.MaxInt64,
		hasStart:    c.hasStart,
		hasEnd:      c.hasEnd,
	}
	if c.hasStart {
		d.filterStart = c.startNanos
	}
	if c.hasEnd {
		d.filterEnd = c.endNanos
	}
	d.events = append([]eventAction(nil), c.events...)
	for _, a := range c.flush {
		d.flush = append(d.flush, a.fn)
	}
	for _, a := range c.errs {
		d.errs = append(d.errs, a.fn)
	}
	for _, a := range c.chunks {
		d.chunks = append(d.chunks, a.fn)
	}
	return d
}

// dispatcher is an immutable view of the configuration used by one pass of
// the worker loop.
type dispatcher struct {
	ordered     bool
	reuse       bool
	filterStart int64
	filterEnd   int64
	hasStart    bool
	hasEnd      bool

	events []eventAction
	flush  []func()
	errs   []func(error)
	chunks []func(int64)
}

func (d *dispatcher) dispatch(e *parser.Event) {
	name := e.Name()
	for _, a := range d.events {
		if a.typeName == "" || a.typeName == name {
			a.fn(e)
		}
	}
}

func (d *dispatcher) runFlush() {
	for _, fn := range d.flush {
		fn()
	}
}

func (d *dispatcher) runError(err error) {
	for _, fn := range d.errs {
		fn(err)
	}
}

func (d *dispatcher) chunkComplete(endNanos int64) {
	for _, fn := range d.chunks {
		fn(endNanos)
	}
}
