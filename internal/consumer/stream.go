package consumer

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/parser"
	"github.com/rzbill/flr/pkg/log"
)

// orderedBufferCapacity is the initial capacity of the sort buffer.
const orderedBufferCapacity = 100_000

// EventStream is the consumer API shared by all streams.
type EventStream interface {
	SetOrdered(ordered bool)
	SetReuse(reuse bool)
	SetStartTime(t time.Time) error
	SetEndTime(t time.Time) error
	OnEvent(fn func(*parser.Event)) Handle
	OnEventType(name string, fn func(*parser.Event)) Handle
	OnFlush(fn func()) Handle
	OnClose(fn func()) Handle
	OnError(fn func(error)) Handle
	OnChunkComplete(fn func(endNanos int64)) Handle
	Remove(h Handle) bool
	Start() error
	StartAsync() error
	Close() error
	AwaitTermination(timeout time.Duration) (bool, error)
	Err() error
}

// eventStream implements the lifecycle shared by directory and file streams.
// Exactly one worker runs process; configuration may change from any
// goroutine until the stream closes.
type eventStream struct {
	cfg  streamConfig
	disp atomic.Pointer[dispatcher]

	started atomic.Bool
	closed  atomic.Bool
	// closeCh is closed by Close to interrupt blocking waits.
	closeCh   chan struct{}
	closeOnce sync.Once
	// done is closed once the stream has terminated.
	done         chan struct{}
	doneOnce     sync.Once
	closeActions sync.Once

	errMu sync.Mutex
	err   error

	sortBuffer []*parser.Event

	process func() error
	logger  log.Logger
}

func newEventStream(logger log.Logger) *eventStream {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &eventStream{
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.WithComponent("consumer").With(log.Str("stream", uuid.NewString())),
	}
}

// SetOrdered selects ordered delivery: the events of a chunk are sorted by
// end time before dispatch.
func (s *eventStream) SetOrdered(ordered bool) {
	if s.ignoredAfterClose("SetOrdered") {
		return
	}
	s.cfg.update(func() { s.cfg.ordered = ordered })
}

// SetReuse lets the stream hand out the same Event object for every event of
// a type. Callbacks must copy events they keep. Ordered streams never reuse.
func (s *eventStream) SetReuse(reuse bool) {
	if s.ignoredAfterClose("SetReuse") {
		return
	}
	s.cfg.update(func() { s.cfg.reuse = reuse })
}

// SetStartTime drops events ending before t.
func (s *eventStream) SetStartTime(t time.Time) error {
	if s.started.Load() || s.closed.Load() {
		return errors.Wrap(ErrIllegalState, "start time set after start")
	}
	s.cfg.update(func() {
		s.cfg.startNanos = t.UnixNano()
		s.cfg.hasStart = true
	})
	return nil
}

// SetEndTime drops events ending at or after t and ends the stream once a
// chunk beyond t has been flushed.
func (s *eventStream) SetEndTime(t time.Time) error {
	if s.started.Load() || s.closed.Load() {
		return errors.Wrap(ErrIllegalState, "end time set after start")
	}
	s.cfg.update(func() {
		s.cfg.endNanos = t.UnixNano()
		s.cfg.hasEnd = true
	})
	return nil
}

// ignoredAfterClose reports whether the stream has closed, in which case the
// named configuration call has no effect.
func (s *eventStream) ignoredAfterClose(op string) bool {
	if !s.closed.Load() {
		return false
	}
	s.logger.Warn("ignoring configuration of closed stream", log.Str("op", op))
	return true
}

func mustAction(ok bool) {
	if !ok {
		panic("consumer: nil action")
	}
}

// OnEvent registers fn for every event.
func (s *eventStream) OnEvent(fn func(*parser.Event)) Handle {
	return s.OnEventType("", fn)
}

// OnEventType registers fn for events of the named type.
func (s *eventStream) OnEventType(name string, fn func(*parser.Event)) Handle {
	mustAction(fn != nil)
	if s.ignoredAfterClose("OnEventType") {
		return 0
	}
	var h Handle
	s.cfg.update(func() {
		h = s.cfg.handle()
		s.cfg.events = append(s.cfg.events, eventAction{handle: h, typeName: name, fn: fn})
	})
	return h
}

// OnFlush registers fn to run after each chunk has been dispatched.
func (s *eventStream) OnFlush(fn func()) Handle {
	mustAction(fn != nil)
	if s.ignoredAfterClose("OnFlush") {
		return 0
	}
	var h Handle
	s.cfg.update(func() {
		h = s.cfg.handle()
		s.cfg.flush = append(s.cfg.flush, flushAction{handle: h, fn: fn})
	})
	return h
}

// OnClose registers fn to run once when the stream terminates.
func (s *eventStream) OnClose(fn func()) Handle {
	mustAction(fn != nil)
	if s.ignoredAfterClose("OnClose") {
		return 0
	}
	var h Handle
	s.cfg.update(func() {
		h = s.cfg.handle()
		s.cfg.close = append(s.cfg.close, flushAction{handle: h, fn: fn})
	})
	return h
}

// OnError registers fn to receive the error that ends the stream.
func (s *eventStream) OnError(fn func(error)) Handle {
	mustAction(fn != nil)
	if s.ignoredAfterClose("OnError") {
		return 0
	}
	var h Handle
	s.cfg.update(func() {
		h = s.cfg.handle()
		s.cfg.errs = append(s.cfg.errs, errorAction{handle: h, fn: fn})
	})
	return h
}

// OnChunkComplete registers fn to receive the end time of every chunk the
// stream has finished with.
func (s *eventStream) OnChunkComplete(fn func(endNanos int64)) Handle {
	mustAction(fn != nil)
	if s.ignoredAfterClose("OnChunkComplete") {
		return 0
	}
	var h Handle
	s.cfg.update(func() {
		h = s.cfg.handle()
		s.cfg.chunks = append(s.cfg.chunks, chunkAction{handle: h, fn: fn})
	})
	return h
}

// Remove unregisters an action. It reports whether h was registered. Closed
// streams keep their actions.
func (s *eventStream) Remove(h Handle) bool {
	if s.ignoredAfterClose("Remove") {
		return false
	}
	return s.cfg.remove(h)
}

// dispatcher returns the current snapshot, rebuilding it when the
// configuration changed since the last call.
func (s *eventStream) dispatcher() *dispatcher {
	if !s.cfg.changed.Load() {
		if d := s.disp.Load(); d != nil {
			return d
		}
	}
	s.cfg.mu.Lock()
	defer s.cfg.mu.Unlock()
	if d := s.disp.Load(); d != nil && !s.cfg.changed.Load() {
		return d
	}
	d := s.cfg.snapshot()
	s.disp.Store(d)
	s.cfg.changed.Store(false)
	return d
}

// Start runs the stream on the calling goroutine until it terminates.
func (s *eventStream) Start() error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.run()
}

// StartAsync runs the stream on a new goroutine.
func (s *eventStream) StartAsync() error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() { _ = s.run() }()
	return nil
}

func (s *eventStream) begin() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.Wrap(ErrIllegalState, "stream already started")
	}
	if s.closed.Load() {
		s.terminate()
		return errors.Wrap(ErrIllegalState, "stream closed")
	}
	return nil
}

func (s *eventStream) run() error {
	s.logger.Debug("stream started")
	err := s.process()
	switch {
	case err == nil:
	case chunk.IsIOError(err):
		s.logger.Debug("stream ended by i/o", log.Err(err))
		err = nil
	default:
		s.logger.Error("stream failed", log.Err(err))
		s.dispatcher().runError(err)
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
	}
	s.terminate()
	s.logger.Debug("stream terminated")
	return err
}

// terminate marks the stream closed, runs close actions and signals waiters,
// each at most once.
func (s *eventStream) terminate() {
	s.closed.Store(true)
	s.closeActions.Do(func() {
		for _, fn := range s.cfg.closeActions() {
			fn()
		}
	})
	s.doneOnce.Do(func() { close(s.done) })
}

// Close stops the stream. A running worker stops at its next check and runs
// the close actions; an unstarted stream terminates immediately.
func (s *eventStream) Close() error {
	s.closed.Store(true)
	s.closeOnce.Do(func() { close(s.closeCh) })
	if !s.started.Load() {
		s.terminate()
	}
	return nil
}

// AwaitTermination blocks until the stream has terminated or timeout elapses.
// A zero timeout waits indefinitely.
func (s *eventStream) AwaitTermination(timeout time.Duration) (bool, error) {
	if timeout < 0 {
		return false, ErrNegativeTimeout
	}
	if timeout == 0 {
		<-s.done
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

// Err returns the error that ended the stream, if any.
func (s *eventStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *eventStream) isClosed() bool { return s.closed.Load() }

// configure applies the dispatcher to a chunk parser.
func configure(ep *parser.EventParser, d *dispatcher, filterStart, filterEnd int64) {
	ep.SetFilter(filterStart, filterEnd)
	ep.SetReuse(d.reuse && !d.ordered)
}

// processChunk delivers the events of one chunk and runs the flush actions.
func (s *eventStream) processChunk(ep *parser.EventParser, d *dispatcher) error {
	if d.ordered {
		return s.processOrdered(ep, d)
	}
	for {
		e, err := ep.ReadEvent()
		if err != nil {
			return err
		}
		if e == nil {
			break
		}
		d.dispatch(e)
	}
	d.runFlush()
	return nil
}

// growDoubling doubles the capacity of a full sort buffer.
func growDoubling(buf []*parser.Event) []*parser.Event {
	if len(buf) < cap(buf) {
		return buf
	}
	return slices.Grow(buf, len(buf))
}

func (s *eventStream) processOrdered(ep *parser.EventParser, d *dispatcher) error {
	if s.sortBuffer == nil {
		s.sortBuffer = make([]*parser.Event, 0, orderedBufferCapacity)
	}
	buf := s.sortBuffer[:0]
	defer func() {
		clear(buf)
		s.sortBuffer = buf[:0]
	}()
	for {
		e, err := ep.ReadEvent()
		if err != nil {
			return err
		}
		if e == nil {
			break
		}
		buf = append(growDoubling(buf), e)
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i].EndNanos < buf[j].EndNanos })
	for _, e := range buf {
		d.dispatch(e)
	}
	d.runFlush()
	return nil
}
