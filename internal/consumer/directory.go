package consumer

import (
	"time"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/metadata"
	"github.com/rzbill/flr/internal/parser"
	"github.com/rzbill/flr/internal/repository"
	"github.com/rzbill/flr/pkg/log"
)

// DefaultWaitInterval bounds a single wait for new chunks.
const DefaultWaitInterval = time.Second

// DirectoryOptions configures a DirectoryStream.
type DirectoryOptions struct {
	Repository repository.Repository
	// Barrier, when set, carries the stop time of the producing recording.
	Barrier *repository.Barrier
	// Recording, when set, is the recording being tailed. The stream then
	// starts at the recording start instead of the newest chunk.
	Recording *repository.Recording
	// BlockSize is the reader block size.
	BlockSize int
	// WaitInterval bounds each wait for the next chunk.
	WaitInterval time.Duration
	Logger       log.Logger
}

// DirectoryStream follows the chunk files of a repository as they appear.
type DirectoryStream struct {
	*eventStream
	opts DirectoryOptions
}

var _ EventStream = (*DirectoryStream)(nil)

// NewDirectoryStream returns an unstarted stream over opts.Repository.
func NewDirectoryStream(opts DirectoryOptions) *DirectoryStream {
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = DefaultWaitInterval
	}
	s := &DirectoryStream{eventStream: newEventStream(opts.Logger), opts: opts}
	s.process = s.processDirectory
	return s
}

type openChunk struct {
	file   repository.ChunkFile
	reader *chunk.Reader
	header *chunk.Header
	md     *metadata.Metadata
}

func (s *DirectoryStream) open(cf repository.ChunkFile) (*openChunk, error) {
	r, err := chunk.Open(cf.Path, s.opts.BlockSize)
	if err != nil {
		return nil, err
	}
	h, err := chunk.ReadHeader(r, 0, 0)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	md, err := metadata.Read(h)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &openChunk{file: cf, reader: r, header: h, md: md}, nil
}

func (s *DirectoryStream) processDirectory() error {
	repo := s.opts.Repository
	d := s.dispatcher()

	var (
		cf        repository.ChunkFile
		found     bool
		fromStart int64
		hasFrom   bool
	)
	switch {
	case d.hasStart:
		fromStart, hasFrom = d.filterStart, true
	case s.opts.Recording != nil:
		fromStart, hasFrom = s.opts.Recording.StartNanos(), true
	}
	if hasFrom {
		cf, found = repo.FirstChunkAfter(fromStart)
	} else {
		cf, found = repo.LastChunk()
	}
	if !found {
		s.logger.Debug("no chunk found")
		return nil
	}

	cur, err := s.open(cf)
	if err != nil {
		return err
	}
	defer func() { _ = cur.reader.Close() }()

	filterStart := cur.header.EndNanos()
	if hasFrom {
		filterStart = fromStart
	}
	filterEnd := d.filterEnd
	s.logger.Info("streaming repository", log.Str("chunk", cf.Path), log.Bool("ordered", d.ordered))

	for {
		if s.isClosed() {
			return nil
		}
		h := cur.header
		d = s.dispatcher()
		ep := parser.NewEventParser(h, cur.md)
		configure(ep, d, filterStart, filterEnd)
		if err := s.processChunk(ep, d); err != nil {
			return err
		}
		if h.EndNanos() > filterEnd {
			return nil
		}

		if stop, engaged := s.barrierStop(); engaged && stop < h.EndNanos() {
			s.logger.Debug("stopped at barrier", log.Int64("stop", stop))
			return nil
		}
		_, hasNext := repo.NextChunk(nextLookup(h))
		if s.opts.Recording != nil && s.opts.Recording.Stopped() && !hasNext {
			if _, engaged := s.barrierStop(); !engaged {
				return nil
			}
		}
		if repo.Fixed() && h.Final() {
			s.logger.Debug("final chunk in fixed repository", log.Str("chunk", cur.file.Path))
			return nil
		}

		next, ok := s.awaitNext(nextLookup(h))
		if !ok {
			return nil
		}
		nc, err := s.open(next)
		if err != nil {
			return err
		}
		_ = cur.reader.Close()
		ended := h.EndNanos()
		cur = nc
		s.logger.Debug("chunk rotated", log.Str("chunk", next.Path))
		d.chunkComplete(ended)
	}
}

// nextLookup is the earliest start of the chunk following h. Zero-duration
// chunks count as one nanosecond long so the lookup always moves forward.
func nextLookup(h *chunk.Header) int64 {
	d := h.DurationNanos
	if d == 0 {
		d = 1
	}
	return h.StartNanos + d
}

func (s *DirectoryStream) barrierStop() (int64, bool) {
	if s.opts.Barrier == nil {
		return 0, false
	}
	return s.opts.Barrier.StopTime()
}

// awaitNext blocks until a chunk starting at or after ns exists or the stream
// closes.
func (s *DirectoryStream) awaitNext(ns int64) (repository.ChunkFile, bool) {
	for {
		if cf, ok := s.opts.Repository.NextChunk(ns); ok {
			return cf, true
		}
		if s.isClosed() {
			return repository.ChunkFile{}, false
		}
		s.opts.Repository.Wait(s.closeCh, s.opts.WaitInterval)
	}
}
