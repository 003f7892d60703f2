package consumer

import (
	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/metadata"
	"github.com/rzbill/flr/internal/parser"
	"github.com/rzbill/flr/pkg/log"
)

// FileOptions configures a FileStream.
type FileOptions struct {
	Path      string
	BlockSize int
	Logger    log.Logger
}

// FileStream reads every chunk of one recording file, then ends.
type FileStream struct {
	*eventStream
	opts FileOptions
}

var _ EventStream = (*FileStream)(nil)

// NewFileStream returns an unstarted stream over the file at opts.Path.
func NewFileStream(opts FileOptions) *FileStream {
	s := &FileStream{eventStream: newEventStream(opts.Logger), opts: opts}
	s.process = s.processFile
	return s
}

func (s *FileStream) processFile() error {
	r, err := chunk.Open(s.opts.Path, s.opts.BlockSize)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	h, err := chunk.ReadHeader(r, 0, 0)
	if err != nil {
		return err
	}
	s.logger.Debug("reading file", log.Str("path", s.opts.Path))
	for {
		if s.isClosed() {
			return nil
		}
		d := s.dispatcher()
		md, err := metadata.Read(h)
		if err != nil {
			return err
		}
		ep := parser.NewEventParser(h, md)
		configure(ep, d, d.filterStart, d.filterEnd)
		if err := s.processChunk(ep, d); err != nil {
			return err
		}
		d.chunkComplete(h.EndNanos())
		if h.EndNanos() > d.filterEnd {
			return nil
		}
		next, err := h.NextHeader()
		if err != nil {
			// ErrNoData after the last chunk is an I/O error and ends the
			// stream cleanly.
			return err
		}
		h = next
	}
}
