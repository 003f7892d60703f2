package chunk

import (
	"time"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed length of a chunk header in bytes.
const HeaderSize = 68

// Magic opens every chunk.
var Magic = [4]byte{'F', 'L', 'R', 0}

// Record type ids reserved by the format.
const (
	RecordMetadata     = 0
	RecordConstantPool = 1
)

// FlagFinal marks the last chunk a producer writes before it stops.
const FlagFinal uint32 = 1

// Header is one parsed chunk header. Start and End are absolute file offsets.
type Header struct {
	Sequence int64
	Start    int64
	End      int64

	Major uint16
	Minor uint16

	Size               int64
	ConstantPoolOffset int64
	MetadataOffset     int64
	StartNanos         int64
	DurationNanos      int64
	StartTicks         int64
	TicksPerSecond     int64
	Flags              uint32

	// LastChunk is set when the chunk ends exactly at the file size observed
	// while the header was read.
	LastChunk bool
	// EventStart is the offset of the first event record.
	EventStart int64

	r *Reader
}

// MetadataDecoder consumes the metadata payload of a chunk. The reader is
// positioned just after the metadata id.
type MetadataDecoder interface {
	DecodeMetadata(r *Reader, metadataID int64) error
}

// ReadHeader parses the header at start. The major version is validated before
// the minor is read, so an unsupported file is rejected after six bytes.
func ReadHeader(r *Reader, start, sequence int64) (*Header, error) {
	if err := r.SetPosition(start); err != nil {
		return nil, err
	}
	var magic [4]byte
	if err := r.ReadFully(magic[:]); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, errors.Wrapf(ErrBadMagic, "at offset %d: % x", start, magic[:])
	}
	major, err := r.ReadRawShort()
	if err != nil {
		return nil, err
	}
	if major != 1 && major != 2 {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "major %d at offset %d", major, start)
	}
	minor, err := r.ReadRawShort()
	if err != nil {
		return nil, err
	}

	h := &Header{
		Sequence: sequence,
		Start:    start,
		Major:    uint16(major),
		Minor:    uint16(minor),
		r:        r,
	}
	fields := []*int64{
		&h.Size,
		&h.ConstantPoolOffset,
		&h.MetadataOffset,
		&h.StartNanos,
		&h.DurationNanos,
		&h.StartTicks,
		&h.TicksPerSecond,
	}
	for _, f := range fields {
		if *f, err = r.ReadRawLong(); err != nil {
			return nil, err
		}
	}
	flags, err := r.ReadRawInt()
	if err != nil {
		return nil, err
	}
	h.Flags = uint32(flags)

	if h.Size < HeaderSize {
		return nil, errors.Wrapf(ErrBadChunkSize, "size %d at offset %d", h.Size, start)
	}
	h.End = start + h.Size
	h.LastChunk = r.Size() == h.End
	h.EventStart = r.Position()
	return h, nil
}

// NextHeader reads the chunk that follows h in the same file.
func (h *Header) NextHeader() (*Header, error) {
	if h.End >= h.r.Size() {
		return nil, errors.Wrapf(ErrNoData, "chunk %d ends at %d", h.Sequence, h.End)
	}
	return ReadHeader(h.r, h.End, h.Sequence+1)
}

// ReadMetadata positions the reader on the metadata record of the chunk and
// hands its payload to d.
func (h *Header) ReadMetadata(d MetadataDecoder) error {
	if err := h.r.SetPosition(h.Start + h.MetadataOffset); err != nil {
		return err
	}
	if _, err := h.r.ReadLong(); err != nil { // record size
		return err
	}
	typeID, err := h.r.ReadLong()
	if err != nil {
		return err
	}
	if typeID != RecordMetadata {
		return errors.Wrapf(ErrUnexpectedRecord, "expected metadata, got type %d at %d", typeID, h.Start+h.MetadataOffset)
	}
	if _, err := h.r.ReadLong(); err != nil { // start time
		return err
	}
	if _, err := h.r.ReadLong(); err != nil { // duration
		return err
	}
	id, err := h.r.ReadLong()
	if err != nil {
		return err
	}
	return d.DecodeMetadata(h.r, id)
}

// Final reports whether the producer flagged this as its last chunk.
func (h *Header) Final() bool { return h.Flags&FlagFinal != 0 }

// Reader returns the reader the header was parsed from.
func (h *Header) Reader() *Reader { return h.r }

// EndNanos is the wall-clock end of the chunk in nanoseconds since the epoch.
func (h *Header) EndNanos() int64 { return h.StartNanos + h.DurationNanos }

// StartTime returns the chunk start as a time.Time.
func (h *Header) StartTime() time.Time { return time.Unix(0, h.StartNanos) }

// Duration returns the chunk duration.
func (h *Header) Duration() time.Duration { return time.Duration(h.DurationNanos) }

// TimeConverter returns the tick converter for this chunk.
func (h *Header) TimeConverter() TimeConverter {
	return TimeConverter{
		startTicks:     h.StartTicks,
		startNanos:     h.StartNanos,
		ticksPerSecond: h.TicksPerSecond,
	}
}

// TimeConverter maps ticks of one chunk to nanoseconds since the epoch.
type TimeConverter struct {
	startTicks     int64
	startNanos     int64
	ticksPerSecond int64
}

// NewTimeConverter builds a converter from explicit chunk parameters.
func NewTimeConverter(startTicks, startNanos, ticksPerSecond int64) TimeConverter {
	return TimeConverter{startTicks: startTicks, startNanos: startNanos, ticksPerSecond: ticksPerSecond}
}

// ConvertTimestamp converts an absolute tick value.
func (c TimeConverter) ConvertTimestamp(ticks int64) int64 {
	return c.startNanos + c.ConvertTimespan(ticks-c.startTicks)
}

// ConvertTimespan converts a tick delta. Whole seconds and the remainder are
// scaled separately so the result stays exact for nanosecond clocks.
func (c TimeConverter) ConvertTimespan(ticks int64) int64 {
	tps := c.ticksPerSecond
	if tps <= 0 || tps == 1_000_000_000 {
		return ticks
	}
	sec, rem := ticks/tps, ticks%tps
	return sec*1_000_000_000 + int64(float64(rem)*1e9/float64(tps))
}
