package parser

import (
	"math"

	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/metadata"
)

// Field names that carry event timing, in ticks.
const (
	FieldStartTime = "startTime"
	FieldDuration  = "duration"
)

type eventType struct {
	desc     *metadata.TypeDescriptor
	parser   *Composite
	start    int
	duration int
	ctx      *ObjectContext
	reused   *Event
}

// EventParser reads the event records of one chunk in file order.
type EventParser struct {
	header    *chunk.Header
	r         *chunk.Reader
	md        *metadata.Metadata
	factory   *Factory
	converter chunk.TimeConverter
	types     map[int64]*eventType

	pos         int64
	filterStart int64
	filterEnd   int64
	reuse       bool
}

// NewEventParser returns a parser positioned on the first record of h.
func NewEventParser(h *chunk.Header, md *metadata.Metadata) *EventParser {
	return &EventParser{
		header:      h,
		r:           h.Reader(),
		md:          md,
		factory:     NewFactory(),
		converter:   h.TimeConverter(),
		types:       make(map[int64]*eventType),
		pos:         h.EventStart,
		filterStart: math.MinInt64,
		filterEnd:   math.MaxInt64,
	}
}

// Header returns the chunk being parsed.
func (p *EventParser) Header() *chunk.Header { return p.header }

// SetFilter restricts delivered events to end times in [start, end).
func (p *EventParser) SetFilter(start, end int64) {
	p.filterStart = start
	p.filterEnd = end
}

// SetReuse makes ReadEvent return the same Event object for every record of a
// given type.
func (p *EventParser) SetReuse(reuse bool) { p.reuse = reuse }

// Position returns the offset of the next record.
func (p *EventParser) Position() int64 { return p.pos }

// ReadEvent returns the next event inside the filter window, or nil when the
// chunk has no more records.
func (p *EventParser) ReadEvent() (*Event, error) {
	for p.pos < p.header.End {
		at := p.pos
		if err := p.r.SetPosition(at); err != nil {
			return nil, err
		}
		size, err := p.r.ReadLong()
		if err != nil {
			return nil, err
		}
		if size <= 0 || at+size > p.header.End {
			return nil, errors.Wrapf(chunk.ErrBadRecordSize, "size %d at %d", size, at)
		}
		p.pos = at + size

		typeID, err := p.r.ReadLong()
		if err != nil {
			return nil, err
		}
		if typeID == chunk.RecordMetadata || typeID == chunk.RecordConstantPool {
			continue
		}
		et, err := p.eventType(typeID)
		if err != nil {
			return nil, errors.Wrapf(err, "record at %d", at)
		}
		body := p.r.Position()
		startNs, endNs, err := p.times(et)
		if err != nil {
			return nil, err
		}
		if endNs < p.filterStart || endNs >= p.filterEnd {
			continue
		}
		if err := p.r.SetPosition(body); err != nil {
			return nil, err
		}
		values, err := et.parser.Parse(p.r)
		if err != nil {
			return nil, err
		}
		var e *Event
		switch {
		case !p.reuse:
			e = &Event{}
		case et.reused == nil:
			et.reused = &Event{}
			fallthrough
		default:
			e = et.reused
		}
		e.Type = et.desc
		e.StartNanos = startNs
		e.EndNanos = endNs
		e.Values = values.([]any)
		e.ctx = et.ctx
		return e, nil
	}
	return nil, nil
}

func (p *EventParser) eventType(id int64) (*eventType, error) {
	if et, ok := p.types[id]; ok {
		return et, nil
	}
	desc, ok := p.md.Type(id)
	if !ok {
		return nil, errors.Wrapf(chunk.ErrUnknownRecordType, "type id %d", id)
	}
	c, err := p.factory.Composite(desc)
	if err != nil {
		return nil, err
	}
	et := &eventType{
		desc:     desc,
		parser:   c,
		start:    tickField(desc, FieldStartTime),
		duration: tickField(desc, FieldDuration),
		ctx:      NewObjectContext(desc, desc.Fields, p.converter),
	}
	p.types[id] = et
	return et, nil
}

// tickField returns the index of an inline integer field, or -1.
func tickField(t *metadata.TypeDescriptor, name string) int {
	i := t.FieldIndex(name)
	if i < 0 {
		return -1
	}
	f := t.Fields[i]
	if f.ConstantPool || f.Type == nil || !f.Type.Primitive {
		return -1
	}
	switch k, _ := KindOf(f.Type.Name); k {
	case KindLong, KindInt:
		return i
	}
	return -1
}

// times reads only the leading members needed for the timing fields. Events
// without a start field are placed at the chunk start.
func (p *EventParser) times(et *eventType) (int64, int64, error) {
	var startTicks, durationTicks int64
	last := max(et.start, et.duration)
	for i := 0; i <= last; i++ {
		m := et.parser.Members[i]
		if i != et.start && i != et.duration {
			if err := m.Skip(p.r); err != nil {
				return 0, 0, err
			}
			continue
		}
		v, err := p.r.ReadLong()
		if err != nil {
			return 0, 0, err
		}
		if i == et.start {
			startTicks = v
		} else {
			durationTicks = v
		}
	}
	start := p.header.StartNanos
	if et.start >= 0 {
		start = p.converter.ConvertTimestamp(startTicks)
	}
	end := start
	if et.duration >= 0 {
		end = start + p.converter.ConvertTimespan(durationTicks)
	}
	return start, end, nil
}
