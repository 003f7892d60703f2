package chunk

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// DefaultBlockSize is the size of one resident block.
const DefaultBlockSize = 64_000

// String encoding tags.
const (
	StringNull         byte = 0
	StringEmpty        byte = 1
	StringConstantPool byte = 2
	StringUTF8         byte = 3
	StringUTF16        byte = 4
	StringLatin1       byte = 5
)

// block is a byte range [start, end) copied from the file.
type block struct {
	buf   []byte
	start int64
	end   int64
}

func (b *block) contains(pos int64) bool { return pos >= b.start && pos < b.end }

// fill reads amount bytes at start, reusing the buffer when it is large enough.
func (b *block) fill(src io.ReaderAt, start int64, amount int) error {
	if amount > cap(b.buf) {
		b.buf = make([]byte, amount)
	}
	b.buf = b.buf[:amount]
	n, err := src.ReadAt(b.buf, start)
	if err != nil && !(errors.Is(err, io.EOF) && n == amount) {
		b.reset()
		if errors.Is(err, io.EOF) {
			return errors.Wrapf(ErrEOF, "short read of %d bytes at %d", amount, start)
		}
		return ioError("read", err)
	}
	b.start = start
	b.end = start + int64(amount)
	return nil
}

func (b *block) reset() {
	b.start = 0
	b.end = 0
}

// Reader is a buffered random-access reader over a recording file. It keeps
// two resident blocks and swaps them on a miss, which keeps the header then
// body access pattern of a chunk cheap.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src       io.ReaderAt
	file      *os.File
	size      int64
	blockSize int64

	current  *block
	previous *block
	pos      int64
}

// Open opens the file at path for reading.
func Open(path string, blockSize int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("open", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ioError("stat", err)
	}
	adviseSequential(f)
	r := NewReader(f, info.Size(), blockSize)
	r.file = f
	return r, nil
}

// NewReader returns a Reader over src holding size bytes.
func NewReader(src io.ReaderAt, size int64, blockSize int) *Reader {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Reader{
		src:       src,
		size:      size,
		blockSize: int64(blockSize),
		current:   &block{},
		previous:  &block{},
	}
}

// Size returns the file size observed at open or at the last Refresh.
func (r *Reader) Size() int64 { return r.size }

// Refresh re-reads the size of a file that may still be growing.
func (r *Reader) Refresh() error {
	if r.file == nil {
		return nil
	}
	info, err := r.file.Stat()
	if err != nil {
		return ioError("stat", err)
	}
	if info.Size() != r.size {
		r.size = info.Size()
		r.current.reset()
		r.previous.reset()
	}
	return nil
}

// Path returns the name of the underlying file, if any.
func (r *Reader) Path() string {
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.current.reset()
	r.previous.reset()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return ioError("close", err)
}

// Position returns the logical cursor.
func (r *Reader) Position() int64 { return r.pos }

// SetPosition moves the cursor. Moving inside a resident block costs nothing;
// otherwise a new block is loaded into the previous slot and the slots swap.
func (r *Reader) SetPosition(pos int64) error {
	if pos < 0 {
		return errors.Errorf("chunk: negative position %d", pos)
	}
	if !r.current.contains(pos) {
		if !r.previous.contains(pos) {
			if pos > r.size {
				return errors.Wrapf(ErrEOF, "position %d beyond file size %d", pos, r.size)
			}
			if pos == r.size {
				// Positioning at the very end is legal; the next read fails.
				r.pos = pos
				return nil
			}
			start := r.blockStart(pos)
			amount := r.size - start
			if amount > r.blockSize {
				amount = r.blockSize
			}
			if err := r.previous.fill(r.src, start, int(amount)); err != nil {
				return err
			}
		}
		r.current, r.previous = r.previous, r.current
	}
	r.pos = pos
	return nil
}

// blockStart picks where the next block begins relative to the current one:
// continue after it, extend in front of it, or center on pos.
func (r *Reader) blockStart(pos int64) int64 {
	cur := r.current
	if cur.end > cur.start {
		if pos >= cur.end && pos < cur.end+r.blockSize {
			return cur.end
		}
		if pos < cur.start && pos >= cur.start-r.blockSize {
			return max(0, cur.start-r.blockSize)
		}
	}
	return max(0, pos-r.blockSize/2)
}

// ReadByte reads one byte.
func (r *Reader) ReadByte() (byte, error) {
	if !r.current.contains(r.pos) {
		if r.pos >= r.size {
			return 0, errors.Wrapf(ErrEOF, "read at %d, file is %d bytes", r.pos, r.size)
		}
		if err := r.SetPosition(r.pos); err != nil {
			return 0, err
		}
	}
	b := r.current.buf[r.pos-r.current.start]
	r.pos++
	return b, nil
}

// ReadFully fills p from the cursor.
func (r *Reader) ReadFully(p []byte) error {
	for len(p) > 0 {
		if !r.current.contains(r.pos) {
			if r.pos >= r.size {
				return errors.Wrapf(ErrEOF, "read of %d bytes at %d, file is %d bytes", len(p), r.pos, r.size)
			}
			if err := r.SetPosition(r.pos); err != nil {
				return err
			}
		}
		n := copy(p, r.current.buf[r.pos-r.current.start:])
		p = p[n:]
		r.pos += int64(n)
	}
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) error {
	return r.SetPosition(r.pos + n)
}

// ReadRawShort reads a fixed-width big-endian 16-bit value.
func (r *Reader) ReadRawShort() (int16, error) {
	var b [2]byte
	if err := r.ReadFully(b[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

// ReadRawInt reads a fixed-width big-endian 32-bit value.
func (r *Reader) ReadRawInt() (int32, error) {
	var b [4]byte
	if err := r.ReadFully(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// ReadRawLong reads a fixed-width big-endian 64-bit value.
func (r *Reader) ReadRawLong() (int64, error) {
	var b [8]byte
	if err := r.ReadFully(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// ReadLong decodes a variable-length integer: up to eight 7-bit groups, least
// significant first, followed if needed by a ninth byte used in full.
func (r *Reader) ReadLong() (int64, error) {
	var v uint64
	for shift := 0; shift < 56; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return int64(v), nil
		}
	}
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	v |= uint64(b) << 56
	return int64(v), nil
}

// ReadInt narrows ReadLong to 32 bits.
func (r *Reader) ReadInt() (int32, error) {
	v, err := r.ReadLong()
	return int32(v), err
}

// ReadShort narrows ReadLong to 16 bits.
func (r *Reader) ReadShort() (int16, error) {
	v, err := r.ReadLong()
	return int16(v), err
}

// ReadChar narrows ReadLong to a UTF-16 code unit.
func (r *Reader) ReadChar() (uint16, error) {
	v, err := r.ReadLong()
	return uint16(v), err
}

// ReadBoolean reads one byte; any non-zero value is true.
func (r *Reader) ReadBoolean() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadFloat reads raw big-endian IEEE 754 single precision bits.
func (r *Reader) ReadFloat() (float32, error) {
	v, err := r.ReadRawInt()
	return math.Float32frombits(uint32(v)), err
}

// ReadDouble reads raw big-endian IEEE 754 double precision bits.
func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.ReadRawLong()
	return math.Float64frombits(uint64(v)), err
}

// ReadEncodedString reads a tagged string. A nil result is the null string.
func (r *Reader) ReadEncodedString() (*string, error) {
	at := r.pos
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case StringNull:
		return nil, nil
	case StringEmpty:
		s := ""
		return &s, nil
	case StringUTF8:
		n, err := r.readLength()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if err := r.ReadFully(buf); err != nil {
			return nil, err
		}
		s := string(buf)
		return &s, nil
	case StringUTF16:
		n, err := r.readLength()
		if err != nil {
			return nil, err
		}
		units := make([]uint16, n)
		for i := range units {
			if units[i], err = r.ReadChar(); err != nil {
				return nil, err
			}
		}
		s := string(utf16.Decode(units))
		return &s, nil
	case StringLatin1:
		n, err := r.readLength()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if err := r.ReadFully(buf); err != nil {
			return nil, err
		}
		runes := make([]rune, n)
		for i, b := range buf {
			runes[i] = rune(b)
		}
		s := string(runes)
		return &s, nil
	case StringConstantPool:
		return nil, errors.Wrapf(ErrConstantPoolString, "at %d", at)
	default:
		return nil, errors.Wrapf(ErrUnknownEncoding, "tag %d at %d", tag, at)
	}
}

// SkipEncodedString advances past a tagged string without decoding it.
func (r *Reader) SkipEncodedString() error {
	at := r.pos
	tag, err := r.ReadByte()
	if err != nil {
		return err
	}
	switch tag {
	case StringNull, StringEmpty:
		return nil
	case StringUTF8, StringLatin1:
		n, err := r.readLength()
		if err != nil {
			return err
		}
		return r.Skip(int64(n))
	case StringUTF16:
		n, err := r.readLength()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if _, err := r.ReadChar(); err != nil {
				return err
			}
		}
		return nil
	case StringConstantPool:
		return errors.Wrapf(ErrConstantPoolString, "at %d", at)
	default:
		return errors.Wrapf(ErrUnknownEncoding, "tag %d at %d", tag, at)
	}
}

func (r *Reader) readLength() (int, error) {
	n, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	if n < 0 || int64(n) > r.size-r.pos {
		return 0, errors.Wrapf(ErrEOF, "string length %d at %d exceeds file", n, r.pos)
	}
	return int(n), nil
}
