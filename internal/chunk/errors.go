package chunk

import (
	"errors"
)

// Error classes. Every error produced by this package matches exactly one of
// them under errors.Is.
var (
	ErrIO       = errors.New("chunk: i/o error")
	ErrFormat   = errors.New("chunk: format error")
	ErrEncoding = errors.New("chunk: encoding error")
)

var (
	ErrEOF                = classified(ErrIO, "chunk: unexpected end of file")
	ErrNoData             = classified(ErrIO, "chunk: no data after chunk")
	ErrBadMagic           = classified(ErrFormat, "chunk: bad magic")
	ErrUnsupportedVersion = classified(ErrFormat, "chunk: unsupported format version")
	ErrUnexpectedRecord   = classified(ErrFormat, "chunk: unexpected record type")
	ErrBadChunkSize       = classified(ErrFormat, "chunk: chunk size smaller than header")
	ErrBadRecordSize      = classified(ErrFormat, "chunk: record size out of range")
	ErrUnknownEncoding    = classified(ErrEncoding, "chunk: unknown string encoding")
	ErrConstantPoolString = classified(ErrEncoding, "chunk: constant pool string references are not supported")
	ErrUnknownRecordType  = classified(ErrEncoding, "chunk: unknown record type")
	ErrUnknownType        = classified(ErrEncoding, "chunk: reference to undeclared type")
)

// classError is a sentinel that also belongs to a class.
type classError struct {
	class error
	msg   string
}

func classified(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Is(target error) bool { return target == e.class }

// IOError wraps a failure of the underlying file.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "chunk: " + e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

// IsIOError reports whether err belongs to the I/O class.
func IsIOError(err error) bool { return errors.Is(err, ErrIO) }

// IsFormatError reports whether err belongs to the format class.
func IsFormatError(err error) bool { return errors.Is(err, ErrFormat) }

// IsEncodingError reports whether err belongs to the encoding class.
func IsEncodingError(err error) bool { return errors.Is(err, ErrEncoding) }
