// Package chunktest builds chunk bytes for tests.
package chunktest

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// AppendLong appends the variable-length encoding of v.
func AppendLong(b []byte, v int64) []byte {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		if u < 0x80 {
			return append(b, byte(u))
		}
		b = append(b, byte(u&0x7f)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// LongLen is the encoded length of v.
func LongLen(v int64) int { return len(AppendLong(nil, v)) }

// AppendRawShort appends a big-endian 16-bit value.
func AppendRawShort(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }

// AppendRawInt appends a big-endian 32-bit value.
func AppendRawInt(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

// AppendRawLong appends a big-endian 64-bit value.
func AppendRawLong(b []byte, v int64) []byte { return binary.BigEndian.AppendUint64(b, uint64(v)) }

// AppendNull appends the null string.
func AppendNull(b []byte) []byte { return append(b, 0) }

// AppendString appends s as a UTF-8 string, or the empty tag when s is empty.
func AppendString(b []byte, s string) []byte {
	if s == "" {
		return append(b, 1)
	}
	b = append(b, 3)
	b = AppendLong(b, int64(len(s)))
	return append(b, s...)
}

// AppendUTF16 appends s as UTF-16 code units.
func AppendUTF16(b []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	b = append(b, 4)
	b = AppendLong(b, int64(len(units)))
	for _, u := range units {
		b = AppendLong(b, int64(u))
	}
	return b
}

// AppendLatin1 appends s as Latin-1. Runes above 0xff are truncated.
func AppendLatin1(b []byte, s string) []byte {
	runes := []rune(s)
	b = append(b, 5)
	b = AppendLong(b, int64(len(runes)))
	for _, r := range runes {
		b = append(b, byte(r))
	}
	return b
}

// AppendDouble appends raw IEEE 754 bits.
func AppendDouble(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}

// AppendFloat appends raw IEEE 754 bits.
func AppendFloat(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}

// AppendRecord frames body as a record whose size field counts itself.
func AppendRecord(b []byte, typeID int64, body []byte) []byte {
	n := LongLen(typeID) + len(body)
	size := int64(n + 1)
	for int64(LongLen(size)+n) != size {
		size = int64(LongLen(size) + n)
	}
	b = AppendLong(b, size)
	b = AppendLong(b, typeID)
	return append(b, body...)
}
