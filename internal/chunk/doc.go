// Package chunk reads the binary chunk format of a flight recording.
//
// # Overview
//
// A recording file holds one or more chunks laid out back to back. Every chunk
// starts with a fixed 68-byte big-endian header followed by the event record
// stream:
//
//	magic "FLR\0" | major u16 | minor u16 | size i64 | cpool i64 | meta i64 |
//	startNanos i64 | durationNanos i64 | startTicks i64 | ticksPerSec i64 | flags u32
//
// Record bodies use a compact variable-length integer (7-bit little-endian
// groups, at most 9 bytes) and tagged strings.
//
// Reader is a buffered random-access reader holding two resident blocks of the
// file. Header parses one chunk header from a Reader and chains to the next one.
//
//	r, _ := chunk.Open(path, chunk.DefaultBlockSize)
//	defer r.Close()
//	h, _ := chunk.ReadHeader(r, 0, 0)
//	for {
//	    // ... decode events between h.EventStart and h.End
//	    next, err := h.NextHeader()
//	    if errors.Is(err, chunk.ErrNoData) {
//	        break
//	    }
//	    h = next
//	}
//
// # Errors
//
// Failures belong to one of three classes, tested with errors.Is: ErrIO (short
// reads, vanished files, no more data), ErrFormat (bad magic, unsupported
// version, unexpected record) and ErrEncoding (unknown string tag).
package chunk
