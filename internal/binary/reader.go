package binary

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a read runs past the end of the input.
var ErrShortBuffer = errors.New("binary: short buffer")

// Reader reads fixed-width big-endian values from a byte slice with
// position tracking.
type Reader struct {
	b   []byte
	pos int
}

// NewReader creates a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.pos
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

// ReadU16 reads a big-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadU24 reads a big-endian 24-bit unsigned value.
func (r *Reader) ReadU24() (uint32, error) {
	if r.Remaining() < 3 {
		return 0, ErrShortBuffer
	}
	v := uint32(r.b[r.pos])<<16 | uint32(r.b[r.pos+1])<<8 | uint32(r.b[r.pos+2])
	r.pos += 3
	return v, nil
}

// ReadU32 reads a big-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadBytes reads exactly n bytes. The returned slice is a copy.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Rest returns a copy of all unread bytes.
func (r *Reader) Rest() []byte {
	return append([]byte(nil), r.b[r.pos:]...)
}
