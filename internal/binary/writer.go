package binary

import (
	"bytes"
	"encoding/binary"
)

// Writer provides buffered writing of fixed-width big-endian values.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// WriteU8 writes a single byte.
func (w *Writer) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

// WriteU16 writes a big-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteU24 writes a big-endian 24-bit unsigned value. The top byte of v is
// discarded.
func (w *Writer) WriteU24(v uint32) {
	w.buf.WriteByte(byte(v >> 16))
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

// WriteU32 writes a big-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(p []byte) {
	w.buf.Write(p)
}
