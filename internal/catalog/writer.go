package catalog

import (
	"encoding/binary"
	"math"
)

// Writer accumulates a catalog source buffer through appends; the
// builder walks its rows once and reads the finished buffer back with
// Bytes.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Byte appends a single byte.
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// Bool appends a one-byte boolean flag.
func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

// Uint16 appends a little-endian 16-bit unsigned integer.
func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint32 appends a little-endian 32-bit unsigned integer.
func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint64 appends a little-endian 64-bit unsigned integer.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Float32 appends a little-endian IEEE-754 single-precision float.
func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

// String appends a 1-byte length prefix followed by s's bytes. s must be
// at most 255 bytes; callers deal in short names/links/job titles, so the
// single-byte prefix never truncates in practice.
func (w *Writer) String(s string) {
	w.Byte(byte(len(s)))
	w.buf = append(w.buf, s...)
}

// RequestKind appends the 4-byte RequestKind discriminator.
func (w *Writer) RequestKind(k RequestKind) {
	w.Uint32(uint32(k))
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len reports how many bytes have been written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}
