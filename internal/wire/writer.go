package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// Writer accumulates the fields of one wire message. Scalars and
// length-prefixed strings/blobs are buffered in memory; at most one
// externally-owned blob may additionally be linked so Flush writes it
// straight through without a copy, for the one place the protocol
// moves a genuinely large payload (a delivered raster tile or feature
// collection body).
type Writer struct {
	buf    bytes.Buffer
	linked []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) scratch8(v uint64, n int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:n])
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) { w.buf.WriteByte(v) }

// WriteBool appends 1 for true, 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) { w.scratch8(uint64(v), 2) }

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) { w.scratch8(uint64(v), 4) }

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) { w.scratch8(v, 8) }

// WriteInt64 appends a little-endian int64.
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteFloat64 appends a little-endian IEEE-754 double.
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteBlob appends a 64-bit length prefix followed by b's bytes,
// copied into the Writer's own buffer. Use LinkBlob instead for a
// large payload that should not be copied.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteUint64(uint64(len(b)))
	w.buf.Write(b)
}

// WriteString appends a length-prefixed string.
func (w *Writer) WriteString(s string) {
	w.WriteBlob([]byte(s))
}

// WriteVectorLen appends the 64-bit element count prefixing a vector
// field; callers then write each element themselves.
func (w *Writer) WriteVectorLen(n int) { w.WriteUint64(uint64(n)) }

// WriteVector appends a length-prefixed vector, encoding each element
// with each.
func WriteVector[T any](w *Writer, items []T, each func(*Writer, T)) {
	w.WriteVectorLen(len(items))
	for _, it := range items {
		each(w, it)
	}
}

// LinkBlob marks b as the message's trailing externally-owned payload:
// its length is written inline now (as a normal length-prefixed field,
// so the reader's ReadBlob or ReadVectorLen-style framing still sees an
// ordinary length prefix) but its bytes are written directly to the
// destination on Flush rather than being appended to the buffered
// header. Only one linked blob is supported per message; the protocol
// never needs more than one zero-copy payload in a single frame.
func (w *Writer) LinkBlob(b []byte) {
	w.WriteUint64(uint64(len(b)))
	w.linked = b
}

// Flush writes the buffered header followed by the linked blob, if
// any, to dst. Ownership of a linked blob is released once the write
// completes; the Writer is then empty of linked state but keeps its
// buffered header, so callers that want to reuse the Writer must
// Reset it first.
func (w *Writer) Flush(dst io.Writer) error {
	if _, err := dst.Write(w.buf.Bytes()); err != nil {
		return err
	}
	if w.linked != nil {
		if _, err := dst.Write(w.linked); err != nil {
			return err
		}
		w.linked = nil
	}
	return nil
}

// Bytes returns the encoded message as a single slice: the buffered
// header followed by the linked blob, if any. Unlike Flush, this
// copies the linked blob; it exists for tests and for callers that
// need the frame in memory rather than on a stream.
func (w *Writer) Bytes() []byte {
	if w.linked == nil {
		return w.buf.Bytes()
	}
	out := make([]byte, 0, w.buf.Len()+len(w.linked))
	out = append(out, w.buf.Bytes()...)
	return append(out, w.linked...)
}

// Reset discards all buffered and linked state so the Writer can be
// reused for the next message.
func (w *Writer) Reset() {
	w.buf.Reset()
	w.linked = nil
}
