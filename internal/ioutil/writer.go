package ioutil

import (
	"encoding/binary"
)

// Unbounded can be passed to NewWriter to disable the capacity limit.
const Unbounded = -1

// Writer appends to a byte slice, optionally bounded by a capacity.
// A write that does not fit fails with ErrNotEnoughRemaining and leaves the buffer untouched.
type Writer struct {
	buf   []byte
	limit int
}

// NewWriter constructs a new Writer that accepts at most limit bytes.
// Any negative limit other than Unbounded leaves no room at all.
func NewWriter(limit int) *Writer {
	if limit < 0 && limit != Unbounded {
		limit = 0
	}
	w := &Writer{limit: limit}
	if limit > 0 {
		w.buf = make([]byte, 0, limit)
	}
	return w
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Remaining returns the number of bytes that can still be written.
func (w *Writer) Remaining() int {
	if w.limit == Unbounded {
		return int(^uint(0) >> 1)
	}
	return w.limit - len(w.buf)
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) grow(n int) ([]byte, error) {
	if n < 0 || w.Remaining() < n {
		return nil, ErrNotEnoughRemaining
	}
	l := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[l : l+n], nil
}

// WriteByte implements io.ByteWriter.
func (w *Writer) WriteByte(c byte) error {
	b, err := w.grow(1)
	if err != nil {
		return err
	}
	b[0] = c
	return nil
}

// WriteBool writes 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// WriteUint16BE writes a big-endian uint16.
func (w *Writer) WriteUint16BE(v uint16) error {
	b, err := w.grow(2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

// WriteUint16LE writes a little-endian uint16.
func (w *Writer) WriteUint16LE(v uint16) error {
	b, err := w.grow(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// WriteUint24LE writes the low 24 bits of v in little-endian order.
func (w *Writer) WriteUint24LE(v uint32) error {
	b, err := w.grow(3)
	if err != nil {
		return err
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	return nil
}

// WriteUint32BE writes a big-endian uint32.
func (w *Writer) WriteUint32BE(v uint32) error {
	b, err := w.grow(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

// WriteUint32LE writes a little-endian uint32.
func (w *Writer) WriteUint32LE(v uint32) error {
	b, err := w.grow(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// WriteUint64BE writes a big-endian uint64.
func (w *Writer) WriteUint64BE(v uint64) error {
	b, err := w.grow(8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

// Write implements io.Writer. Nothing is written if p does not fit.
func (w *Writer) Write(p []byte) (int, error) {
	b, err := w.grow(len(p))
	if err != nil {
		return 0, err
	}
	return copy(b, p), nil
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	_, err := w.grow(n)
	return err
}
