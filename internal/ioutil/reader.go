package ioutil

import (
	"encoding/binary"
	"errors"
)

// ErrNotEnoughRemaining is returned when a read or write would cross the end of the underlying buffer.
var ErrNotEnoughRemaining = errors.New("not enough bytes remaining in buffer")

// Reader is a cursor over a fixed byte slice.
// All reads fail with ErrNotEnoughRemaining instead of returning partial results.
type Reader struct {
	buf []byte
	off int
}

// NewReader constructs a new Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrNotEnoughRemaining
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a single byte and reports whether it is non-zero.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadUint16BE reads a big-endian uint16.
func (r *Reader) ReadUint16BE() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint16LE reads a little-endian uint16.
func (r *Reader) ReadUint16LE() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint24LE reads a little-endian 24-bit unsigned integer.
func (r *Reader) ReadUint24LE() (uint32, error) {
	b, err := r.next(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// ReadUint32BE reads a big-endian uint32.
func (r *Reader) ReadUint32BE() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint32LE reads a little-endian uint32.
func (r *Reader) ReadUint32LE() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64BE reads a big-endian uint64.
func (r *Reader) ReadUint64BE() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadBytes reads n bytes into a newly allocated slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadFull fills p completely or fails without consuming anything.
func (r *Reader) ReadFull(p []byte) error {
	b, err := r.next(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.next(n)
	return err
}
