// Package wire reads and writes the primitive values of the game protocol.
//
// Multi-byte integers are big-endian unless a method name says otherwise.
// Strings are raw bytes terminated by a single 10 byte.
package wire

import (
	"encoding/binary"
	"errors"
)

var ErrShortBuffer = errors.New("wire: short buffer")

// Terminator ends every string on the wire.
const Terminator = 10

// Reader consumes values from a fixed byte slice. A failed read leaves the
// position unchanged.
type Reader struct {
	b   []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Len reports the unread byte count.
func (r *Reader) Len() int { return len(r.b) - r.off }

// Offset reports how many bytes have been consumed.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) need(n int) error {
	if n < 0 || r.Len() < n {
		return ErrShortBuffer
	}
	return nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadInt32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return int32(v), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return int64(v), nil
}

// ReadLEShortA reads a little-endian short whose low byte is offset by 128.
func (r *Reader) ReadLEShortA() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	lo := r.b[r.off] - 128
	hi := r.b[r.off+1]
	r.off += 2
	return uint16(hi)<<8 | uint16(lo), nil
}

// ReadLEShort reads a plain little-endian short.
func (r *Reader) ReadLEShort() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

// ReadByteC reads a byte stored negated.
func (r *Reader) ReadByteC() (int8, error) {
	v, err := r.ReadUint8()
	return -int8(v), err
}

// ReadString reads up to the next terminator. Running out of input also
// ends the string, so ReadString never fails.
func (r *Reader) ReadString() string {
	start := r.off
	for r.off < len(r.b) {
		c := r.b[r.off]
		r.off++
		if c == Terminator {
			return string(r.b[start : r.off-1])
		}
	}
	return string(r.b[start:r.off])
}
