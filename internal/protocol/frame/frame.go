package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Kind selects the length header written ahead of a payload.
type Kind uint8

const (
	KindFixed    Kind = iota // no length header
	KindVarByte              // 1 byte length
	KindVarShort             // 2 byte big-endian length
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindVarByte:
		return "var_byte"
	case KindVarShort:
		return "var_short"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// OpcodeRaw marks a frame whose payload is written with no header at all.
const OpcodeRaw = -1

const (
	MaxVarByte  = 0xff
	MaxVarShort = 0xffff
)

var (
	ErrIncomplete      = errors.New("frame: incomplete")
	ErrPayloadTooLarge = errors.New("frame: payload too large for length header")
	ErrBadOpcode       = errors.New("frame: opcode out of range")
	ErrBadKind         = errors.New("frame: unknown kind")
)

// Frame is one opcode-tagged message.
type Frame struct {
	Opcode  int
	Kind    Kind
	Payload []byte
}

func New(opcode uint8, kind Kind, payload []byte) Frame {
	return Frame{Opcode: int(opcode), Kind: kind, Payload: payload}
}

// Raw wraps bytes that go on the wire unframed.
func Raw(payload []byte) Frame {
	return Frame{Opcode: OpcodeRaw, Payload: payload}
}

func (f Frame) IsRaw() bool { return f.Opcode == OpcodeRaw }

// Decode reads one frame from the front of b. It returns the frame and the
// number of bytes it spans. When b does not yet hold a whole frame Decode
// returns ErrIncomplete with n == 0, so the caller can retry from the same
// position once more bytes arrive. The returned payload does not alias b.
func Decode(b []byte, sizes *SizeTable) (f Frame, n int, err error) {
	if len(b) < 1 {
		return Frame{}, 0, ErrIncomplete
	}
	op := b[0]
	off := 1
	size := sizes.Size(op)
	kind := KindFixed
	switch size {
	case SizeRemaining:
		size = len(b) - off
	case SizeVarByte:
		if len(b) < off+1 {
			return Frame{}, 0, ErrIncomplete
		}
		kind = KindVarByte
		size = int(b[off])
		off++
	case SizeVarShort:
		if len(b) < off+2 {
			return Frame{}, 0, ErrIncomplete
		}
		kind = KindVarShort
		size = int(binary.BigEndian.Uint16(b[off:]))
		off += 2
	}
	if len(b)-off < size {
		return Frame{}, 0, ErrIncomplete
	}
	payload := make([]byte, size)
	copy(payload, b[off:off+size])
	return Frame{Opcode: int(op), Kind: kind, Payload: payload}, off + size, nil
}

// Append encodes f onto dst.
func Append(dst []byte, f Frame) ([]byte, error) {
	if f.IsRaw() {
		return append(dst, f.Payload...), nil
	}
	if f.Opcode < 0 || f.Opcode > 0xff {
		return dst, fmt.Errorf("%w: %d", ErrBadOpcode, f.Opcode)
	}
	n := len(f.Payload)
	switch f.Kind {
	case KindFixed:
		dst = append(dst, uint8(f.Opcode))
	case KindVarByte:
		if n > MaxVarByte {
			return dst, fmt.Errorf("%w: opcode %d carries %d bytes", ErrPayloadTooLarge, f.Opcode, n)
		}
		dst = append(dst, uint8(f.Opcode), uint8(n))
	case KindVarShort:
		if n > MaxVarShort {
			return dst, fmt.Errorf("%w: opcode %d carries %d bytes", ErrPayloadTooLarge, f.Opcode, n)
		}
		dst = append(dst, uint8(f.Opcode))
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		return dst, fmt.Errorf("%w: %d", ErrBadKind, f.Kind)
	}
	return append(dst, f.Payload...), nil
}

func Encode(f Frame) ([]byte, error) {
	return Append(make([]byte, 0, len(f.Payload)+3), f)
}

func WriteFrame(w io.Writer, f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
