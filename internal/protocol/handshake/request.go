package handshake

import (
	"errors"
	"fmt"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/names"
	"lodestar.gg/internal/protocol/wire"
)

var ErrBlockTooLarge = errors.New("handshake: login block too large")

// Request is the client side of a login. It builds the bytes a Machine
// expects.
type Request struct {
	Reconnect bool
	LowMemory bool
	Revision  uint16 // zero means protocol.Revision
	CacheCRCs [protocol.CacheIndexCount]int32
	ClientKey int64
	ServerKey int64
	UID       int32
	Username  string
	Password  string
}

// Hello is the opening login request: opcode 14 and the name hash.
func Hello(username string) []byte {
	return []byte{protocol.OpcodeLoginRequest, names.Hash(names.Protocol(username))}
}

// ParseServerChoice extracts the server key from a 17 byte reply.
func ParseServerChoice(b []byte) (int64, error) {
	if len(b) < ServerChoiceLen {
		return 0, fmt.Errorf("handshake: server choice: %w", wire.ErrShortBuffer)
	}
	r := wire.NewReader(b[9:ServerChoiceLen])
	return r.ReadInt64()
}

// EncodeBlock renders the login opcode, size byte and login block.
func (req Request) EncodeBlock() ([]byte, error) {
	secure := wire.NewWriter(64)
	secure.WriteUint8(protocol.KeyExchangeMarker)
	secure.WriteInt64(req.ClientKey)
	secure.WriteInt64(req.ServerKey)
	secure.WriteInt32(req.UID)
	secure.WriteString(req.Username)
	secure.WriteString(req.Password)

	size := 1 + 2 + 1 + 4*protocol.CacheIndexCount + 1 + secure.Len()
	if size > 0xff || secure.Len() > 0xff {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, size)
	}

	op := uint8(protocol.OpcodeLoginFresh)
	if req.Reconnect {
		op = protocol.OpcodeLoginReconnect
	}
	rev := req.Revision
	if rev == 0 {
		rev = protocol.Revision
	}

	w := wire.NewWriter(2 + size)
	w.WriteUint8(op)
	w.WriteUint8(uint8(size))
	w.WriteUint8(protocol.FormatMarker)
	w.WriteUint16(rev)
	if req.LowMemory {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	for _, crc := range req.CacheCRCs {
		w.WriteInt32(crc)
	}
	w.WriteUint8(uint8(secure.Len()))
	w.WriteBytes(secure.Bytes())
	return w.Bytes(), nil
}
