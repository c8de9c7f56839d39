package frame

import "lodestar.gg/internal/protocol"

// Size table sentinels. Any value >= 0 is a fixed payload size.
const (
	SizeRemaining = -1 // payload is every byte currently available
	SizeVarByte   = -2
	SizeVarShort  = -3
)

// SizeTable maps an inbound opcode to its payload size.
type SizeTable [256]int

// NewSizeTable returns a table where every opcode consumes the remaining
// bytes.
func NewSizeTable() *SizeTable {
	t := new(SizeTable)
	for i := range t {
		t[i] = SizeRemaining
	}
	return t
}

func (t *SizeTable) Set(op uint8, size int) *SizeTable {
	t[op] = size
	return t
}

// Size resolves op. A nil table treats every opcode as SizeRemaining.
func (t *SizeTable) Size(op uint8) int {
	if t == nil {
		return SizeRemaining
	}
	return t[op]
}

// ClientSizes is the inbound table for the messages this server understands.
func ClientSizes() *SizeTable {
	t := NewSizeTable()
	t.Set(protocol.OpcodeKeepAlive, 0).
		Set(protocol.OpcodeFocusChange, 1).
		Set(protocol.OpcodeChat, SizeVarByte).
		Set(protocol.OpcodeCamera, 4).
		Set(protocol.OpcodeWalkCommand, SizeVarByte).
		Set(protocol.OpcodeCommand, SizeVarByte).
		Set(protocol.OpcodeRegionLoaded, 0).
		Set(protocol.OpcodeWalkMain, SizeVarByte).
		Set(protocol.OpcodeButton, 2).
		Set(protocol.OpcodeIdleLogout, 0).
		Set(protocol.OpcodeMapRegion, 4).
		Set(protocol.OpcodeMouseClick, 4).
		Set(protocol.OpcodeWalkMinimap, SizeVarByte)
	return t
}

// ServerSizes is the table a client uses to read what this server sends.
func ServerSizes() *SizeTable {
	t := NewSizeTable()
	t.Set(protocol.OpcodePlayerInit, 3).
		Set(protocol.OpcodeGameMessage, SizeVarByte)
	return t
}
