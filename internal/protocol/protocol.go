package protocol

// Revision is the only client build the login block accepts.
const Revision = 317

// Handshake opcodes and markers.
const (
	OpcodeLoginRequest   = 14
	OpcodeLoginFresh     = 16
	OpcodeLoginReconnect = 18

	FormatMarker       = 255
	KeyExchangeMarker  = 10
	StringTerminator   = 10
	CacheIndexCount    = 9
	LoginBlockOverhead = 40
)

// Server-to-client game frame opcodes.
const (
	OpcodePlayerInit  = 249
	OpcodeGameMessage = 253
)

// Client-to-server game frame opcodes.
const (
	OpcodeKeepAlive    = 0
	OpcodeFocusChange  = 3
	OpcodeChat         = 4
	OpcodeCamera       = 86
	OpcodeWalkCommand  = 98
	OpcodeCommand      = 103
	OpcodeRegionLoaded = 121
	OpcodeWalkMain     = 164
	OpcodeButton       = 185
	OpcodeIdleLogout   = 202
	OpcodeMapRegion    = 210
	OpcodeMouseClick   = 241
	OpcodeWalkMinimap  = 248
)

// MinimapTrailer is the anti-cheat tail a minimap walk frame carries
// after its path.
const MinimapTrailer = 14
