package gateway

import (
	"go.uber.org/zap"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/frame"
)

// Handler processes one inbound game frame for an authenticated
// connection. Returning an error closes the connection.
type Handler func(c *Conn, f frame.Frame) error

// Dispatcher routes frames by opcode. Opcodes with no handler are logged
// at debug level and dropped.
type Dispatcher struct {
	handlers [256]Handler
}

// NewDispatcher returns a dispatcher with the built-in handlers installed.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	ignore := func(*Conn, frame.Frame) error { return nil }
	d.Handle(protocol.OpcodeKeepAlive, ignore)
	d.Handle(protocol.OpcodeFocusChange, ignore)
	d.Handle(protocol.OpcodeRegionLoaded, ignore)
	d.Handle(protocol.OpcodeIdleLogout, handleIdleLogout)
	d.Handle(protocol.OpcodeWalkMain, handleWalk)
	d.Handle(protocol.OpcodeWalkCommand, handleWalk)
	d.Handle(protocol.OpcodeWalkMinimap, handleWalk)
	return d
}

func (d *Dispatcher) Handle(op uint8, h Handler) {
	d.handlers[op] = h
}

func (d *Dispatcher) Dispatch(c *Conn, f frame.Frame) error {
	if f.Opcode < 0 || f.Opcode > 0xff {
		return nil
	}
	h := d.handlers[f.Opcode]
	if h == nil {
		c.Logger().Debug("unhandled frame", zap.Int("opcode", f.Opcode), zap.Int("len", len(f.Payload)))
		return nil
	}
	return h(c, f)
}
