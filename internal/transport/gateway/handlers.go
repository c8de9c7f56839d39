package gateway

import (
	"fmt"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/frame"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
)

func handleIdleLogout(*Conn, frame.Frame) error {
	return ErrLogout
}

func handleWalk(c *Conn, f frame.Frame) error {
	payload := f.Payload
	if f.Opcode == protocol.OpcodeWalkMinimap {
		if len(payload) < protocol.MinimapTrailer {
			return fmt.Errorf("gateway: minimap walk of %d bytes", len(payload))
		}
		payload = payload[:len(payload)-protocol.MinimapTrailer]
	}
	path, running, err := DecodeWalk(payload)
	if err != nil {
		return err
	}
	c.Player().WalkingQueue().Replace(path, running)
	return nil
}

// DecodeWalk parses a walk request: the first step's x as a little-endian
// short A, each later step as a signed byte pair relative to the first,
// the first step's y as a little-endian short and a negated run flag.
func DecodeWalk(b []byte) ([]model.Position, bool, error) {
	if len(b) < 5 || (len(b)-5)%2 != 0 {
		return nil, false, fmt.Errorf("gateway: walk payload of %d bytes", len(b))
	}
	steps := (len(b) - 5) / 2
	r := wire.NewReader(b)
	firstX, _ := r.ReadLEShortA()
	offsets := make([][2]int8, steps)
	for i := range offsets {
		dx, _ := r.ReadInt8()
		dy, _ := r.ReadInt8()
		offsets[i] = [2]int8{dx, dy}
	}
	firstY, _ := r.ReadLEShort()
	run, err := r.ReadByteC()
	if err != nil {
		return nil, false, err
	}

	path := make([]model.Position, 0, steps+1)
	path = append(path, model.Position{X: int(firstX), Y: int(firstY)})
	for _, o := range offsets {
		path = append(path, model.Position{X: int(firstX) + int(o[0]), Y: int(firstY) + int(o[1])})
	}
	return path, run == 1, nil
}

// EncodeWalk is the client side of DecodeWalk.
func EncodeWalk(path []model.Position, running bool) []byte {
	if len(path) == 0 {
		return nil
	}
	first := path[0]
	w := wire.NewWriter(5 + 2*(len(path)-1))
	w.WriteLEShortA(uint16(first.X))
	for _, p := range path[1:] {
		w.WriteInt8(int8(p.X - first.X))
		w.WriteInt8(int8(p.Y - first.Y))
	}
	w.WriteLEShort(uint16(first.Y))
	if running {
		w.WriteByteC(1)
	} else {
		w.WriteByteC(0)
	}
	return w.Bytes()
}
