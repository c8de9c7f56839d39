package gateway

import (
	"bytes"
	"errors"
	"testing"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/frame"
	"lodestar.gg/internal/protocol/handshake"
	"lodestar.gg/internal/sim/model"
	"lodestar.gg/internal/sim/world"
)

func TestWalkCodecRoundTrip(t *testing.T) {
	path := []model.Position{{X: 3222, Y: 3218}, {X: 3221, Y: 3217}, {X: 3230, Y: 3225}}
	for _, running := range []bool{false, true} {
		got, run, err := DecodeWalk(EncodeWalk(path, running))
		if err != nil {
			t.Fatal(err)
		}
		if run != running || len(got) != len(path) {
			t.Fatalf("running=%v: got %v run=%v", running, got, run)
		}
		for i := range path {
			if got[i] != path[i] {
				t.Fatalf("step %d: got %+v want %+v", i, got[i], path[i])
			}
		}
	}
}

func TestDecodeWalkRejectsBadLength(t *testing.T) {
	for _, n := range []int{0, 4, 6} {
		if _, _, err := DecodeWalk(make([]byte, n)); err == nil {
			t.Fatalf("len %d: expected error", n)
		}
	}
}

type sink struct {
	buf    bytes.Buffer
	closed bool
}

func (s *sink) Write(p []byte) error {
	s.buf.Write(p)
	return nil
}

func (s *sink) Close() error {
	s.closed = true
	return nil
}

func (s *sink) RemoteAddr() string { return "sink" }

type stubWorld struct {
	adm          world.Admission
	disconnected int
}

func (w *stubWorld) Register(s *model.Session, reconnect bool) world.Admission { return w.adm }
func (w *stubWorld) Disconnect(*model.Player, model.Channel) error {
	w.disconnected++
	return nil
}

func TestDispatcherCustomHandler(t *testing.T) {
	d := NewDispatcher()
	var seen []byte
	d.Handle(protocol.OpcodeChat, func(c *Conn, f frame.Frame) error {
		seen = f.Payload
		return nil
	})
	if err := d.Dispatch(nil, frame.New(protocol.OpcodeChat, frame.KindVarByte, []byte("hi"))); err != nil {
		t.Fatal(err)
	}
	if string(seen) != "hi" {
		t.Fatalf("payload: %q", seen)
	}
	if err := d.Dispatch(nil, frame.Raw([]byte{1})); err != nil {
		t.Fatalf("raw frame: %v", err)
	}
}

func TestConnBufferOverflow(t *testing.T) {
	ch := &sink{}
	c := NewConn(ch, &stubWorld{}, Options{MaxPending: 8}, nil)
	// An unknown request opcode waits for more input, so the bytes pile up.
	if err := c.Feed([]byte{99, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := c.Feed(make([]byte, 8)); !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("err: %v", err)
	}
	if !ch.closed {
		t.Fatal("channel left open")
	}
	if err := c.Feed([]byte{0}); !errors.Is(err, ErrClosed) {
		t.Fatalf("feed after close: %v", err)
	}
}

func TestConnAdmittedThenClosed(t *testing.T) {
	ch := &sink{}
	p := model.NewPlayer(5, model.NewSession("kim", "pw", ch))
	w := &stubWorld{adm: world.Admission{Kind: world.Admitted, Code: protocol.CodeSuccess, Player: p}}
	c := NewConn(ch, w, Options{Keys: handshake.KeyFunc(func() (int64, error) { return 7, nil })}, nil)

	if err := c.Feed(handshake.Hello("kim")); err != nil {
		t.Fatal(err)
	}
	ch.buf.Reset()
	block, err := handshake.Request{ServerKey: 7, Username: "kim", Password: "pw"}.EncodeBlock()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Feed(block); err != nil {
		t.Fatal(err)
	}
	if c.Player() != p {
		t.Fatal("player not set")
	}
	want := []byte{2, 0, 0, protocol.OpcodePlayerInit, 129, 133, 0}
	if !bytes.Equal(ch.buf.Bytes(), want) {
		t.Fatalf("wrote %v want %v", ch.buf.Bytes(), want)
	}

	c.Close()
	c.Close()
	if w.disconnected != 1 || !ch.closed {
		t.Fatalf("disconnected=%d closed=%v", w.disconnected, ch.closed)
	}
}

func TestConnRejectedWritesCode(t *testing.T) {
	ch := &sink{}
	w := &stubWorld{adm: world.Admission{Kind: world.Full}}
	c := NewConn(ch, w, Options{Keys: handshake.KeyFunc(func() (int64, error) { return 7, nil })}, nil)
	_ = c.Feed(handshake.Hello("kim"))
	ch.buf.Reset()
	block, _ := handshake.Request{ServerKey: 7, Username: "kim", Password: "pw"}.EncodeBlock()
	if err := c.Feed(block); !errors.Is(err, ErrRejected) {
		t.Fatalf("err: %v", err)
	}
	if !bytes.Equal(ch.buf.Bytes(), []byte{7}) {
		t.Fatalf("wrote %v", ch.buf.Bytes())
	}
	if w.disconnected != 0 {
		t.Fatal("rejected connection disconnected a player")
	}
}
