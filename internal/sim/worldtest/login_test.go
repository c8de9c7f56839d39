package worldtest

import (
	"bytes"
	"errors"
	"testing"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/frame"
	"lodestar.gg/internal/protocol/handshake"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
	"lodestar.gg/internal/transport/gateway"
)

func TestLogin_FreshAccount(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")

	res := c.Login(t, Request("John Doe", "hunter2"), false)
	if res.Err != nil {
		t.Fatalf("feed: %v", res.Err)
	}
	if res.Code != protocol.CodeSuccess || res.Rights != 0 || res.Flagged {
		t.Fatalf("result: %+v", res)
	}

	want := []byte{protocol.OpcodePlayerInit, 129, 129, 0}
	want = append(want, protocol.OpcodeGameMessage, 9)
	want = append(want, "Welcome.\n"...)
	if !bytes.Equal(res.Rest, want) {
		t.Fatalf("init frames: got %v want %v", res.Rest, want)
	}

	if h.W.Online() != 1 || !c.Conn.Authenticated() {
		t.Fatalf("online=%d authenticated=%v", h.W.Online(), c.Conn.Authenticated())
	}
	if c.Conn.Player().Index() != 1 {
		t.Fatalf("index: %d", c.Conn.Player().Index())
	}
	if _, ok := h.Store.Get("john_doe"); !ok {
		t.Fatalf("account save not created")
	}
}

func TestLogin_WrongServerKey(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")

	req := Request("alice", "pw")
	req.ServerKey = (0x5eed + 1) ^ 1
	res := c.Login(t, req, true)
	if !errors.Is(res.Err, handshake.ErrRejected) {
		t.Fatalf("err: %v", res.Err)
	}
	if res.Code != 0 || len(res.Rest) != 0 {
		t.Fatalf("expected no response byte, got %+v", res)
	}
	if !c.Ch.Closed() {
		t.Fatalf("channel left open")
	}
	if h.Store.Loads() != 0 || h.W.Online() != 0 {
		t.Fatalf("loads=%d online=%d", h.Store.Loads(), h.W.Online())
	}
}

func TestLogin_WorldFull(t *testing.T) {
	h := NewHarness(t, 2)
	h.Occupy(2)
	loads := h.Store.Loads()

	c := h.Connect("10.0.0.1:1")
	res := c.Login(t, Request("latecomer", "pw"), false)
	if res.Code != protocol.CodeWorldFull {
		t.Fatalf("code: %s", res.Code)
	}
	if !errors.Is(res.Err, gateway.ErrRejected) {
		t.Fatalf("err: %v", res.Err)
	}
	if h.Store.Loads() != loads {
		t.Fatalf("persistence consulted for a full world")
	}
	if !c.Ch.Closed() || h.W.Online() != 2 {
		t.Fatalf("closed=%v online=%d", c.Ch.Closed(), h.W.Online())
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := NewHarness(t, 4)
	first := h.Connect("10.0.0.1:1")
	if res := first.Login(t, Request("bob", "right"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("first login: %s", res.Code)
	}
	if err := first.Conn.Feed([]byte{protocol.OpcodeIdleLogout}); !errors.Is(err, gateway.ErrLogout) {
		t.Fatalf("logout: %v", err)
	}

	second := h.Connect("10.0.0.1:2")
	res := second.Login(t, Request("bob", "wrong"), false)
	if res.Code != protocol.CodeInvalidDetails {
		t.Fatalf("code: %s", res.Code)
	}
	if h.W.Online() != 0 {
		t.Fatalf("slot held after rejection: %d", h.W.Online())
	}
}

func TestLogin_InvalidName(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")
	res := c.Login(t, Request("bad-name!", "pw"), false)
	if res.Code != protocol.CodeInvalidDetails {
		t.Fatalf("code: %s", res.Code)
	}
	if h.Store.Loads() != 0 {
		t.Fatalf("store consulted for an invalid name")
	}
}

func TestLogin_Banned(t *testing.T) {
	h := NewHarness(t, 4)
	w := wire.NewWriter(32)
	model.Record{Username: "Mallory", Password: "pw", Rights: -1}.Save(w)
	if err := h.Store.Save("mallory", w.Bytes()); err != nil {
		t.Fatal(err)
	}

	res := h.Connect("10.0.0.1:1").Login(t, Request("Mallory", "pw"), false)
	if res.Code != protocol.CodeBanned {
		t.Fatalf("code: %s", res.Code)
	}
	if h.W.Online() != 0 {
		t.Fatalf("online: %d", h.W.Online())
	}
}

func TestLogin_SavedRightsAndFlag(t *testing.T) {
	h := NewHarness(t, 4)
	w := wire.NewWriter(32)
	model.Record{Username: "mod", Password: "pw", Rights: 1, Flagged: true}.Save(w)
	if err := h.Store.Save("mod", w.Bytes()); err != nil {
		t.Fatal(err)
	}

	res := h.Connect("10.0.0.1:1").Login(t, Request("mod", "pw"), false)
	if res.Code != protocol.CodeSuccess || res.Rights != 1 || !res.Flagged {
		t.Fatalf("result: %+v", res)
	}
}

func TestLogin_AlreadyLoggedIn(t *testing.T) {
	h := NewHarness(t, 4)
	if res := h.Connect("10.0.0.1:1").Login(t, Request("carol", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("first: %s", res.Code)
	}
	res := h.Connect("10.0.0.1:2").Login(t, Request("Carol", "pw"), false)
	if res.Code != protocol.CodeAlreadyLoggedIn {
		t.Fatalf("second: %s", res.Code)
	}
	if h.W.Online() != 1 {
		t.Fatalf("online: %d", h.W.Online())
	}
}

func TestLogin_ReconnectReattaches(t *testing.T) {
	h := NewHarness(t, 4)
	a := h.Connect("10.0.0.1:1")
	if res := a.Login(t, Request("dave", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("first: %s", res.Code)
	}
	p := a.Conn.Player()

	req := Request("dave", "pw")
	req.Reconnect = true
	b := h.Connect("10.0.0.1:2")
	res := b.Login(t, req, false)
	if res.Code != protocol.CodeSuccess {
		t.Fatalf("reconnect: %s", res.Code)
	}
	if b.Conn.Player() != p {
		t.Fatalf("reconnect produced a new player")
	}
	if !a.Ch.Closed() {
		t.Fatalf("old channel left open")
	}

	// The old connection noticing its closed socket must not log dave out.
	a.Conn.Close()
	if h.W.Online() != 1 {
		t.Fatalf("online after stale close: %d", h.W.Online())
	}

	b.Conn.Close()
	if h.W.Online() != 0 {
		t.Fatalf("online after close: %d", h.W.Online())
	}
}

func TestLogin_ReconnectWrongPassword(t *testing.T) {
	h := NewHarness(t, 4)
	if res := h.Connect("10.0.0.1:1").Login(t, Request("erin", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("first: %s", res.Code)
	}
	req := Request("erin", "nope")
	req.Reconnect = true
	if res := h.Connect("10.0.0.1:2").Login(t, req, false); res.Code != protocol.CodeAlreadyLoggedIn {
		t.Fatalf("code: %s", res.Code)
	}
}

func TestLogin_StorageFailure(t *testing.T) {
	h := NewHarness(t, 1)
	h.Store.SetErr(errors.New("disk on fire"))

	res := h.Connect("10.0.0.1:1").Login(t, Request("frank", "pw"), false)
	if res.Code != protocol.CodeCouldNotCompleteLogin {
		t.Fatalf("code: %s", res.Code)
	}
	if h.W.Online() != 0 {
		t.Fatalf("slot not released: %d", h.W.Online())
	}

	h.Store.SetErr(nil)
	if res := h.Connect("10.0.0.1:2").Login(t, Request("frank", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("retry: %s", res.Code)
	}
}

func TestLogin_ByteAtATime(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")

	for _, b := range handshake.Hello("gina") {
		if err := c.Conn.Feed([]byte{b}); err != nil {
			t.Fatal(err)
		}
	}
	key, err := handshake.ParseServerChoice(c.Ch.Take())
	if err != nil {
		t.Fatal(err)
	}
	req := Request("gina", "pw")
	req.ServerKey = key
	block, err := req.EncodeBlock()
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range block {
		if err := c.Conn.Feed([]byte{b}); err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if i < len(block)-1 && c.Conn.Authenticated() {
			t.Fatalf("authenticated after %d of %d bytes", i+1, len(block))
		}
	}
	if !c.Conn.Authenticated() {
		t.Fatalf("not authenticated")
	}
}

func TestIdleLogoutSaves(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")
	if res := c.Login(t, Request("hank", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("login: %s", res.Code)
	}
	c.Conn.Player().SetFlagged(true)

	if err := c.Conn.Feed([]byte{protocol.OpcodeIdleLogout}); !errors.Is(err, gateway.ErrLogout) {
		t.Fatalf("feed: %v", err)
	}
	if h.W.Online() != 0 || !c.Ch.Closed() {
		t.Fatalf("online=%d closed=%v", h.W.Online(), c.Ch.Closed())
	}

	data, ok := h.Store.Get("hank")
	if !ok {
		t.Fatal("no save")
	}
	var rec model.Record
	rec.Load(wire.NewReader(data))
	if !rec.Flagged || rec.Password != "pw" {
		t.Fatalf("saved record: %+v", rec)
	}
}

func TestWalkFrameMovesPlayer(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")
	if res := c.Login(t, Request("ivy", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("login: %s", res.Code)
	}

	path := []model.Position{{X: 3222, Y: 3218}, {X: 3223, Y: 3218}, {X: 3224, Y: 3219}}
	b, err := frame.Encode(frame.New(protocol.OpcodeWalkMain, frame.KindVarByte, gateway.EncodeWalk(path, true)))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Conn.Feed(b); err != nil {
		t.Fatal(err)
	}

	p := c.Conn.Player()
	if p.WalkingQueue().Len() != 3 || !p.WalkingQueue().Running() {
		t.Fatalf("queue len=%d running=%v", p.WalkingQueue().Len(), p.WalkingQueue().Running())
	}
	h.W.Step()
	h.W.Step()
	if got := p.Position(); got.X != 3223 || got.Y != 3218 {
		t.Fatalf("position after two ticks: %+v", got)
	}
}

func TestFramesSplitAcrossFeeds(t *testing.T) {
	h := NewHarness(t, 4)
	c := h.Connect("10.0.0.1:1")
	if res := c.Login(t, Request("jack", "pw"), false); res.Code != protocol.CodeSuccess {
		t.Fatalf("login: %s", res.Code)
	}

	var stream []byte
	stream = append(stream, protocol.OpcodeKeepAlive)
	stream = append(stream, protocol.OpcodeFocusChange, 1)
	walk, _ := frame.Encode(frame.New(protocol.OpcodeWalkCommand, frame.KindVarByte,
		gateway.EncodeWalk([]model.Position{{X: 3200, Y: 3200}}, false)))
	stream = append(stream, walk...)

	for len(stream) > 0 {
		n := 2
		if n > len(stream) {
			n = len(stream)
		}
		if err := c.Conn.Feed(stream[:n]); err != nil {
			t.Fatal(err)
		}
		stream = stream[n:]
	}
	if c.Conn.Player().WalkingQueue().Len() != 1 {
		t.Fatalf("walk not dispatched")
	}
}

func TestSaveAll(t *testing.T) {
	h := NewHarness(t, 4)
	players := h.Occupy(3)
	players[1].SetRight(model.RightAdministrator)

	if err := h.W.SaveAll(); err != nil {
		t.Fatal(err)
	}
	data, ok := h.Store.Get("filler_1")
	if !ok {
		t.Fatal("filler_1 not saved")
	}
	var rec model.Record
	rec.Load(wire.NewReader(data))
	if rec.Rights != int16(model.RightAdministrator) {
		t.Fatalf("rights: %d", rec.Rights)
	}

	h.Store.SetErr(errors.New("read only"))
	if err := h.W.SaveAll(); err == nil {
		t.Fatal("expected joined save error")
	}
}
