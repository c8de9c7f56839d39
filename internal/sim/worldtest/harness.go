// Package worldtest drives a world through its exported APIs for tests:
// an in-memory save store, recording channels, and a client that speaks
// the login handshake against a gateway connection.
package worldtest

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"lodestar.gg/internal/persistence/playerstore"
	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/handshake"
	"lodestar.gg/internal/sim/model"
	world "lodestar.gg/internal/sim/world"
	"lodestar.gg/internal/transport/gateway"
)

// MemoryStore is a playerstore.Store backed by a map. Setting Err makes
// every call fail with it.
type MemoryStore struct {
	mu    sync.Mutex
	saves map[string][]byte
	loads int
	Err   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{saves: map[string][]byte{}}
}

func (s *MemoryStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.Err != nil {
		return nil, s.Err
	}
	b, ok := s.saves[key]
	if !ok {
		return nil, playerstore.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.saves[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Loads counts Load calls.
func (s *MemoryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.saves[key]
	return b, ok
}

func (s *MemoryStore) SetErr(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// Channel records everything written to it.
type Channel struct {
	Addr string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func NewChannel(addr string) *Channel { return &Channel{Addr: addr} }

func (c *Channel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("write on closed channel %s", c.Addr)
	}
	c.buf.Write(p)
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Channel) RemoteAddr() string { return c.Addr }

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Take returns and clears the bytes written so far.
func (c *Channel) Take() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return out
}

// Harness owns a world backed by a MemoryStore.
type Harness struct {
	T     *testing.T
	W     *world.World
	Store *MemoryStore
	Opts  gateway.Options

	nextKey int64
}

func NewHarness(t *testing.T, capacity int) *Harness {
	t.Helper()
	store := NewMemoryStore()
	log := zaptest.NewLogger(t)
	w, err := world.New(world.Config{Capacity: capacity}, playerstore.NewAdapter(store, log), log)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	h := &Harness{T: t, W: w, Store: store, nextKey: 0x5eed}
	h.Opts = gateway.Options{
		Transport: "test",
		Welcome:   "Welcome.",
		Keys: handshake.KeyFunc(func() (int64, error) {
			h.nextKey++
			return h.nextKey, nil
		}),
	}
	return h
}

// Client is one simulated connection.
type Client struct {
	Conn *gateway.Conn
	Ch   *Channel
}

func (h *Harness) Connect(addr string) *Client {
	ch := NewChannel(addr)
	return &Client{
		Conn: gateway.NewConn(ch, h.W, h.Opts, zaptest.NewLogger(h.T)),
		Ch:   ch,
	}
}

// Result is what a client saw after sending its login block.
type Result struct {
	Code    protocol.ReturnCode
	Rights  uint8
	Flagged bool
	Rest    []byte // frames written after the login response
	Err     error  // returned by Feed
}

// Login runs the whole handshake for req. req.ServerKey is filled from the
// server's reply unless keepServerKey is set.
func (c *Client) Login(t *testing.T, req handshake.Request, keepServerKey bool) Result {
	t.Helper()
	if err := c.Conn.Feed(handshake.Hello(req.Username)); err != nil {
		t.Fatalf("hello: %v", err)
	}
	reply := c.Ch.Take()
	key, err := handshake.ParseServerChoice(reply)
	if err != nil {
		t.Fatalf("server choice: %v (%v)", err, reply)
	}
	if !keepServerKey {
		req.ServerKey = key
	}
	block, err := req.EncodeBlock()
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	var res Result
	res.Err = c.Conn.Feed(block)
	out := c.Ch.Take()
	if len(out) == 0 {
		return res
	}
	res.Code = protocol.ReturnCode(out[0])
	out = out[1:]
	if res.Code == protocol.CodeSuccess && len(out) >= 2 {
		res.Rights = out[0]
		res.Flagged = out[1] == 1
		out = out[2:]
	}
	res.Rest = out
	return res
}

// Request builds a login request with the given credentials.
func Request(username, password string) handshake.Request {
	return handshake.Request{ClientKey: 99, UID: 1, Username: username, Password: password}
}

// Occupy fills slots directly through the world until it is full.
func (h *Harness) Occupy(n int) []*model.Player {
	h.T.Helper()
	var out []*model.Player
	for i := 0; i < n; i++ {
		s := model.NewSession(fmt.Sprintf("Filler %d", i), "pw", NewChannel(fmt.Sprintf("filler:%d", i)))
		adm := h.W.Register(s, false)
		if adm.Kind != world.Admitted {
			h.T.Fatalf("occupy %d: %s (%s)", i, adm.Kind, adm.Code)
		}
		out = append(out, adm.Player)
	}
	return out
}
