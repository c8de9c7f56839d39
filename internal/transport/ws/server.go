// Package ws carries the game byte stream over WebSocket binary messages,
// for clients running in a browser.
package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lodestar.gg/internal/observability"
	"lodestar.gg/internal/transport/gateway"
)

type Config struct {
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

type Server struct {
	world gateway.World
	opts  gateway.Options
	cfg   Config
	log   *zap.Logger

	upgrader websocket.Upgrader

	// wg counts handlers; it is only added to under mu while not closing.
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
}

func NewServer(w gateway.World, opts gateway.Options, cfg Config, log *zap.Logger) *Server {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(r *http.Request) bool { return true } // dev default
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts.Transport = "ws"
	return &Server{
		world: w,
		opts:  opts,
		cfg:   cfg,
		log:   log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

// Shutdown refuses new upgrades, closes every live connection and waits
// until their players are disconnected or ctx is done. Upgraded
// connections are hijacked, so http.Server.Shutdown does not cover them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) track(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.begin() {
			http.Error(rw, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer s.wg.Done()

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		defer s.untrack(conn)
		done := observability.TrackConnection("ws")
		defer done()

		ch := &channel{conn: conn, timeout: s.cfg.WriteTimeout}
		gc := gateway.NewConn(ch, s.world, s.opts, s.log)
		defer gc.Close()

		start := time.Now()
		for {
			deadline := start.Add(s.cfg.HandshakeTimeout)
			if gc.Authenticated() {
				deadline = time.Now().Add(s.cfg.IdleTimeout)
			}
			_ = conn.SetReadDeadline(deadline)

			typ, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					gc.Logger().Debug("read", zap.Error(err))
				}
				return
			}
			if typ != websocket.BinaryMessage {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "binary frames only"),
					time.Now().Add(time.Second))
				return
			}
			if err := gc.Feed(msg); err != nil {
				return
			}
		}
	}
}

type channel struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *channel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *channel) Close() error { return c.conn.Close() }

func (c *channel) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Stream adapts a client side websocket.Conn to a byte stream, one binary
// message per Write.
type Stream struct {
	conn *websocket.Conn
	r    io.Reader
}

func NewStream(conn *websocket.Conn) *Stream { return &Stream{conn: conn} }

func (s *Stream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			typ, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if errors.Is(err, io.EOF) {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *Stream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Stream) SetDeadline(t time.Time) error {
	if err := s.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return s.conn.SetWriteDeadline(t)
}

func (s *Stream) Close() error { return s.conn.Close() }
