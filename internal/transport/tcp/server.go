// Package tcp serves game clients over raw TCP sockets.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"lodestar.gg/internal/observability"
	"lodestar.gg/internal/transport/gateway"
)

type Config struct {
	// HandshakeTimeout bounds the time from accept to a completed login.
	HandshakeTimeout time.Duration
	// IdleTimeout closes an authenticated connection that sends nothing.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	ReadBuffer   int
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = 4096
	}
}

type Server struct {
	world gateway.World
	opts  gateway.Options
	cfg   Config
	log   *zap.Logger

	wg sync.WaitGroup
}

func NewServer(w gateway.World, opts gateway.Options, cfg Config, log *zap.Logger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	opts.Transport = "tcp"
	return &Server{world: w, opts: opts, cfg: cfg, log: log.Named("tcp")}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and
// every open connection and waits for their goroutines to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff < time.Second {
					backoff *= 2
				}
				s.log.Warn("accept", zap.Error(err), zap.Duration("retry_in", backoff))
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	done := observability.TrackConnection("tcp")
	defer done()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	ch := &channel{conn: conn, timeout: s.cfg.WriteTimeout}
	gc := gateway.NewConn(ch, s.world, s.opts, s.log)
	defer gc.Close()

	start := time.Now()
	buf := make([]byte, s.cfg.ReadBuffer)
	for {
		deadline := start.Add(s.cfg.HandshakeTimeout)
		if gc.Authenticated() {
			deadline = time.Now().Add(s.cfg.IdleTimeout)
		}
		_ = conn.SetReadDeadline(deadline)

		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := gc.Feed(buf[:n]); ferr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				gc.Logger().Debug("read", zap.Error(err))
			}
			return
		}
	}
}

// channel serializes writes to a socket. Anything holding the player's
// session may write to it, not only the connection goroutine.
type channel struct {
	conn    net.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *channel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err := c.conn.Write(p)
	return err
}

func (c *channel) Close() error { return c.conn.Close() }

func (c *channel) RemoteAddr() string { return c.conn.RemoteAddr().String() }
