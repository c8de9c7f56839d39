// Package client is the player side of the login handshake and the game
// frames that follow it. The bot command and the transport tests use it.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/frame"
	"lodestar.gg/internal/protocol/handshake"
	"lodestar.gg/internal/sim/model"
	"lodestar.gg/internal/transport/gateway"
	"lodestar.gg/internal/transport/ws"
)

// ErrRefused wraps the return code of a login the server turned down.
var ErrRefused = errors.New("client: login refused")

type Credentials struct {
	Username  string
	Password  string
	Reconnect bool
	LowMemory bool
	UID       int32
}

// Session is a logged in connection.
type Session struct {
	Code    protocol.ReturnCode
	Rights  model.Right
	Flagged bool

	rw    io.ReadWriteCloser
	r     *bufio.Reader
	buf   []byte
	sizes *frame.SizeTable
}

// Dial opens a TCP connection to addr and logs in.
func Dial(ctx context.Context, addr string, creds Credentials) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	s, err := Login(ctx, conn, creds)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// DialWS connects to a websocket endpoint such as ws://host/v1/game and
// logs in.
func DialWS(ctx context.Context, url string, creds Credentials) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	stream := ws.NewStream(conn)
	s, err := Login(ctx, stream, creds)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	return s, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Login runs the handshake over rw. A refused login returns an error
// wrapping ErrRefused; the session's Code still carries the byte the
// server sent.
func Login(ctx context.Context, rw io.ReadWriteCloser, creds Credentials) (*Session, error) {
	if dl, ok := rw.(deadliner); ok {
		if d, has := ctx.Deadline(); has {
			_ = dl.SetDeadline(d)
			defer dl.SetDeadline(time.Time{})
		}
	}
	s := &Session{rw: rw, r: bufio.NewReader(rw), sizes: frame.ServerSizes()}

	if _, err := rw.Write(handshake.Hello(creds.Username)); err != nil {
		return nil, fmt.Errorf("client: hello: %w", err)
	}
	reply := make([]byte, handshake.ServerChoiceLen)
	if _, err := io.ReadFull(s.r, reply); err != nil {
		return nil, fmt.Errorf("client: server choice: %w", err)
	}
	serverKey, err := handshake.ParseServerChoice(reply)
	if err != nil {
		return nil, err
	}
	clientKey, err := handshake.RandomKeys{}.NextKey()
	if err != nil {
		return nil, err
	}

	block, err := handshake.Request{
		Reconnect: creds.Reconnect,
		LowMemory: creds.LowMemory,
		ClientKey: clientKey,
		ServerKey: serverKey,
		UID:       creds.UID,
		Username:  creds.Username,
		Password:  creds.Password,
	}.EncodeBlock()
	if err != nil {
		return nil, err
	}
	if _, err := rw.Write(block); err != nil {
		return nil, fmt.Errorf("client: login block: %w", err)
	}

	code, err := s.r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("client: return code: %w", err)
	}
	s.Code = protocol.ReturnCode(code)
	if s.Code != protocol.CodeSuccess {
		return s, fmt.Errorf("%w: %s", ErrRefused, s.Code)
	}
	var tail [2]byte
	if _, err := io.ReadFull(s.r, tail[:]); err != nil {
		return nil, fmt.Errorf("client: login response: %w", err)
	}
	s.Rights = model.Right(tail[0])
	s.Flagged = tail[1] == 1
	return s, nil
}

// Next reads the next frame from the server.
func (s *Session) Next() (frame.Frame, error) {
	for {
		f, n, err := frame.Decode(s.buf, s.sizes)
		if err == nil {
			s.buf = s.buf[n:]
			return f, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return frame.Frame{}, err
		}
		var chunk [512]byte
		m, err := s.r.Read(chunk[:])
		if m > 0 {
			s.buf = append(s.buf, chunk[:m]...)
			continue
		}
		if err != nil {
			return frame.Frame{}, err
		}
	}
}

func (s *Session) Send(f frame.Frame) error {
	return frame.WriteFrame(s.rw, f)
}

// Walk asks the server to move along path.
func (s *Session) Walk(path []model.Position, running bool) error {
	return s.Send(frame.New(protocol.OpcodeWalkMain, frame.KindVarByte, gateway.EncodeWalk(path, running)))
}

func (s *Session) KeepAlive() error {
	return s.Send(frame.New(protocol.OpcodeKeepAlive, frame.KindFixed, nil))
}

// Logout sends the idle logout frame. The server closes the connection
// after it.
func (s *Session) Logout() error {
	return s.Send(frame.New(protocol.OpcodeIdleLogout, frame.KindFixed, nil))
}

func (s *Session) Close() error { return s.rw.Close() }
