// Package gateway drives one client connection from its first byte to its
// last: the login handshake, admission into the world, then framed game
// traffic. It is transport agnostic; tcp and ws feed it bytes.
package gateway

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lodestar.gg/internal/observability"
	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/frame"
	"lodestar.gg/internal/protocol/handshake"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
	"lodestar.gg/internal/sim/world"
)

var (
	ErrClosed = errors.New("gateway: connection closed")
	// ErrRejected is returned by Feed after a login return code other
	// than success has been written.
	ErrRejected = errors.New("gateway: login rejected")
	// ErrLogout is returned by a handler that ends the session cleanly.
	ErrLogout = errors.New("gateway: logout")
	// ErrBufferOverflow means a peer sent more unparsed bytes than
	// Options.MaxPending allows.
	ErrBufferOverflow = errors.New("gateway: pending buffer overflow")
)

// World is the part of world.World a connection needs.
type World interface {
	Register(s *model.Session, reconnect bool) world.Admission
	Disconnect(p *model.Player, ch model.Channel) error
}

type Options struct {
	Transport  string // metrics label
	Sizes      *frame.SizeTable
	Dispatcher *Dispatcher
	Keys       handshake.KeySource
	Welcome    string
	MaxPending int
}

func (o *Options) applyDefaults() {
	if o.Transport == "" {
		o.Transport = "tcp"
	}
	if o.Sizes == nil {
		o.Sizes = frame.ClientSizes()
	}
	if o.Dispatcher == nil {
		o.Dispatcher = NewDispatcher()
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 16 * 1024
	}
}

// Conn is the state of one connection. It is owned by the goroutine that
// reads the connection; only Close may be called from elsewhere after that
// goroutine is gone.
type Conn struct {
	ch    model.Channel
	world World
	opts  Options
	log   *zap.Logger

	hs      *handshake.Machine
	pending []byte
	player  *model.Player
	closed  bool
}

func NewConn(ch model.Channel, w World, opts Options, log *zap.Logger) *Conn {
	opts.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		ch:    ch,
		world: w,
		opts:  opts,
		log:   log.With(zap.String("remote", ch.RemoteAddr())),
		hs:    handshake.New(opts.Keys),
	}
}

// Player is nil until the login succeeds.
func (c *Conn) Player() *model.Player { return c.player }

func (c *Conn) Authenticated() bool { return c.player != nil }

func (c *Conn) Logger() *zap.Logger { return c.log }

// Feed appends p to the connection's pending bytes and processes as much
// of them as possible. A non-nil error means the connection is finished
// and has been closed.
func (c *Conn) Feed(p []byte) error {
	if c.closed {
		return ErrClosed
	}
	c.pending = append(c.pending, p...)
	if len(c.pending) > c.opts.MaxPending {
		return c.fail(ErrBufferOverflow)
	}
	for {
		var (
			progressed bool
			err        error
		)
		if c.player == nil {
			progressed, err = c.stepHandshake()
		} else {
			progressed, err = c.stepFrame()
		}
		if err != nil {
			return c.fail(err)
		}
		if len(c.pending) == 0 {
			c.pending = nil
		}
		if !progressed {
			return nil
		}
	}
}

func (c *Conn) stepHandshake() (bool, error) {
	st := c.hs.Advance(c.pending)
	switch st.Outcome {
	case handshake.Suspend:
		return false, nil
	case handshake.Advance:
		c.pending = c.pending[st.Consumed:]
		if len(st.Reply) > 0 {
			if err := c.ch.Write(st.Reply); err != nil {
				return false, err
			}
		}
		return true, nil
	case handshake.Complete:
		c.pending = c.pending[st.Consumed:]
		observability.RecordHandshake(c.opts.Transport, "complete")
		return true, c.admit(st.Login)
	default:
		observability.RecordHandshake(c.opts.Transport, "rejected")
		c.log.Info("handshake rejected", zap.Error(st.Err))
		return false, st.Err
	}
}

func (c *Conn) admit(login handshake.Login) error {
	sess := model.NewSession(login.Username, login.Password, c.ch)
	adm := c.world.Register(sess, login.Reconnect)
	code := adm.ReturnCode()
	if adm.Kind != world.Admitted {
		c.log.Info("login refused", zap.String("username", login.Username), zap.Stringer("code", code))
		if err := c.ch.Write([]byte{uint8(code)}); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRejected, code)
	}

	// Set before writing so a failed write still unregisters on close.
	c.player = adm.Player
	flagged := uint8(0)
	if c.player.Flagged() {
		flagged = 1
	}
	if err := c.ch.Write([]byte{uint8(protocol.CodeSuccess), uint8(c.player.Right()), flagged}); err != nil {
		return err
	}
	return c.initialize()
}

// initialize sends the frames a client expects right after a successful
// login.
func (c *Conn) initialize() error {
	w := wire.NewWriter(3)
	w.WriteByteA(1) // members
	w.WriteLEShortA(uint16(c.player.Index()))
	if err := c.Send(frame.New(protocol.OpcodePlayerInit, frame.KindFixed, w.Bytes())); err != nil {
		return err
	}
	if c.opts.Welcome != "" {
		return c.SendMessage(c.opts.Welcome)
	}
	return nil
}

func (c *Conn) stepFrame() (bool, error) {
	if len(c.pending) == 0 {
		return false, nil
	}
	f, n, err := frame.Decode(c.pending, c.opts.Sizes)
	if errors.Is(err, frame.ErrIncomplete) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.pending = c.pending[n:]
	observability.RecordFrame("in")
	return true, c.opts.Dispatcher.Dispatch(c, f)
}

// Send encodes f and writes it to the client.
func (c *Conn) Send(f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := c.ch.Write(b); err != nil {
		return err
	}
	observability.RecordFrame("out")
	return nil
}

// SendMessage writes a chat box message.
func (c *Conn) SendMessage(msg string) error {
	w := wire.NewWriter(len(msg) + 1)
	w.WriteString(msg)
	return c.Send(frame.New(protocol.OpcodeGameMessage, frame.KindVarByte, w.Bytes()))
}

func (c *Conn) fail(err error) error {
	switch {
	case errors.Is(err, ErrLogout):
		c.log.Debug("logout requested")
	case errors.Is(err, ErrRejected), errors.Is(err, handshake.ErrRejected):
	default:
		c.log.Warn("connection error", zap.Error(err))
	}
	c.Close()
	return err
}

// Close releases the player, if any, and closes the channel. It is safe to
// call more than once.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.player != nil {
		if err := c.world.Disconnect(c.player, c.ch); err != nil {
			c.log.Warn("disconnect", zap.Stringer("player", c.player), zap.Error(err))
		}
	}
	_ = c.ch.Close()
}
