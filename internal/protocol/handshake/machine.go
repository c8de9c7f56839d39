// Package handshake decodes the pre-authentication exchange of a
// connection: the login request, the server key reply and the login block.
//
// A Machine belongs to exactly one connection. The caller hands it every
// unconsumed byte it holds; the machine answers with a Step saying how many
// bytes to drop and what, if anything, to write back. A Suspend step
// changes nothing, so the caller may retry with the same bytes plus more.
package handshake

import (
	"fmt"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/names"
	"lodestar.gg/internal/protocol/wire"
)

type Phase uint8

const (
	PhaseRequest Phase = iota
	PhaseServerChoice
	PhaseGame
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseRequest:
		return "request"
	case PhaseServerChoice:
		return "server_choice"
	case PhaseGame:
		return "game"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

type Outcome uint8

const (
	Suspend  Outcome = iota // need more bytes, nothing consumed
	Advance                 // phase moved on; drop Consumed, write Reply
	Complete                // login block accepted; Login is set
	Fail                    // close the connection; Err is set
)

func (o Outcome) String() string {
	switch o {
	case Suspend:
		return "suspend"
	case Advance:
		return "advance"
	case Complete:
		return "complete"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Step is the result of one Machine.Advance call.
type Step struct {
	Outcome  Outcome
	Consumed int
	Reply    []byte
	Login    Login
	Err      error
}

// Login is what a valid login block carries.
type Login struct {
	Reconnect bool
	LowMemory bool
	ClientKey int64
	ServerKey int64
	UID       int32
	Username  string // display form, e.g. "John Doe"
	Password  string
}

// ServerChoiceLen is the size of the reply to a login request: an 8 byte
// preamble, a separator byte and the server key.
const ServerChoiceLen = 17

// Machine is the per-connection handshake state.
type Machine struct {
	phase     Phase
	serverKey int64
	keys      KeySource
}

// New returns a machine in PhaseRequest. A nil KeySource uses RandomKeys.
func New(keys KeySource) *Machine {
	if keys == nil {
		keys = RandomKeys{}
	}
	return &Machine{keys: keys}
}

func (m *Machine) Phase() Phase { return m.phase }

// ServerKey is the key issued to this connection, or 0 before
// PhaseGame.
func (m *Machine) ServerKey() int64 { return m.serverKey }

// Advance runs the current phase against in, which must start at the first
// byte the machine has not yet consumed.
func (m *Machine) Advance(in []byte) Step {
	switch m.phase {
	case PhaseRequest:
		return m.advanceRequest(in)
	case PhaseServerChoice:
		return m.advanceServerChoice(in)
	case PhaseGame:
		return m.advanceGame(in)
	case PhaseDone:
		return m.fail(reject(PhaseDone, "handshake already complete"))
	default:
		return Step{Outcome: Fail, Err: reject(m.phase, "connection already rejected")}
	}
}

func (m *Machine) advanceRequest(in []byte) Step {
	if len(in) < 1 || in[0] != protocol.OpcodeLoginRequest {
		// Anything but a login request is left for a later read; the
		// transport's handshake timeout ends a connection stuck here.
		return Step{Outcome: Suspend}
	}
	m.phase = PhaseServerChoice
	return Step{Outcome: Advance, Consumed: 1}
}

func (m *Machine) advanceServerChoice(in []byte) Step {
	if len(in) < 1 {
		return Step{Outcome: Suspend}
	}
	key, err := m.keys.NextKey()
	if err != nil {
		return m.fail(reject(PhaseServerChoice, "%v", err))
	}
	w := wire.NewWriter(ServerChoiceLen)
	w.WriteInt64(0)
	w.WriteUint8(0)
	w.WriteInt64(key)
	m.serverKey = key
	m.phase = PhaseGame
	return Step{Outcome: Advance, Consumed: 1, Reply: w.Bytes()}
}

func (m *Machine) advanceGame(in []byte) Step {
	if len(in) < 2 {
		return Step{Outcome: Suspend}
	}
	op := in[0]
	if op != protocol.OpcodeLoginFresh && op != protocol.OpcodeLoginReconnect {
		return m.fail(reject(PhaseGame, "login opcode %d", op))
	}
	size := int(in[1])
	encrypted := size - protocol.LoginBlockOverhead
	if encrypted < 1 {
		return m.fail(reject(PhaseGame, "login block size %d", size))
	}
	if len(in)-2 < size {
		return Step{Outcome: Suspend}
	}

	login, err := m.parseBlock(in[2:2+size], encrypted)
	if err != nil {
		return m.fail(err.(*Error))
	}
	login.Reconnect = op == protocol.OpcodeLoginReconnect
	m.phase = PhaseDone
	return Step{Outcome: Complete, Consumed: 2 + size, Login: login}
}

func (m *Machine) parseBlock(block []byte, encrypted int) (Login, error) {
	r := wire.NewReader(block)
	var login Login

	if marker, _ := r.ReadUint8(); marker != protocol.FormatMarker {
		return login, reject(PhaseGame, "format marker %d", marker)
	}
	if version, _ := r.ReadUint16(); version != protocol.Revision {
		return login, reject(PhaseGame, "client revision %d", version)
	}
	memory, _ := r.ReadUint8()
	login.LowMemory = memory == 1
	if err := r.Skip(4 * protocol.CacheIndexCount); err != nil {
		return login, reject(PhaseGame, "cache indices: %v", err)
	}

	// The declared size counted its own length byte.
	encrypted--
	if n, err := r.ReadUint8(); err != nil || int(n) != encrypted {
		return login, reject(PhaseGame, "encrypted length %d, want %d", n, encrypted)
	}
	if marker, err := r.ReadUint8(); err != nil || marker != protocol.KeyExchangeMarker {
		return login, reject(PhaseGame, "key exchange marker %d", marker)
	}

	var err error
	if login.ClientKey, err = r.ReadInt64(); err != nil {
		return login, reject(PhaseGame, "client key: %v", err)
	}
	if login.ServerKey, err = r.ReadInt64(); err != nil {
		return login, reject(PhaseGame, "server key: %v", err)
	}
	if login.ServerKey != m.serverKey {
		return login, reject(PhaseGame, "server key mismatch")
	}
	if login.UID, err = r.ReadInt32(); err != nil {
		return login, reject(PhaseGame, "uid: %v", err)
	}
	login.Username = names.Normalize(r.ReadString())
	login.Password = r.ReadString()
	return login, nil
}

func (m *Machine) fail(err *Error) Step {
	m.phase = PhaseFailed
	return Step{Outcome: Fail, Err: err}
}
