package handshake

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

const testKey int64 = 0x1122334455667788

func fixedKeys(k int64) KeySource {
	return KeyFunc(func() (int64, error) { return k, nil })
}

func validBlock(t *testing.T, serverKey int64) []byte {
	t.Helper()
	b, err := Request{
		ClientKey: 42,
		ServerKey: serverKey,
		UID:       7,
		Username:  "JOHN doe",
		Password:  "hunter2",
	}.EncodeBlock()
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	return b
}

// toGame walks a fresh machine through the request and server choice.
func toGame(t *testing.T, m *Machine) {
	t.Helper()
	st := m.Advance([]byte{14, 1})
	if st.Outcome != Advance || st.Consumed != 1 || len(st.Reply) != 0 {
		t.Fatalf("request step: %+v", st)
	}
	st = m.Advance([]byte{1})
	if st.Outcome != Advance || st.Consumed != 1 {
		t.Fatalf("server choice step: %+v", st)
	}
	if m.Phase() != PhaseGame {
		t.Fatalf("phase %s", m.Phase())
	}
}

func TestLoginScenario(t *testing.T) {
	m := New(fixedKeys(testKey))
	if st := m.Advance([]byte{14}); st.Outcome != Advance || st.Consumed != 1 {
		t.Fatalf("request: %+v", st)
	}
	st := m.Advance([]byte{0x01})
	if st.Outcome != Advance {
		t.Fatalf("server choice: %+v", st)
	}
	if len(st.Reply) != ServerChoiceLen {
		t.Fatalf("reply length %d", len(st.Reply))
	}
	if !bytes.Equal(st.Reply[:9], make([]byte, 9)) {
		t.Fatalf("preamble not zero: %v", st.Reply[:9])
	}
	if k := int64(binary.BigEndian.Uint64(st.Reply[9:])); k != testKey {
		t.Fatalf("key in reply %x", k)
	}
	key, err := ParseServerChoice(st.Reply)
	if err != nil || key != testKey {
		t.Fatalf("ParseServerChoice: %x %v", key, err)
	}

	block := validBlock(t, key)
	st = m.Advance(block)
	if st.Outcome != Complete {
		t.Fatalf("game: %+v", st)
	}
	if st.Consumed != len(block) {
		t.Fatalf("consumed %d of %d", st.Consumed, len(block))
	}
	l := st.Login
	if l.Username != "John Doe" || l.Password != "hunter2" || l.UID != 7 || l.ClientKey != 42 || l.Reconnect {
		t.Fatalf("login %+v", l)
	}
	if m.Phase() != PhaseDone {
		t.Fatalf("phase %s", m.Phase())
	}
}

func TestServerKeyMismatchRejected(t *testing.T) {
	m := New(fixedKeys(testKey))
	toGame(t, m)
	st := m.Advance(validBlock(t, testKey^1))
	if st.Outcome != Fail {
		t.Fatalf("expected Fail, got %+v", st)
	}
	if !errors.Is(st.Err, ErrRejected) {
		t.Fatalf("err %v", st.Err)
	}
	var he *Error
	if !errors.As(st.Err, &he) || he.Phase != PhaseGame {
		t.Fatalf("err phase: %v", st.Err)
	}
	if len(st.Reply) != 0 {
		t.Fatalf("reply on rejection: %v", st.Reply)
	}
	if again := m.Advance(validBlock(t, testKey)); again.Outcome != Fail {
		t.Fatalf("failed machine must stay failed: %+v", again)
	}
}

func TestByteAtATime(t *testing.T) {
	m := New(fixedKeys(testKey))
	stream := append([]byte{14, 3}, validBlock(t, testKey)...)

	var pending []byte
	var replies [][]byte
	var login *Login
	for i := 0; i < len(stream); i++ {
		pending = append(pending, stream[i])
		for len(pending) > 0 {
			before := m.Phase()
			st := m.Advance(pending)
			if st.Outcome == Suspend {
				if m.Phase() != before || st.Consumed != 0 {
					t.Fatalf("suspend mutated state at byte %d", i)
				}
				break
			}
			if st.Outcome == Fail {
				t.Fatalf("byte %d: %v", i, st.Err)
			}
			pending = pending[st.Consumed:]
			if len(st.Reply) > 0 {
				replies = append(replies, st.Reply)
			}
			if st.Outcome == Complete {
				l := st.Login
				login = &l
			}
		}
	}
	if login == nil {
		t.Fatalf("login never completed")
	}
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	if len(pending) != 0 {
		t.Fatalf("leftover %v", pending)
	}
}

func TestPartialBlockSuspends(t *testing.T) {
	m := New(fixedKeys(testKey))
	toGame(t, m)
	block := validBlock(t, testKey)
	for _, n := range []int{0, 1, 2, len(block) - 1} {
		if st := m.Advance(block[:n]); st.Outcome != Suspend || st.Consumed != 0 {
			t.Fatalf("prefix %d: %+v", n, st)
		}
		if m.Phase() != PhaseGame {
			t.Fatalf("prefix %d moved phase to %s", n, m.Phase())
		}
	}
	if st := m.Advance(block); st.Outcome != Complete {
		t.Fatalf("full block: %+v", st)
	}
}

func TestUnknownRequestSuspends(t *testing.T) {
	m := New(fixedKeys(testKey))
	st := m.Advance([]byte{15, 1, 2})
	if st.Outcome != Suspend || st.Consumed != 0 {
		t.Fatalf("got %+v", st)
	}
	if m.Phase() != PhaseRequest {
		t.Fatalf("phase %s", m.Phase())
	}
}

func TestReconnectOpcode(t *testing.T) {
	m := New(fixedKeys(testKey))
	toGame(t, m)
	b, err := Request{Reconnect: true, ServerKey: testKey, Username: "a", Password: "b"}.EncodeBlock()
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	if b[0] != 18 {
		t.Fatalf("opcode %d", b[0])
	}
	st := m.Advance(b)
	if st.Outcome != Complete || !st.Login.Reconnect {
		t.Fatalf("got %+v", st)
	}
}

func TestBlockValidation(t *testing.T) {
	mutate := map[string]func(b []byte){
		"login opcode":   func(b []byte) { b[0] = 17 },
		"format marker":  func(b []byte) { b[2] = 254 },
		"revision":       func(b []byte) { binary.BigEndian.PutUint16(b[3:], 377) },
		"encrypted size": func(b []byte) { b[2+40]++ },
		"key marker":     func(b []byte) { b[2+41] = 11 },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			m := New(fixedKeys(testKey))
			toGame(t, m)
			b := validBlock(t, testKey)
			fn(b)
			st := m.Advance(b)
			if st.Outcome != Fail || !errors.Is(st.Err, ErrRejected) {
				t.Fatalf("expected rejection, got %+v", st)
			}
		})
	}
}

func TestDeclaredSizeTooSmall(t *testing.T) {
	m := New(fixedKeys(testKey))
	toGame(t, m)
	st := m.Advance([]byte{16, 40})
	if st.Outcome != Fail {
		t.Fatalf("size 40: %+v", st)
	}
}

func TestTruncatedSecureBlock(t *testing.T) {
	m := New(fixedKeys(testKey))
	toGame(t, m)
	// Size and length byte agree but the secure block stops after the
	// client key.
	block := []byte{16, 0, 255, 0x01, 0x3d, 0}
	block = append(block, make([]byte, 36)...)
	secure := append([]byte{10}, make([]byte, 8)...)
	block = append(block, byte(len(secure)))
	block = append(block, secure...)
	block[1] = byte(len(block) - 2)
	st := m.Advance(block)
	if st.Outcome != Fail || !errors.Is(st.Err, ErrRejected) {
		t.Fatalf("got %+v", st)
	}
}

func TestServerKeysPerConnection(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 32; i++ {
		m := New(nil)
		toGame(t, m)
		if seen[m.ServerKey()] {
			t.Fatalf("server key repeated across connections")
		}
		seen[m.ServerKey()] = true
	}
}

func TestKeySourceError(t *testing.T) {
	m := New(KeyFunc(func() (int64, error) { return 0, errors.New("entropy") }))
	m.Advance([]byte{14})
	if st := m.Advance([]byte{1}); st.Outcome != Fail {
		t.Fatalf("got %+v", st)
	}
}

func TestHello(t *testing.T) {
	h := Hello("John Doe")
	if len(h) != 2 || h[0] != 14 || h[1] > 31 {
		t.Fatalf("hello %v", h)
	}
}
