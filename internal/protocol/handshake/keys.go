package handshake

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// KeySource issues server keys. Each call must return a fresh value.
type KeySource interface {
	NextKey() (int64, error)
}

// KeyFunc adapts a function to KeySource.
type KeyFunc func() (int64, error)

func (f KeyFunc) NextKey() (int64, error) { return f() }

// RandomKeys draws keys from crypto/rand.
type RandomKeys struct{}

func (RandomKeys) NextKey() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("handshake: server key: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
