// Package playerstore keeps player saves and turns them into login
// outcomes.
package playerstore

import "errors"

var (
	// ErrNotFound means no save exists for the account.
	ErrNotFound = errors.New("playerstore: not found")
	// ErrStorage wraps every failure of the backing store itself.
	ErrStorage = errors.New("playerstore: storage failure")
	ErrBadKey  = errors.New("playerstore: invalid key")
)

// Store holds one opaque save per account key. Keys are protocol names.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Close() error
}
