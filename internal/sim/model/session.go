package model

import "sync"

// Channel is the write side of a client connection.
type Channel interface {
	Write(p []byte) error
	Close() error
	RemoteAddr() string
}

// Session binds login credentials to the connection that presented them.
// The credentials are fixed; the channel moves when the player reconnects.
type Session struct {
	username string
	password string

	mu sync.RWMutex
	ch Channel
}

func NewSession(username, password string, ch Channel) *Session {
	return &Session{username: username, password: password, ch: ch}
}

func (s *Session) Username() string { return s.username }
func (s *Session) Password() string { return s.password }

func (s *Session) Channel() Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ch
}

// Rebind moves the session to ch and returns the channel it replaced.
func (s *Session) Rebind(ch Channel) Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.ch
	s.ch = ch
	return old
}

// Bound reports whether ch is the session's current channel.
func (s *Session) Bound(ch Channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ch == ch
}
