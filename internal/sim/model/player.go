// Package model holds the entities admitted into a world.
package model

import (
	"fmt"
	"sync"
)

// Right is a player's privilege level. Its value is the crown id the
// client draws next to the name.
type Right uint8

const (
	RightStandard Right = iota
	RightModerator
	RightAdministrator
)

func (r Right) String() string {
	switch r {
	case RightStandard:
		return "standard"
	case RightModerator:
		return "moderator"
	case RightAdministrator:
		return "administrator"
	default:
		return fmt.Sprintf("right(%d)", uint8(r))
	}
}

// RightForID maps a stored rights level to a Right. Unknown levels are
// standard.
func RightForID(id int) Right {
	switch Right(id) {
	case RightModerator, RightAdministrator:
		return Right(id)
	default:
		return RightStandard
	}
}

type Position struct {
	X, Y, Z int
}

// DefaultSpawn is where new accounts start.
var DefaultSpawn = Position{X: 3222, Y: 3218}

// Player is an admitted session holding a registry slot.
type Player struct {
	index   int
	session *Session
	walking WalkingQueue

	mu       sync.Mutex
	position Position
	right    Right
	flagged  bool
	banned   bool
}

// NewPlayer creates a player for slot index. The index never changes.
func NewPlayer(index int, s *Session) *Player {
	return &Player{index: index, session: s, position: DefaultSpawn}
}

func (p *Player) Index() int                  { return p.index }
func (p *Player) Session() *Session           { return p.session }
func (p *Player) Username() string            { return p.session.Username() }
func (p *Player) WalkingQueue() *WalkingQueue { return &p.walking }

func (p *Player) Position() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) SetPosition(pos Position) {
	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()
}

func (p *Player) Right() Right {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.right
}

func (p *Player) SetRight(r Right) {
	p.mu.Lock()
	p.right = r
	p.mu.Unlock()
}

func (p *Player) Flagged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flagged
}

func (p *Player) SetFlagged(v bool) {
	p.mu.Lock()
	p.flagged = v
	p.mu.Unlock()
}

func (p *Player) Banned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.banned
}

func (p *Player) String() string {
	return fmt.Sprintf("%s[%d]", p.Username(), p.index)
}
