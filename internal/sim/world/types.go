package world

import (
	"time"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/sim/model"
)

// Persistence loads and stores player saves. Process is called with the
// player already holding its slot; a non-success code or an error makes
// the world release the slot again.
type Persistence interface {
	Process(p *model.Player) (protocol.ReturnCode, error)
	Save(p *model.Player) error
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick   uint64         `json:"tick"`
	Online int            `json:"online"`
	Joins  []RecordedJoin `json:"joins,omitempty"`
	Leaves []string       `json:"leaves,omitempty"`
	Moved  int            `json:"moved,omitempty"`
}

type RecordedJoin struct {
	Username string `json:"username"`
	Slot     int    `json:"slot"`
}

// Audit events.
const (
	EventLogin  = "LOGIN"
	EventReject = "REJECT"
	EventLogout = "LOGOUT"
)

type AuditEntry struct {
	Time      time.Time `json:"time"`
	Event     string    `json:"event"`
	Username  string    `json:"username"`
	Slot      int       `json:"slot,omitempty"`
	Code      int       `json:"code,omitempty"`
	Reconnect bool      `json:"reconnect,omitempty"`
	Remote    string    `json:"remote,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
