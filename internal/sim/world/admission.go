package world

import (
	"fmt"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/sim/model"
)

type AdmissionKind uint8

const (
	Admitted AdmissionKind = iota + 1
	Rejected
	Full
)

func (k AdmissionKind) String() string {
	switch k {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("admission(%d)", uint8(k))
	}
}

// Admission is the outcome of Register.
type Admission struct {
	Kind   AdmissionKind
	Code   protocol.ReturnCode
	Player *model.Player // set when Kind is Admitted

	// Reattached is set when a reconnect login took over a player that
	// was already online.
	Reattached bool
}

func admitted(p *model.Player) Admission {
	return Admission{Kind: Admitted, Code: protocol.CodeSuccess, Player: p}
}

func rejected(code protocol.ReturnCode) Admission {
	return Admission{Kind: Rejected, Code: code}
}

func full() Admission {
	return Admission{Kind: Full, Code: protocol.CodeWorldFull}
}

// ReturnCode is the byte to send the client.
func (a Admission) ReturnCode() protocol.ReturnCode {
	if a.Kind == Full {
		return protocol.CodeWorldFull
	}
	return a.Code
}
