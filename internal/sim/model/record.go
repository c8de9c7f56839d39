package model

import "lodestar.gg/internal/protocol/wire"

// Record is the persisted part of a player.
//
// On the wire it is the username and password as terminated strings, the
// rights level as a big-endian int16 and a flagged byte. A negative rights
// level marks a banned account.
type Record struct {
	Username string
	Password string
	Rights   int16
	Flagged  bool
}

func (r Record) Save(w *wire.Writer) {
	w.WriteString(r.Username)
	w.WriteString(r.Password)
	w.WriteInt16(r.Rights)
	if r.Flagged {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// Load overwrites fields in order until the input runs out. Fields past
// the end keep their current values, so older shorter saves still load.
func (r *Record) Load(rd *wire.Reader) {
	if rd.Len() == 0 {
		return
	}
	r.Username = rd.ReadString()
	if rd.Len() == 0 {
		return
	}
	r.Password = rd.ReadString()
	rights, err := rd.ReadInt16()
	if err != nil {
		return
	}
	r.Rights = rights
	flagged, err := rd.ReadUint8()
	if err != nil {
		return
	}
	r.Flagged = flagged == 1
}

// Record captures the player's persisted state.
func (p *Player) Record() Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	rights := int16(p.right)
	if p.banned {
		rights = -1
	}
	return Record{
		Username: p.session.Username(),
		Password: p.session.Password(),
		Rights:   rights,
		Flagged:  p.flagged,
	}
}

// Apply copies the rights and flag of rec onto the player. Credentials
// stay with the session.
func (p *Player) Apply(rec Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.Rights < 0 {
		p.banned = true
		p.right = RightStandard
	} else {
		p.banned = false
		p.right = RightForID(int(rec.Rights))
	}
	p.flagged = rec.Flagged
}
