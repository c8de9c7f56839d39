package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lodestar.gg/internal/observability"
	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/names"
	"lodestar.gg/internal/sim/model"
	"lodestar.gg/internal/sim/registry"
)

var ErrNotOnline = errors.New("world: player not online")

// World owns the player registry and admits sessions into it.
type World struct {
	cfg     Config
	players *registry.Registry[*model.Player]
	store   Persistence
	log     *zap.Logger

	tickLogger  TickLogger
	auditLogger AuditLogger

	mu sync.Mutex
	// online maps a protocol name to its player. A nil value reserves the
	// name while a login or logout for it is in flight.
	online map[string]*model.Player
	joins  []RecordedJoin
	leaves []string
	tick   uint64
}

func New(cfg Config, store Persistence, log *zap.Logger) (*World, error) {
	if store == nil {
		return nil, fmt.Errorf("world: nil persistence")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()
	return &World{
		cfg:     cfg,
		players: registry.New[*model.Player](cfg.Capacity),
		store:   store,
		log:     log,
		online:  map[string]*model.Player{},
	}, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Capacity() int { return w.players.Cap() }
func (w *World) Online() int   { return w.players.Len() }

func (w *World) Player(index int) (*model.Player, bool) { return w.players.Get(index) }
func (w *World) Players() []*model.Player              { return w.players.Snapshot() }

// Register admits s. A capacity failure is reported as Full before the
// persistence layer sees the session. With reconnect set, a login whose
// credentials match a player already online moves that player onto the
// new channel instead of being refused.
func (w *World) Register(s *model.Session, reconnect bool) Admission {
	start := time.Now()
	adm := w.register(s, reconnect)
	observability.RecordAdmission(adm.ReturnCode().String(), time.Since(start))
	observability.SetPlayersOnline(w.players.Len())
	w.auditAdmission(s, reconnect, adm)
	return adm
}

func (w *World) register(s *model.Session, reconnect bool) Admission {
	key := names.Protocol(s.Username())
	if !names.Valid(key) {
		return rejected(protocol.CodeInvalidDetails)
	}

	w.mu.Lock()
	if p, ok := w.online[key]; ok {
		defer w.mu.Unlock()
		if p != nil && reconnect && p.Session().Password() == s.Password() {
			old := p.Session().Rebind(s.Channel())
			if old != nil {
				_ = old.Close()
			}
			w.log.Info("player reattached", zap.Stringer("player", p), zap.String("remote", remote(s)))
			adm := admitted(p)
			adm.Reattached = true
			return adm
		}
		return rejected(protocol.CodeAlreadyLoggedIn)
	}
	w.online[key] = nil
	w.mu.Unlock()

	adm := w.admit(s)

	w.mu.Lock()
	if adm.Kind == Admitted {
		w.online[key] = adm.Player
		w.joins = append(w.joins, RecordedJoin{Username: s.Username(), Slot: adm.Player.Index()})
	} else {
		delete(w.online, key)
	}
	w.mu.Unlock()
	return adm
}

func (w *World) admit(s *model.Session) Admission {
	if _, ok := w.players.AvailableSlot(); !ok {
		return full()
	}
	// The slot is picked again under the registry lock, so a concurrent
	// login can only cause Full when the table really filled up.
	p, err := w.players.Claim(func(slot int) *model.Player { return model.NewPlayer(slot, s) })
	if err != nil {
		w.log.Debug("no slot", zap.Error(err))
		return full()
	}

	code, err := w.store.Process(p)
	if err != nil {
		w.log.Error("load player", zap.String("username", s.Username()), zap.Error(err))
		w.release(p)
		return rejected(protocol.CodeCouldNotCompleteLogin)
	}
	if code != protocol.CodeSuccess {
		w.release(p)
		return rejected(code)
	}
	w.log.Info("player admitted", zap.Stringer("player", p), zap.String("remote", remote(s)))
	return admitted(p)
}

func (w *World) release(p *model.Player) {
	if err := w.players.Remove(p); err != nil {
		w.log.Error("release slot", zap.Stringer("player", p), zap.Error(err))
	}
}

// Unregister saves p and frees its slot.
func (w *World) Unregister(p *model.Player) error {
	return w.unregister(p, nil)
}

// Disconnect is Unregister for a connection that closed. It does nothing
// when p has since been reattached to another channel.
func (w *World) Disconnect(p *model.Player, ch model.Channel) error {
	return w.unregister(p, ch)
}

func (w *World) unregister(p *model.Player, ch model.Channel) error {
	key := names.Protocol(p.Username())
	w.mu.Lock()
	if ch != nil && !p.Session().Bound(ch) {
		w.mu.Unlock()
		return nil
	}
	if cur, ok := w.online[key]; !ok || cur != p {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOnline, p)
	}
	w.online[key] = nil
	w.mu.Unlock()

	p.WalkingQueue().Clear()
	saveErr := w.store.Save(p)
	if saveErr != nil {
		w.log.Error("save player", zap.Stringer("player", p), zap.Error(saveErr))
	}
	w.release(p)

	w.mu.Lock()
	delete(w.online, key)
	w.leaves = append(w.leaves, p.Username())
	w.mu.Unlock()

	observability.SetPlayersOnline(w.players.Len())
	w.audit(AuditEntry{
		Event:    EventLogout,
		Username: p.Username(),
		Slot:     p.Index(),
		Remote:   remote(p.Session()),
	})
	w.log.Info("player left", zap.Stringer("player", p))
	if saveErr != nil {
		return fmt.Errorf("world: save %s: %w", p, saveErr)
	}
	return nil
}

// SaveAll writes every online player.
func (w *World) SaveAll() error {
	var errs []error
	for _, p := range w.players.Snapshot() {
		if err := w.store.Save(p); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Run steps the world every tick until ctx is done.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Step()
		}
	}
}

// Step advances every player one walking step and records the tick.
func (w *World) Step() {
	moved := 0
	w.players.Each(func(p *model.Player) bool {
		if pos, ok := p.WalkingQueue().Next(); ok {
			p.SetPosition(pos)
			moved++
		}
		return true
	})

	w.mu.Lock()
	w.tick++
	entry := TickLogEntry{
		Tick:   w.tick,
		Online: w.players.Len(),
		Joins:  w.joins,
		Leaves: w.leaves,
		Moved:  moved,
	}
	w.joins = nil
	w.leaves = nil
	w.mu.Unlock()

	if w.tickLogger == nil || (len(entry.Joins) == 0 && len(entry.Leaves) == 0 && moved == 0) {
		return
	}
	if err := w.tickLogger.WriteTick(entry); err != nil {
		w.log.Warn("tick log", zap.Uint64("tick", entry.Tick), zap.Error(err))
	}
}

func (w *World) auditAdmission(s *model.Session, reconnect bool, adm Admission) {
	e := AuditEntry{
		Event:     EventLogin,
		Username:  s.Username(),
		Code:      int(adm.ReturnCode()),
		Reconnect: reconnect,
		Remote:    remote(s),
	}
	if adm.Kind == Admitted {
		e.Slot = adm.Player.Index()
	} else {
		e.Event = EventReject
		e.Reason = adm.ReturnCode().String()
	}
	w.audit(e)
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.log.Warn("audit log", zap.String("event", e.Event), zap.Error(err))
	}
}

func remote(s *model.Session) string {
	if ch := s.Channel(); ch != nil {
		return ch.RemoteAddr()
	}
	return ""
}
