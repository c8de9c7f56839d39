package playerstore

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/names"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
)

// Adapter loads a player's save during admission and writes it back on
// logout.
type Adapter struct {
	store Store
	log   *zap.Logger
}

func NewAdapter(store Store, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{store: store, log: log}
}

// Process loads p's save and decides the login outcome. A missing save
// creates the account. Store failures come back as errors, never as a
// return code.
func (a *Adapter) Process(p *model.Player) (protocol.ReturnCode, error) {
	key := names.Protocol(p.Username())
	data, err := a.store.Load(key)
	if errors.Is(err, ErrNotFound) {
		if err := a.Save(p); err != nil {
			return 0, fmt.Errorf("create save %q: %w", key, err)
		}
		a.log.Info("account created", zap.String("key", key))
		return protocol.CodeSuccess, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load save %q: %w", key, err)
	}

	rec := p.Record()
	rec.Load(wire.NewReader(data))
	if rec.Password != p.Session().Password() {
		return protocol.CodeInvalidDetails, nil
	}
	p.Apply(rec)
	if p.Banned() {
		return protocol.CodeBanned, nil
	}
	return protocol.CodeSuccess, nil
}

func (a *Adapter) Save(p *model.Player) error {
	w := wire.NewWriter(64)
	p.Record().Save(w)
	return a.store.Save(names.Protocol(p.Username()), w.Bytes())
}

func (a *Adapter) Close() error { return a.store.Close() }
