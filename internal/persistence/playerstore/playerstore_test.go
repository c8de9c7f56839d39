package playerstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := OpenFileStore(filepath.Join(dir, "games"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	db, err := OpenSQLite(filepath.Join(dir, "saves.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{"file": fs, "sqlite": db}
}

func newPlayer(name, password string) *model.Player {
	return model.NewPlayer(1, model.NewSession(name, password, nil))
}

func TestStoresLoadSave(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load("john_doe"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing save: %v", err)
			}
			if err := s.Save("john_doe", []byte{1, 2, 3}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := s.Save("john_doe", []byte{4}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			b, err := s.Load("john_doe")
			if err != nil || len(b) != 1 || b[0] != 4 {
				t.Fatalf("Load: %v %v", b, err)
			}
			if err := s.Save("../escape", nil); !errors.Is(err, ErrBadKey) {
				t.Fatalf("bad key: %v", err)
			}
		})
	}
}

func TestProcessCreatesAccount(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(s, nil)
			code, err := a.Process(newPlayer("John Doe", "pw"))
			if err != nil || code != protocol.CodeSuccess {
				t.Fatalf("new account: %v %v", code, err)
			}
			b, err := s.Load("john_doe")
			if err != nil {
				t.Fatalf("save not created: %v", err)
			}
			var rec model.Record
			rec.Load(wire.NewReader(b))
			if rec.Username != "John Doe" || rec.Password != "pw" || rec.Rights != 0 {
				t.Fatalf("created record %+v", rec)
			}
		})
	}
}

func TestProcessOutcomes(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(s, nil)
			w := wire.NewWriter(32)
			model.Record{Username: "Mod", Password: "secret", Rights: 1, Flagged: true}.Save(w)
			if err := s.Save("mod", w.Bytes()); err != nil {
				t.Fatalf("Save: %v", err)
			}

			p := newPlayer("Mod", "secret")
			code, err := a.Process(p)
			if err != nil || code != protocol.CodeSuccess {
				t.Fatalf("login: %v %v", code, err)
			}
			if p.Right() != model.RightModerator || !p.Flagged() {
				t.Fatalf("loaded right %v flagged %v", p.Right(), p.Flagged())
			}

			code, err = a.Process(newPlayer("Mod", "wrong"))
			if err != nil || code != protocol.CodeInvalidDetails {
				t.Fatalf("wrong password: %v %v", code, err)
			}

			w = wire.NewWriter(32)
			model.Record{Username: "Cheat", Password: "x", Rights: -1}.Save(w)
			_ = s.Save("cheat", w.Bytes())
			code, err = a.Process(newPlayer("Cheat", "x"))
			if err != nil || code != protocol.CodeBanned {
				t.Fatalf("banned: %v %v", code, err)
			}
		})
	}
}

func TestProcessTruncatedSave(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	// Credentials only: rights and flag keep their defaults.
	if err := s.Save("old_timer", []byte("Old Timer\npw\n")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p := newPlayer("Old Timer", "pw")
	code, err := NewAdapter(s, nil).Process(p)
	if err != nil || code != protocol.CodeSuccess {
		t.Fatalf("truncated save: %v %v", code, err)
	}
	if p.Right() != model.RightStandard || p.Flagged() {
		t.Fatalf("defaults overwritten")
	}
}

type brokenStore struct{}

func (brokenStore) Load(string) ([]byte, error) { return nil, ErrStorage }
func (brokenStore) Save(string, []byte) error   { return ErrStorage }
func (brokenStore) Close() error                { return nil }

func TestProcessStorageError(t *testing.T) {
	_, err := NewAdapter(brokenStore{}, nil).Process(newPlayer("a", "b"))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestFileStoreUnreadable(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	// A directory where the save should be is an I/O failure, not a
	// missing account.
	if err := os.Mkdir(filepath.Join(dir, "ghost.bin"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := s.Load("ghost"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
