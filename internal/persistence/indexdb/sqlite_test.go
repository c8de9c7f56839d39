package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"lodestar.gg/internal/sim/world"
)

func TestSQLiteIndex_AuditsAndTicks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = idx.WriteAudit(world.AuditEntry{Time: at, Event: world.EventLogin, Username: "John Doe", Slot: 1, Code: 2, Remote: "10.0.0.1:1"})
	_ = idx.WriteAudit(world.AuditEntry{Time: at, Event: world.EventReject, Username: "John Doe", Code: 5, Reason: "ALREADY_LOGGED_IN", Reconnect: true})
	_ = idx.WriteAudit(world.AuditEntry{Time: at, Event: world.EventLogout, Username: "John Doe", Slot: 1})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 9, Online: 1, Joins: []world.RecordedJoin{{Username: "John Doe", Slot: 1}}})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	all, err := QueryAudits(ctx, db, AuditFilter{Username: "John Doe"})
	if err != nil {
		t.Fatalf("QueryAudits: %v", err)
	}
	if len(all) != 3 || all[0].Event != world.EventLogout {
		t.Fatalf("audits newest first: %+v", all)
	}
	rejects, err := QueryAudits(ctx, db, AuditFilter{Event: "reject"})
	if err != nil || len(rejects) != 1 {
		t.Fatalf("reject filter: %v %v", rejects, err)
	}
	if r := rejects[0]; r.Code != 5 || !r.Reconnect || r.Reason != "ALREADY_LOGGED_IN" || !r.Time.Equal(at) {
		t.Fatalf("reject row %+v", r)
	}

	counts, err := LoginCounts(ctx, db)
	if err != nil {
		t.Fatalf("LoginCounts: %v", err)
	}
	if counts[world.EventLogin] != 1 || counts[world.EventLogout] != 1 || counts[world.EventReject] != 1 {
		t.Fatalf("counts %v", counts)
	}

	var online, joins int
	if err := db.QueryRow(`SELECT online,joins FROM ticks WHERE tick=9`).Scan(&online, &joins); err != nil {
		t.Fatalf("tick row: %v", err)
	}
	if online != 1 || joins != 1 {
		t.Fatalf("tick row online=%d joins=%d", online, joins)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Event: world.EventLogin})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesDuringClose(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tick := uint64(1); ; tick++ {
				select {
				case <-stop:
					return
				default:
				}
				_ = idx.WriteAudit(world.AuditEntry{Event: world.EventLogout, Username: "John Doe", Slot: 1})
				_ = idx.WriteTick(world.TickLogEntry{Tick: tick, Online: 1})
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(stop)
	wg.Wait()

	if err := idx.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
}
