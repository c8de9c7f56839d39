package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lodestar.gg/internal/persistence/playerstore"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
)

func saveRecord(t *testing.T, store playerstore.Store, key string, rec model.Record) {
	t.Helper()
	w := wire.NewWriter(32)
	rec.Save(w)
	if err := store.Save(key, w.Bytes()); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRecord(t *testing.T) {
	store, err := playerstore.OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	saveRecord(t, store, "mod_one", model.Record{Username: "Mod One", Password: "pw", Rights: 1, Flagged: true})
	saveRecord(t, store, "gone", model.Record{Username: "Gone", Password: "pw", Rights: -1})

	v, err := loadRecord(store, "Mod One")
	if err != nil {
		t.Fatal(err)
	}
	if v.Key != "mod_one" || v.Name != "Mod One" || v.Rights != "moderator" || !v.Flagged || v.Banned {
		t.Fatalf("view: %+v", v)
	}

	v, err = loadRecord(store, "gone")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Banned || v.Rights != "standard" {
		t.Fatalf("banned view: %+v", v)
	}

	if _, err := loadRecord(store, "nobody"); !errors.Is(err, playerstore.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestAdminRequest(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if r.URL.Path == "/admin/v1/save" {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = rw.Write([]byte("[]"))
	}))
	defer srv.Close()

	cl := &http.Client{Timeout: time.Second}
	if code := adminRequest(cl, http.MethodGet, srv.URL+"/", "/admin/v1/players"); code != 0 {
		t.Fatalf("players exit: %d", code)
	}
	if gotMethod != http.MethodGet || gotPath != "/admin/v1/players" {
		t.Fatalf("request: %s %s", gotMethod, gotPath)
	}
	if code := adminRequest(cl, http.MethodPost, srv.URL, "/admin/v1/save"); code != 1 {
		t.Fatalf("save exit: %d", code)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method: %s", gotMethod)
	}
}
