package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "lodestar.gg/internal/persistence/log"
	"lodestar.gg/internal/persistence/playerstore"
	"lodestar.gg/internal/protocol/names"
	"lodestar.gg/internal/protocol/wire"
	"lodestar.gg/internal/sim/model"
	"lodestar.gg/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		case "players":
			playersCmd(os.Args[2:])
			return
		case "flush":
			flushCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <audit|ticks|db|save|players|flush> [flags]")
	os.Exit(2)
}

// auditCmd prints journal audit entries, oldest first.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	user := fs.String("user", "", "username filter")
	event := fs.String("event", "", "LOGIN, REJECT or LOGOUT")
	limit := fs.Int("limit", 0, "stop after this many entries (0 for all)")
	_ = fs.Parse(args)

	files, err := persistlog.Files(persistlog.AuditDir(*dataDir), "audit")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	wantUser := names.Protocol(strings.TrimSpace(*user))
	wantEvent := strings.ToUpper(strings.TrimSpace(*event))
	n := 0
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e world.AuditEntry) error {
			if wantUser != "" && names.Protocol(e.Username) != wantUser {
				return nil
			}
			if wantEvent != "" && e.Event != wantEvent {
				return nil
			}
			printJSON(e)
			n++
			if *limit > 0 && n >= *limit {
				return errStop
			}
			return nil
		})
		if errors.Is(err, errStop) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
}

// ticksCmd prints tick journal entries in a tick range.
func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	since := fs.Uint64("since", 0, "first tick (inclusive)")
	until := fs.Uint64("until", 0, "last tick (inclusive, 0 for no bound)")
	_ = fs.Parse(args)

	files, err := persistlog.Files(persistlog.EventsDir(*dataDir), "events")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e world.TickLogEntry) error {
			if e.Tick < *since || (*until > 0 && e.Tick > *until) {
				return nil
			}
			printJSON(e)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
}

// saveCmd decodes one player's save.
func saveCmd(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	backend := fs.String("backend", "file", "file or sqlite")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin save [-data dir] [-backend file|sqlite] <username>")
		os.Exit(2)
	}

	var (
		store playerstore.Store
		err   error
	)
	switch *backend {
	case "sqlite":
		store, err = playerstore.OpenSQLite(filepath.Join(*dataDir, "players.sqlite"))
	default:
		store, err = playerstore.OpenFileStore(filepath.Join(*dataDir, "players"))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer store.Close()

	rec, err := loadRecord(store, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(rec)
}

type recordView struct {
	Key     string `json:"key"`
	Name    string `json:"username"`
	Rights  string `json:"rights"`
	Banned  bool   `json:"banned"`
	Flagged bool   `json:"flagged"`
}

func loadRecord(store playerstore.Store, username string) (recordView, error) {
	key := names.Protocol(username)
	data, err := store.Load(key)
	if err != nil {
		return recordView{}, fmt.Errorf("load %s: %w", key, err)
	}
	var rec model.Record
	rec.Load(wire.NewReader(data))
	v := recordView{Key: key, Name: rec.Username, Flagged: rec.Flagged}
	if rec.Rights < 0 {
		v.Banned = true
		v.Rights = model.RightStandard.String()
	} else {
		v.Rights = model.RightForID(int(rec.Rights)).String()
	}
	return v, nil
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
