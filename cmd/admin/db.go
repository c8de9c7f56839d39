package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lodestar.gg/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	user := fs.String("user", "", "username filter (audits)")
	event := fs.String("event", "", "event filter (audits)")
	_ = fs.Parse(args)

	q := "audits"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "lodestar.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "audits":
		rows, err := indexdb.QueryAudits(ctx, db, indexdb.AuditFilter{
			Username: strings.TrimSpace(*user),
			Event:    strings.TrimSpace(*event),
			Limit:    *limit,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "counts":
		counts, err := indexdb.LoginCounts(ctx, db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		events := make([]string, 0, len(counts))
		for ev := range counts {
			events = append(events, ev)
		}
		sort.Strings(events)
		for _, ev := range events {
			printJSON(map[string]any{"event": ev, "count": counts[ev]})
		}

	case "ticks":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := db.QueryContext(ctx, `SELECT tick,online,joins,leaves,moved FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   uint64 `json:"tick"`
				Online int    `json:"online"`
				Joins  int    `json:"joins"`
				Leaves int    `json:"leaves"`
				Moved  int    `json:"moved"`
			}
			if err := rows.Scan(&r.Tick, &r.Online, &r.Joins, &r.Leaves, &r.Moved); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (audits, counts, ticks)\n", q)
		os.Exit(2)
	}
}
