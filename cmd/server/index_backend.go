package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"lodestar.gg/internal/config"
	"lodestar.gg/internal/persistence/indexdb"
	persistlog "lodestar.gg/internal/persistence/log"
	"lodestar.gg/internal/persistence/playerstore"
	"lodestar.gg/internal/sim/world"
)

type runtimeSink interface {
	world.TickLogger
	world.AuditLogger
	Close() error
}

// openSinks opens every configured journal and index. The caller closes
// them in reverse order.
func openSinks(cfg config.Config, logger *zap.Logger) ([]runtimeSink, error) {
	var sinks []runtimeSink
	if cfg.Data.Journal {
		sinks = append(sinks, journal{
			TickLogger:  persistlog.NewTickLogger(cfg.Data.Dir),
			AuditLogger: persistlog.NewAuditLogger(cfg.Data.Dir),
		})
	}
	if !cfg.Index.Disabled {
		idx, err := indexdb.OpenSQLite(cfg.Index.Path)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("open index: %w", err)
		}
		sinks = append(sinks, idx)
	}
	if cfg.Ingest.Endpoint != "" {
		idx, err := indexdb.OpenHTTP(indexdb.HTTPConfig{
			Endpoint:      cfg.Ingest.Endpoint,
			Token:         cfg.Ingest.Token,
			WorldID:       cfg.Ingest.WorldID,
			BatchSize:     envInt("LODESTAR_INGEST_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("LODESTAR_INGEST_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger.Named("ingest"),
		})
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("open ingest: %w", err)
		}
		sinks = append(sinks, idx)
	}
	return sinks, nil
}

func closeSinks(sinks []runtimeSink) {
	for i := len(sinks) - 1; i >= 0; i-- {
		_ = sinks[i].Close()
	}
}

type journal struct {
	*persistlog.TickLogger
	*persistlog.AuditLogger
}

func (j journal) Close() error {
	err := j.TickLogger.Close()
	if aerr := j.AuditLogger.Close(); err == nil {
		err = aerr
	}
	return err
}

func openStore(cfg config.Config) (playerstore.Store, error) {
	switch cfg.Data.Backend {
	case "sqlite":
		return playerstore.OpenSQLite(filepath.Join(cfg.Data.Dir, "players.sqlite"))
	default:
		return playerstore.OpenFileStore(filepath.Join(cfg.Data.Dir, "players"))
	}
}

// fanout writes each entry to every sink. A failing sink does not stop the
// others.
type fanout struct {
	sinks  []runtimeSink
	logger *zap.Logger
}

func (f fanout) WriteTick(entry world.TickLogEntry) error {
	for _, s := range f.sinks {
		if err := s.WriteTick(entry); err != nil {
			f.logger.Debug("tick sink", zap.Error(err))
		}
	}
	return nil
}

func (f fanout) WriteAudit(entry world.AuditEntry) error {
	for _, s := range f.sinks {
		if err := s.WriteAudit(entry); err != nil {
			f.logger.Debug("audit sink", zap.Error(err))
		}
	}
	return nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
