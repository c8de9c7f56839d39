package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lodestar.gg/internal/config"
	"lodestar.gg/internal/logging"
	"lodestar.gg/internal/observability"
	"lodestar.gg/internal/persistence/playerstore"
	"lodestar.gg/internal/sim/world"
	"lodestar.gg/internal/transport/gateway"
	"lodestar.gg/internal/transport/tcp"
	"lodestar.gg/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to server.yaml or server.toml (defaults when empty)")
		tcpAddr    = flag.String("tcp", "", "game listen address (overrides listen.tcp)")
		httpAddr   = flag.String("http", "", "http listen address (overrides listen.http)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides data.dir)")
		capacity   = flag.Int("capacity", 0, "player slots (overrides world.capacity)")
		logLevel   = flag.String("log_level", "", "debug, info, warn or error (overrides log.level)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	if *tcpAddr != "" {
		cfg.Listen.TCP = *tcpAddr
	}
	if *httpAddr != "" {
		cfg.Listen.HTTP = *httpAddr
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
		cfg.Index.Path = ""
	}
	if *capacity > 0 {
		cfg.World.Capacity = *capacity
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
		Console:    cfg.Log.Console,
		JSON:       cfg.Log.JSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open player store: %w", err)
	}
	persistence := playerstore.NewAdapter(store, logger.Named("playerstore"))
	defer persistence.Close()

	w, err := world.New(world.Config{
		Capacity:     cfg.World.Capacity,
		TickInterval: cfg.TickInterval(),
	}, persistence, logger.Named("world"))
	if err != nil {
		return err
	}

	sinks, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks(sinks)
	out := fanout{sinks: sinks, logger: logger}
	w.SetTickLogger(out)
	w.SetAuditLogger(out)

	if cfg.Metrics.Enabled {
		observability.RegisterMetrics()
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts := gateway.Options{Welcome: cfg.World.Welcome}
	var wg sync.WaitGroup
	errc := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- fmt.Errorf("world: %w", err)
		}
	}()

	if cfg.Listen.TCP != "" {
		srv := tcp.NewServer(w, opts, tcp.Config{
			HandshakeTimeout: cfg.Timeouts.Handshake(),
			IdleTimeout:      cfg.Timeouts.Idle(),
			WriteTimeout:     cfg.Timeouts.Write(),
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, cfg.Listen.TCP); err != nil {
				errc <- fmt.Errorf("tcp: %w", err)
			}
		}()
	}

	if cfg.Listen.HTTP != "" {
		wsSrv := ws.NewServer(w, opts, ws.Config{
			HandshakeTimeout: cfg.Timeouts.Handshake(),
			IdleTimeout:      cfg.Timeouts.Idle(),
			WriteTimeout:     cfg.Timeouts.Write(),
		}, logger)
		srv := &http.Server{
			Addr:              cfg.Listen.HTTP,
			Handler:           newMux(cfg, w, wsSrv, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		// WebSocket players are disconnected here, before the final save
		// and before the journal sinks close.
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
			if err := wsSrv.Shutdown(ctx2); err != nil {
				logger.Warn("websocket shutdown", zap.Error(err))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("http listening", zap.String("addr", cfg.Listen.HTTP))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		cancel()
	}
	wg.Wait()

	if err := w.SaveAll(); err != nil {
		logger.Error("save on shutdown", zap.Error(err))
	}
	logger.Info("stopped", zap.Int("online", w.Online()))
	return runErr
}

func newMux(cfg config.Config, w *world.World, wsSrv *ws.Server, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"ok":       true,
			"online":   w.Online(),
			"capacity": w.Capacity(),
		})
	})
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", observability.Handler())
	}

	if envBool("LODESTAR_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/players", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			type player struct {
				Slot     int    `json:"slot"`
				Username string `json:"username"`
				Rights   string `json:"rights"`
				X        int    `json:"x"`
				Y        int    `json:"y"`
				Remote   string `json:"remote,omitempty"`
			}
			var out []player
			for _, p := range w.Players() {
				pos := p.Position()
				pl := player{Slot: p.Index(), Username: p.Username(), Rights: p.Right().String(), X: pos.X, Y: pos.Y}
				if ch := p.Session().Channel(); ch != nil {
					pl.Remote = ch.RemoteAddr()
				}
				out = append(out, pl)
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(out)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			if err := w.SaveAll(); err != nil {
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "saved": w.Online()})
		})
	} else {
		logger.Info("admin endpoints disabled (LODESTAR_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("LODESTAR_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc(cfg.Listen.WSPath, wsSrv.Handler())
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
