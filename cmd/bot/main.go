package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lodestar.gg/internal/client"
	"lodestar.gg/internal/logging"
	"lodestar.gg/internal/protocol"
	"lodestar.gg/internal/sim/model"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:43594", "tcp address, or a ws:// url")
		name      = flag.String("name", "bot", "username prefix")
		password  = flag.String("password", "bot", "password")
		count     = flag.Int("n", 1, "number of bots")
		walkEvery = flag.Duration("walk", 3*time.Second, "interval between walk requests")
		stayFor   = flag.Duration("stay", 0, "log out after this long (0 stays until interrupted)")
	)
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: "info", Console: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if *stayFor > 0 {
		ctx, cancel = context.WithTimeout(ctx, *stayFor)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < *count; i++ {
		username := *name
		if *count > 1 {
			username = fmt.Sprintf("%s%d", *name, i+1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runBot(ctx, *addr, username, *password, *walkEvery, logger.With(zap.String("bot", username))); err != nil {
				logger.Warn("bot stopped", zap.String("bot", username), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

func runBot(ctx context.Context, addr, username, password string, walkEvery time.Duration, logger *zap.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	creds := client.Credentials{Username: username, Password: password}

	var (
		s   *client.Session
		err error
	)
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		s, err = client.DialWS(dialCtx, addr, creds)
	} else {
		s, err = client.Dial(dialCtx, addr, creds)
	}
	if err != nil {
		return err
	}
	defer s.Close()
	logger.Info("logged in", zap.Stringer("rights", s.Rights), zap.Bool("flagged", s.Flagged))

	go func() {
		for {
			f, err := s.Next()
			if err != nil {
				return
			}
			switch f.Opcode {
			case protocol.OpcodePlayerInit:
				logger.Info("player init", zap.Binary("payload", f.Payload))
			case protocol.OpcodeGameMessage:
				logger.Info("message", zap.String("text", strings.TrimSuffix(string(f.Payload), "\n")))
			}
		}
	}()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	pos := model.DefaultSpawn
	walk := time.NewTicker(walkEvery)
	defer walk.Stop()
	keepAlive := time.NewTicker(5 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("logging out")
			return s.Logout()
		case <-keepAlive.C:
			if err := s.KeepAlive(); err != nil {
				return err
			}
		case <-walk.C:
			path := []model.Position{pos}
			for j := 0; j < 1+r.Intn(4); j++ {
				last := path[len(path)-1]
				path = append(path, model.Position{X: last.X + r.Intn(3) - 1, Y: last.Y + r.Intn(3) - 1})
			}
			if err := s.Walk(path, r.Intn(2) == 0); err != nil {
				return err
			}
			pos = path[len(path)-1]
		}
	}
}
