package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tombalago/internal/client"
	"tombalago/internal/config"
	"tombalago/internal/game"
	"tombalago/internal/host"
	"tombalago/internal/relay"
	"tombalago/internal/session"
	"tombalago/internal/transport"
	"tombalago/internal/transport/redisbroker"
	"tombalago/internal/transport/wsrelay"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "host":
		runHost(ctx, cfg)
	case "join":
		if len(os.Args) < 3 {
			usage()
		}
		runJoin(ctx, cfg, strings.ToUpper(os.Args[2]))
	case "relay":
		runRelay(ctx, cfg)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tombalago host | join <CODE> | relay")
	os.Exit(2)
}

// dialTransport picks the configured channel; relay transports are dialed per
// room, so they need the code upfront.
func dialTransport(ctx context.Context, cfg *config.Config, code string) (transport.Transport, error) {
	switch cfg.Transport {
	case "relay":
		u, err := url.Parse(cfg.RelayURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("room", code)
		u.RawQuery = q.Encode()
		return wsrelay.Dial(ctx, u.String())
	default:
		return redisbroker.Dial(ctx, cfg.RedisHost, int(cfg.RedisPort))
	}
}

func runRelay(ctx context.Context, cfg *config.Config) {
	srv := relay.NewServer(ctx, cfg.RelayListenPort)
	go func() {
		<-ctx.Done()
		_ = srv.Dispose()
	}()
	Log.Info("relay listening", zap.Uint16("port", cfg.RelayListenPort))
	if err := srv.Start(); err != nil {
		Log.Warn("relay stopped", zap.Error(err))
	}
}

func runHost(ctx context.Context, cfg *config.Config) {
	code, err := session.GenerateCode()
	if err != nil {
		Log.Fatal("Failed to generate room code", zap.Error(err))
	}

	tr, err := dialTransport(ctx, cfg, code)
	if err != nil {
		Log.Fatal("Failed to connect transport", zap.Error(err))
	}
	defer tr.Close()

	opts := host.Options{DrawInterval: time.Duration(cfg.DrawIntervalSec) * time.Second}
	h, err := session.Create(ctx, tr, cfg.TopicPrefix, code, cfg.DisplayName, cfg.SheetCount, cfg.BetPrice, opts)
	if err != nil {
		Log.Fatal("Failed to create room", zap.Error(err))
	}
	fmt.Printf("room code: %s\n", h.Code)

	go printUpdates(ctx, h.UI)

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "start":
			h.Host.Inbox() <- host.StartRound{}
		case "reset":
			h.Host.Inbox() <- host.ResetRound{}
		case "kick":
			if len(fields) == 2 {
				h.Host.Inbox() <- host.Kick{ParticipantID: fields[1]}
			}
		case "mark":
			toggleMark(ctx, h.UI, fields)
		case "ready":
			_ = h.UI.SetReady(ctx, true)
		case "claim":
			_ = h.UI.Claim(ctx)
		case "quit":
			h.Host.Inbox() <- host.Shutdown{}
			return
		}
	}
}

func runJoin(ctx context.Context, cfg *config.Config, code string) {
	tr, err := dialTransport(ctx, cfg, code)
	if err != nil {
		Log.Fatal("Failed to connect transport", zap.Error(err))
	}
	defer tr.Close()

	timeout := time.Duration(cfg.JoinTimeoutSec) * time.Second
	s, err := session.Join(ctx, tr, cfg.TopicPrefix, code, cfg.DisplayName, cfg.SheetCount, timeout)
	if err != nil {
		Log.Fatal("Failed to join room", zap.String("code", code), zap.Error(err))
	}
	fmt.Printf("joined room %s\n", code)

	go printUpdates(ctx, s)

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "mark":
			toggleMark(ctx, s, fields)
		case "ready":
			_ = s.SetReady(ctx, true)
		case "name":
			if len(fields) == 2 {
				_ = s.Rename(ctx, fields[1])
			}
		case "claim":
			_ = s.Claim(ctx)
		case "leave":
			_ = s.Leave(ctx)
			return
		}
	}
}

func toggleMark(ctx context.Context, s *client.Session, fields []string) {
	if len(fields) != 2 {
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > game.MaxNumber {
		return
	}
	if err := s.ToggleMark(ctx, n); err != nil {
		Log.Warn("mark failed", zap.Error(err))
	}
}

func printUpdates(ctx context.Context, s *client.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case view := <-s.Updates():
			if view == nil {
				return
			}
			line := fmt.Sprintf("[%s] called=%v pot=%d players=%d", view.Status, view.CalledNumbers, view.Pot, len(view.Players))
			if view.CurrentNumber != nil {
				line += fmt.Sprintf(" current=%d", *view.CurrentNumber)
			}
			if view.Winner != nil {
				line += fmt.Sprintf(" winner=%s (+%v)", view.Winner.Name, view.WinningNumbers)
			}
			if view.Commentary != "" {
				line += " | " + view.Commentary
			}
			fmt.Println(line)
		}
	}
}
