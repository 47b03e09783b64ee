// echobot connects to the servers listed in a TOML config file, echoes
// channel text messages back, and logs presence changes. It is the
// smallest useful bot and doubles as a wiring example.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lightforgemedia/go-talkbot/pkg/bot"
	"github.com/lightforgemedia/go-talkbot/pkg/config"
	"github.com/lightforgemedia/go-talkbot/pkg/transport/wsbridge"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

func main() {
	configPath := flag.String("config", "talkbot.toml", "path to the TOML config file")
	gatewayURL := flag.String("gateway", "", "gateway WebSocket URL (overrides the config file)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *configPath, *gatewayURL); err != nil {
		logger.Error("echobot failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, gatewayURL string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if gatewayURL == "" {
		gatewayURL = cfg.GatewayURL
	}
	if gatewayURL == "" {
		return fmt.Errorf("no gateway URL: set gateway_url in %s or pass -gateway", configPath)
	}

	opts := []bot.Option{
		bot.WithLogger(logger),
		bot.WithTransport(wsbridge.Factory(gatewayURL, wsbridge.WithLogger(logger))),
	}
	if cfg.ClientName != "" {
		opts = append(opts, bot.WithClientName(cfg.ClientName))
	}
	if cfg.PollIntervalMs > 0 {
		opts = append(opts, bot.WithPollInterval(time.Duration(cfg.PollIntervalMs)*time.Millisecond))
	}
	b := bot.New(opts...)

	registerHandlers(b, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, srv := range cfg.Servers {
		_, ok, err := b.AddServer(ctx, srv.ServerInfo, srv.Options()...)
		if err != nil {
			return fmt.Errorf("adding %s: %w", srv.Addr(), err)
		}
		if !ok {
			logger.Warn("server not reachable at startup, keeping it registered", "server", srv.Addr())
		}
	}

	logger.Info("echobot running", "servers", len(cfg.Servers))
	return b.Run(ctx)
}

func registerHandlers(b *bot.Bot, logger *slog.Logger) {
	b.On(ttevent.KindReady, func() {
		logger.Info("event loop ready")
	})
	b.On(ttevent.KindConnectionLost, func(srv ttevent.ServerRef) {
		logger.Warn("lost connection", "server", srv.Endpoint.Addr())
	})
	b.On(ttevent.KindUserJoin, func(user ttevent.UserRef, ch ttevent.ChannelRef) {
		logger.Info("user joined", "user", user.UserID(), "channel", ch.ID)
	})
	b.On(ttevent.KindUserLeft, func(user ttevent.UserRef, ch ttevent.ChannelRef) {
		logger.Info("user left", "user", user.UserID(), "channel", ch.ID)
	})
	b.On(ttevent.KindMessage, func(msg ttevent.MessageRef) {
		var m struct {
			Type      int    `json:"msg_type"`
			FromID    int    `json:"from_id"`
			ChannelID int    `json:"channel_id"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal(msg.Raw, &m); err != nil {
			logger.Warn("undecodable message payload", "error", err)
			return
		}
		logger.Info("message", "from", m.FromID, "text", m.Text)
		for _, s := range b.Sessions() {
			if !s.LoggedIn() {
				continue
			}
			if m.ChannelID > 0 {
				if err := s.SendChannelMessage(m.ChannelID, m.Text); err != nil {
					logger.Warn("echo failed", "error", err)
				}
			}
		}
	})
}
