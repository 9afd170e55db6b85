package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Samehadar/telegram-bot/internal/config"
	"github.com/Samehadar/telegram-bot/internal/delivery"
	"github.com/Samehadar/telegram-bot/internal/delivery/poller"
	"github.com/Samehadar/telegram-bot/internal/gateway"
	"github.com/Samehadar/telegram-bot/internal/logging"
	"github.com/Samehadar/telegram-bot/internal/relay"
	"github.com/Samehadar/telegram-bot/internal/security"
	"github.com/Samehadar/telegram-bot/internal/telegram"
	"github.com/Samehadar/telegram-bot/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logging.L().Error("invalid config", "err", err)
		os.Exit(1)
	}
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.L().Error("bridge stopped", "err", err)
		os.Exit(1)
	}
	logging.L().Info("shut down")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.L()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewListenerMetrics(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				log.Error("metrics server", "err", err)
			}
		}()
	}

	api, err := telegram.FromToken(cfg.Telegram.Token,
		telegram.WithEndpoint(cfg.Telegram.Endpoint),
		telegram.WithReadTimeout(time.Duration(cfg.Telegram.ReadTimeout)*time.Second),
		telegram.WithWriteTimeout(time.Duration(cfg.Telegram.WriteTimeout)*time.Second),
	)
	if err != nil {
		return err
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		if errors.Is(err, telegram.ErrUnauthorized) {
			return errors.New("the bot token was rejected by Telegram")
		}
		return err
	}
	log.Info("authorized", "bot", me.Username, "id", me.ID)

	// Connect to OpenClaw gateway.
	gw := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token)
	if err := gw.Connect(ctx); err != nil {
		return err
	}
	defer gw.Close()

	b := &bridge{
		api:   api,
		guard: security.New(cfg.Security),
		gw:    gw,
		relay: &relay.Relay{
			SessionsJSON: cfg.Gateway.SessionsJSON,
			API:          api,
			Tracker:      relay.NewTracker(),
		},
		sessionKey:  cfg.Gateway.SessionKey,
		sendTimeout: 30 * time.Second,
	}

	src := &poller.Poller{
		API: api,
		Listener: api.Listener(
			telegram.LongPoll{Timeout: time.Duration(cfg.Telegram.PollTimeout) * time.Second},
			telegram.WithObserver(metrics),
		),
	}

	log.Info("bridge running",
		"gateway", cfg.Gateway.URL,
		"session", cfg.Gateway.SessionKey,
		"mode", cfg.Security.Mode,
		"poll_timeout", cfg.Telegram.PollTimeout,
	)

	events := make(chan *delivery.Event)
	go supervise(ctx, src, events, time.Second, 30*time.Second)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			b.handle(ctx, ev)
		}
	}
}
