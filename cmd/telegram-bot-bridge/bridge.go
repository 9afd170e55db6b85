package main

import (
	"context"
	"errors"
	"time"

	"github.com/Samehadar/telegram-bot/internal/delivery"
	"github.com/Samehadar/telegram-bot/internal/logging"
	"github.com/Samehadar/telegram-bot/internal/security"
	"github.com/Samehadar/telegram-bot/internal/telegram"
)

// gatewaySender is the part of gateway.Client the bridge uses.
type gatewaySender interface {
	Send(ctx context.Context, sessionKey, idempotencyKey, text string) error
}

// replier is the part of relay.Relay the bridge uses.
type replier interface {
	Send(ctx context.Context, chatID int64, sessionKey string, since time.Time) error
}

// bridge forwards accepted events to the gateway and relays the replies.
type bridge struct {
	api         *telegram.Api
	guard       *security.Guard
	gw          gatewaySender
	relay       replier
	sessionKey  string
	sendTimeout time.Duration
}

// handle processes one event and acknowledges it. An event is failed only if
// the gateway did not take it, so it will be delivered again.
func (b *bridge) handle(ctx context.Context, ev *delivery.Event) {
	log := logging.L().With("update_id", ev.ID, "from", ev.From)

	switch b.guard.Check(ev.From, ev.User) {
	case security.Deny:
		log.Info("sender not allowed")
		if msg := b.guard.DenyMessage(); msg != "" {
			if _, err := b.api.SendMessage(ctx, ev.ChatID, msg, nil); err != nil {
				log.Warn("deny notice failed", "err", err)
			}
		}
		ev.Ack(nil)
		return
	case security.RateLimited:
		log.Info("sender rate limited")
		ev.Ack(nil)
		return
	}

	sessionKey := b.guard.SessionKey(b.sessionKey, ev.From)
	role := b.guard.Role(ev.From, ev.User)

	// The relay looks for replies recorded after this point.
	sendAt := time.Now().UTC()

	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	err := b.gw.Send(sendCtx, sessionKey, ev.ID, ev.Text)
	cancel()
	if err != nil {
		log.Error("forward to gateway", "err", err)
		ev.Ack(err)
		return
	}
	ev.Ack(nil)
	log.Info("forwarded", "session", sessionKey, "role", role, "name", ev.Name)

	go func() {
		if err := b.relay.Send(ctx, ev.ChatID, sessionKey, sendAt); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("relay", "err", err)
		}
	}()
}

// source is the part of poller.Poller the bridge uses.
type source interface {
	Run(ctx context.Context, out chan<- *delivery.Event) error
}

// supervise runs src until ctx ends, restarting it after failures. Restarts
// back off from minBackoff up to maxBackoff and reset once src has made
// progress.
func supervise(ctx context.Context, src source, out chan<- *delivery.Event, minBackoff, maxBackoff time.Duration) {
	backoff := minBackoff
	for {
		started := time.Now()
		err := src.Run(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		logging.L().Error("poller stopped, restarting", "err", err, "in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
