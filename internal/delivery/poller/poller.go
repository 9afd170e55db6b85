package poller

import (
	"context"
	"strconv"
	"strings"

	"github.com/Samehadar/telegram-bot/internal/delivery"
	"github.com/Samehadar/telegram-bot/internal/logging"
	"github.com/Samehadar/telegram-bot/internal/telegram"
)

// Poller implements delivery.Source by long polling the Bot API.
//
// A Telegram update is confirmed only after the consumer acknowledged the
// event built from it, so at most one message is in flight. An event
// acknowledged with an error ends Run with that error; the same update is
// delivered again by the next Run on the same Listener.
type Poller struct {
	API      *telegram.Api
	Listener *telegram.Listener
}

// Run forwards messages until ctx is cancelled or an event fails.
func (p *Poller) Run(ctx context.Context, out chan<- *delivery.Event) error {
	logging.L().Info("polling started", "component", "poller", "offset", p.Listener.Confirmed())
	ch := p.Listener.Channel(ctx)

	for {
		u, ok := <-ch.Updates()
		if !ok {
			<-ch.Done()
			if err := ch.Err(); err != nil {
				return err
			}
			return ctx.Err()
		}

		ack := p.forward(ctx, u, out)
		select {
		case ch.Acks() <- ack:
		case <-ctx.Done():
			<-ch.Done()
			return ctx.Err()
		}
	}
}

// forward turns u into an event, waits for the consumer to acknowledge it and
// translates the outcome into the listener's Ack.
func (p *Poller) forward(ctx context.Context, u telegram.Update, out chan<- *delivery.Event) telegram.Ack {
	msg := u.Message
	text, ok := delivery.ExtractText(ctx, msg, p.API)
	if !ok {
		return telegram.ContinueAck()
	}

	done := make(chan error, 1)
	ev := delivery.NewEvent(func(err error) { done <- err })
	ev.ID = strconv.FormatInt(u.UpdateID, 10)
	ev.ChatID = msg.Chat.ID
	if msg.From != nil {
		ev.From = msg.From.ID
		ev.User = msg.From.Username
		ev.Name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	ev.Text = text

	select {
	case out <- ev:
	case <-ctx.Done():
		return telegram.StopAck()
	}

	select {
	case err := <-done:
		if err != nil {
			logging.L().Warn("event failed, will be redelivered", "update_id", u.UpdateID, "err", err)
			return telegram.FailAck(err)
		}
		logging.L().Debug("forwarded update", "update_id", u.UpdateID, "chat_id", ev.ChatID)
		return telegram.ContinueAck()
	case <-ctx.Done():
		return telegram.FailAck(ctx.Err())
	}
}
