package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samehadar/telegram-bot/internal/delivery"
	"github.com/Samehadar/telegram-bot/internal/telegram"
	"github.com/Samehadar/telegram-bot/internal/telegram/telegramtest"
)

var alice = telegram.User{ID: 1001, FirstName: "Alice", LastName: "Liddell", Username: "alice"}

func newPoller(t *testing.T, srv *telegramtest.Server) *Poller {
	api := srv.API(t)
	return &Poller{
		API:      api,
		Listener: api.Listener(telegram.LongPoll{Timeout: time.Second}),
	}
}

func receive(t *testing.T, out <-chan *delivery.Event) *delivery.Event {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPollerForwardsAndConfirms(t *testing.T) {
	srv := telegramtest.NewServer(t)
	srv.PushText(10, alice, "hello")
	srv.PushText(11, alice, "again")
	p := newPoller(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *delivery.Event)
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx, out) }()

	ev := receive(t, out)
	assert.Equal(t, "10", ev.ID)
	assert.Equal(t, int64(1001), ev.ChatID)
	assert.Equal(t, int64(1001), ev.From)
	assert.Equal(t, "alice", ev.User)
	assert.Equal(t, "Alice Liddell", ev.Name)
	assert.Equal(t, "hello", ev.Text)

	// Nothing else arrives while the first event is unacknowledged.
	select {
	case <-out:
		t.Fatal("second event delivered before the first was acknowledged")
	case <-time.After(100 * time.Millisecond):
	}
	ev.Ack(nil)

	ev = receive(t, out)
	assert.Equal(t, "again", ev.Text)
	ev.Ack(nil)

	require.Eventually(t, func() bool { return srv.Offset() == 12 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestPollerFailedEventIsRedelivered(t *testing.T) {
	srv := telegramtest.NewServer(t)
	srv.PushText(20, alice, "first")
	srv.PushText(21, alice, "second")
	p := newPoller(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *delivery.Event)
	boom := errors.New("gateway down")

	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx, out) }()

	receive(t, out).Ack(nil)
	receive(t, out).Ack(boom)
	assert.ErrorIs(t, <-errc, boom)
	assert.Equal(t, int64(21), p.Listener.Confirmed())

	go func() { errc <- p.Run(ctx, out) }()
	ev := receive(t, out)
	assert.Equal(t, "21", ev.ID, "failed update comes back on the next run")
	ev.Ack(nil)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestPollerSkipsUnextractable(t *testing.T) {
	srv := telegramtest.NewServer(t)
	srv.Push(telegram.Update{UpdateID: 30})
	srv.PushText(31, alice, "text")
	p := newPoller(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *delivery.Event)
	go p.Run(ctx, out)

	ev := receive(t, out)
	assert.Equal(t, "31", ev.ID)
	ev.Ack(nil)
}
