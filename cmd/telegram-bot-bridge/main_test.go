package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samehadar/telegram-bot/internal/config"
	"github.com/Samehadar/telegram-bot/internal/delivery"
	"github.com/Samehadar/telegram-bot/internal/security"
	"github.com/Samehadar/telegram-bot/internal/telegram/telegramtest"
)

type sentMessage struct {
	sessionKey, idempotencyKey, text string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (g *fakeGateway) Send(_ context.Context, sessionKey, idempotencyKey, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sentMessage{sessionKey, idempotencyKey, text})
	return nil
}

type fakeRelay struct {
	calls chan int64
}

func (r *fakeRelay) Send(_ context.Context, chatID int64, _ string, _ time.Time) error {
	r.calls <- chatID
	return nil
}

func newBridge(t *testing.T, srv *telegramtest.Server, sec config.SecurityConfig) (*bridge, *fakeGateway, *fakeRelay) {
	gw := &fakeGateway{}
	rl := &fakeRelay{calls: make(chan int64, 4)}
	return &bridge{
		api:         srv.API(t),
		guard:       security.New(sec),
		gw:          gw,
		relay:       rl,
		sessionKey:  "main",
		sendTimeout: time.Second,
	}, gw, rl
}

func securityCfg() config.SecurityConfig {
	return config.SecurityConfig{
		Mode:             "allowlist",
		Roles:            map[string][]string{"admin": {"1001"}},
		DefaultRole:      "member",
		DenyMessage:      "private bot",
		RateLimit:        1,
		RateWindow:       60,
		SessionIsolation: true,
	}
}

// event builds an event and records how it was acknowledged.
func event(id string, from int64, text string) (*delivery.Event, *[]error) {
	var acks []error
	ev := delivery.NewEvent(func(err error) { acks = append(acks, err) })
	ev.ID = id
	ev.ChatID = from
	ev.From = from
	ev.Text = text
	return ev, &acks
}

func TestHandleForwardsAndRelays(t *testing.T) {
	srv := telegramtest.NewServer(t)
	b, gw, rl := newBridge(t, srv, securityCfg())

	ev, acks := event("10", 1001, "hello")
	b.handle(context.Background(), ev)

	require.Equal(t, []error{nil}, *acks)
	assert.Equal(t, []sentMessage{{"main-tg-1001", "10", "hello"}}, gw.sent)
	select {
	case chat := <-rl.calls:
		assert.Equal(t, int64(1001), chat)
	case <-time.After(time.Second):
		t.Fatal("relay not started")
	}
}

func TestHandleDeniesUnknownSender(t *testing.T) {
	srv := telegramtest.NewServer(t)
	b, gw, _ := newBridge(t, srv, securityCfg())

	ev, acks := event("11", 2002, "let me in")
	b.handle(context.Background(), ev)

	assert.Equal(t, []error{nil}, *acks, "denied messages are confirmed, not redelivered")
	assert.Empty(t, gw.sent)
	sent := srv.Requests("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "private bot", sent[0].Get("text"))
	assert.Equal(t, "2002", sent[0].Get("chat_id"))
}

func TestHandleRateLimited(t *testing.T) {
	srv := telegramtest.NewServer(t)
	b, gw, _ := newBridge(t, srv, securityCfg())

	first, _ := event("12", 1001, "one")
	b.handle(context.Background(), first)
	second, acks := event("13", 1001, "two")
	b.handle(context.Background(), second)

	assert.Equal(t, []error{nil}, *acks)
	assert.Len(t, gw.sent, 1)
}

func TestHandleGatewayFailureFailsEvent(t *testing.T) {
	srv := telegramtest.NewServer(t)
	b, gw, rl := newBridge(t, srv, securityCfg())
	boom := errors.New("gateway down")
	gw.err = boom

	ev, acks := event("14", 1001, "hello")
	b.handle(context.Background(), ev)

	require.Len(t, *acks, 1)
	assert.ErrorIs(t, (*acks)[0], boom)
	select {
	case <-rl.calls:
		t.Fatal("relay must not run for an unforwarded message")
	case <-time.After(50 * time.Millisecond):
	}
}

type flakySource struct {
	runs atomic.Int32
	fail int32
}

func (s *flakySource) Run(ctx context.Context, _ chan<- *delivery.Event) error {
	if s.runs.Add(1) <= s.fail {
		return errors.New("handler failed")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSuperviseRestarts(t *testing.T) {
	src := &flakySource{fail: 3}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervise(ctx, src, nil, time.Millisecond, 4*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.runs.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervise did not return after cancel")
	}
}
