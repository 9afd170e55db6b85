package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samehadar/telegram-bot/internal/telegram"
	"github.com/Samehadar/telegram-bot/internal/telegram/telegramtest"
)

func run(t *testing.T, srv *telegramtest.Server, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", telegramtest.Token)
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append([]string{"--endpoint", srv.URL}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGetMe(t *testing.T) {
	srv := telegramtest.NewServer(t)
	srv.SetResult("getMe", telegram.User{ID: 7, IsBot: true, FirstName: "Echo", Username: "echo_bot"})

	out, err := run(t, srv, "getme")
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "echo_bot"`)
}

func TestSendFlags(t *testing.T) {
	srv := telegramtest.NewServer(t)

	_, err := run(t, srv, "send", "--chat", "42", "--text", "*hi*", "--parse-mode", "Markdown", "--reply-to", "5")
	require.NoError(t, err)

	reqs := srv.Requests("sendMessage")
	require.Len(t, reqs, 1)
	assert.Equal(t, "42", reqs[0].Get("chat_id"))
	assert.Equal(t, "*hi*", reqs[0].Get("text"))
	assert.Equal(t, "Markdown", reqs[0].Get("parse_mode"))
	assert.Equal(t, "5", reqs[0].Get("reply_to_message_id"))
	assert.False(t, reqs[0].Has("disable_web_page_preview"))
}

func TestSendRequiresChat(t *testing.T) {
	srv := telegramtest.NewServer(t)
	_, err := run(t, srv, "send", "--text", "hi")
	assert.Error(t, err)
	assert.Empty(t, srv.Requests("sendMessage"))
}

func TestMissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	cmd := newRootCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"getme"})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()

	var envErr *telegram.EnvError
	assert.ErrorAs(t, err, &envErr)
}

func TestUpdatesOnlySendsGivenFlags(t *testing.T) {
	srv := telegramtest.NewServer(t)
	_, err := run(t, srv, "updates", "--offset", "3")
	require.NoError(t, err)

	reqs := srv.Requests("getUpdates")
	require.Len(t, reqs, 1)
	assert.Equal(t, "3", reqs[0].Get("offset"))
	assert.False(t, reqs[0].Has("timeout"))
	assert.False(t, reqs[0].Has("limit"))
}

func TestWebhookRemove(t *testing.T) {
	srv := telegramtest.NewServer(t)
	_, err := run(t, srv, "webhook")
	require.NoError(t, err)

	reqs := srv.Requests("setWebhook")
	require.Len(t, reqs, 1)
	assert.Equal(t, "", reqs[0].Get("url"))
}

func TestListenGreetsAndStops(t *testing.T) {
	srv := telegramtest.NewServer(t)
	srv.PushText(5, telegram.User{ID: 100, FirstName: "Ann"}, "hello")
	srv.PushText(6, telegram.User{ID: 200, FirstName: "Bob"}, "hey")
	srv.PushText(7, telegram.User{ID: 300, FirstName: "Cid"}, "yo")

	out, err := run(t, srv, "listen", "--max", "2", "--timeout", "1s")
	require.NoError(t, err)

	sent := srv.Requests("sendMessage")
	require.Len(t, sent, 2)
	assert.Equal(t, "Hi, Ann!", sent[0].Get("text"))
	assert.Equal(t, "100", sent[0].Get("chat_id"))
	assert.Equal(t, "Hi, Bob!", sent[1].Get("text"))
	assert.Contains(t, out, "next offset: 7")
	assert.Equal(t, 1, srv.Pending(), "the third update stays queued")
}
