package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway accepts chat.send requests and answers them with reply.
type fakeGateway struct {
	srv   *httptest.Server
	reply func(Request) Response

	mu     sync.Mutex
	auth   []string
	params []ChatSendParams
	conns  []*websocket.Conn
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		reply: func(r Request) Response { return Response{Type: "res", ID: r.ID, OK: true} },
	}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.auth = append(g.auth, r.Header.Get("Authorization"))
		g.conns = append(g.conns, conn)
		g.mu.Unlock()

		defer conn.Close()
		for {
			var req struct {
				Request
				Params ChatSendParams `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			g.mu.Lock()
			g.params = append(g.params, req.Params)
			reply := g.reply
			g.mu.Unlock()

			// Unrelated frames must be skipped by the client.
			conn.WriteJSON(map[string]string{"type": "event", "event": "tick"})
			conn.WriteJSON(reply(req.Request))
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *fakeGateway) dropAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		c.Close()
	}
}

func TestSend(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.url(), "secret")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), "main", "42", "hello"))

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"Bearer secret"}, g.auth)
	require.Len(t, g.params, 1)
	assert.Equal(t, ChatSendParams{SessionKey: "main", Message: "hello", IdempotencyKey: "42"}, g.params[0])
}

func TestSendUsesFreshRequestIDs(t *testing.T) {
	g := newFakeGateway(t)
	var (
		mu  sync.Mutex
		ids []string
	)
	g.reply = func(r Request) Response {
		mu.Lock()
		ids = append(ids, r.ID)
		mu.Unlock()
		return Response{Type: "res", ID: r.ID, OK: true}
	}
	c := NewClient(g.url(), "")
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), "main", "1", "a"))
	require.NoError(t, c.Send(context.Background(), "main", "2", "b"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	for _, id := range ids {
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	}
}

func TestSendRejected(t *testing.T) {
	g := newFakeGateway(t)
	g.reply = func(r Request) Response {
		return Response{Type: "res", ID: r.ID, Error: &ResponseError{Code: "INVALID_REQUEST", Message: "unknown session"}}
	}
	c := NewClient(g.url(), "")
	defer c.Close()

	err := c.Send(context.Background(), "nope", "1", "hi")
	var rerr *ResponseError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "INVALID_REQUEST", rerr.Code)
}

func TestSendTimesOutWithoutReply(t *testing.T) {
	g := newFakeGateway(t)
	g.reply = func(r Request) Response { return Response{Type: "res", ID: "someone-else", OK: true} }
	c := NewClient(g.url(), "")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Send(ctx, "main", "1", "hi"), context.DeadlineExceeded)
}

func TestSendRedialsAfterDrop(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.url(), "")
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), "main", "1", "a"))
	g.dropAll()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Send(context.Background(), "main", "2", "b"))
	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Len(t, g.auth, 2)
}

func TestSendRedialsAfterWriteFailure(t *testing.T) {
	g := newFakeGateway(t)
	c := NewClient(g.url(), "")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	require.Error(t, c.Send(expired, "main", "1", "a"))

	c.mu.Lock()
	dropped := c.conn == nil
	c.mu.Unlock()
	assert.True(t, dropped, "a failed write must drop the connection")

	require.NoError(t, c.Send(context.Background(), "main", "2", "b"))
	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Len(t, g.auth, 2)
	require.Len(t, g.params, 1)
	assert.Equal(t, "b", g.params[0].Message)
}

func TestConnectFails(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
	assert.NoError(t, c.Close())
}

func TestRequestFrameShape(t *testing.T) {
	data, err := json.Marshal(Request{Type: "req", ID: "x", Method: "chat.send", Params: ChatSendParams{SessionKey: "s", Message: "m", IdempotencyKey: "k"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"req","id":"x","method":"chat.send","params":{"sessionKey":"s","message":"m","idempotencyKey":"k"}}`, string(data))
}
