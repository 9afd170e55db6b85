package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Samehadar/telegram-bot/internal/logging"
)

// ErrDisconnected is returned for requests that were pending when the
// connection dropped.
var ErrDisconnected = errors.New("gateway connection closed")

// Request is a request frame sent to the OpenClaw gateway.
type Request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// ChatSendParams are the params of a chat.send request.
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Response is a response frame. Frames of other types are ignored.
type Response struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

// Client manages a WebSocket connection to the OpenClaw gateway. It redials
// on the next Send after the connection drops.
type Client struct {
	url   string
	token string

	mu      sync.Mutex // guards conn and writes
	conn    *websocket.Conn
	pending map[string]chan Response
}

// NewClient creates a new gateway WebSocket client.
func NewClient(url, token string) *Client {
	return &Client{
		url:     url,
		token:   token,
		pending: make(map[string]chan Response),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	header := make(http.Header)
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}

	c.conn = conn
	go c.readLoop(conn)
	logging.L().Info("connected to gateway", "url", c.url)
	return nil
}

// Send forwards text to the agent session and waits for the gateway to accept
// it. idempotencyKey lets the gateway drop a redelivered message.
func (c *Client) Send(ctx context.Context, sessionKey, idempotencyKey, text string) error {
	req := Request{
		Type:   "req",
		ID:     uuid.NewString(),
		Method: "chat.send",
		Params: ChatSendParams{
			SessionKey:     sessionKey,
			Message:        text,
			IdempotencyKey: idempotencyKey,
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	reply := make(chan Response, 1)

	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.pending[req.ID] = reply
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Time{})
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		delete(c.pending, req.ID)
	}
	c.mu.Unlock()
	if err != nil {
		// A failed write leaves the connection unusable; the next Send redials.
		c.drop(conn, err)
		return fmt.Errorf("write message: %w", err)
	}

	select {
	case res, ok := <-reply:
		if !ok {
			return ErrDisconnected
		}
		if !res.OK {
			if res.Error != nil {
				return res.Error
			}
			return &ResponseError{Code: "UNKNOWN", Message: "request rejected"}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// readLoop routes response frames to their waiting Send until conn fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}

		var res Response
		if err := json.Unmarshal(data, &res); err != nil || res.Type != "res" {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

// drop forgets conn and fails every request waiting on it.
func (c *Client) drop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	conn.Close()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	if err != websocket.ErrCloseSent && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		logging.L().Warn("gateway connection lost", "err", err)
	}
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := conn.Close()
	c.drop(conn, websocket.ErrCloseSent)
	return err
}
