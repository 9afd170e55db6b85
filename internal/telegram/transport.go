package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Default low-level timeouts for a single exchange.
const (
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// response is the envelope wrapped around every Bot API result.
type response struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description *string             `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// transport performs single method calls against one bot endpoint. Each
// Api and each Listener owns its own transport.
type transport struct {
	baseURL      string // {endpoint}/bot{token}
	httpClient   *http.Client
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newTransport(baseURL string, readTimeout, writeTimeout time.Duration, hc *http.Client) *transport {
	if hc == nil {
		hc = newHTTPClient(writeTimeout)
	}
	return &transport{
		baseURL:      baseURL,
		httpClient:   hc,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func newHTTPClient(writeTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: writeTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: writeTimeout,
			ForceAttemptHTTP2:   true,
		},
	}
}

// clone returns a transport with the same configuration and a fresh HTTP
// client, so the copy shares no connection state with t.
func (t *transport) clone() *transport {
	return newTransport(t.baseURL, t.readTimeout, t.writeTimeout, nil)
}

func (t *transport) methodURL(method string) string {
	return t.baseURL + "/" + method
}

// send calls method with p and decodes the result into T. wait is how long the
// server may hold the request open (the long-poll timeout); it extends the
// deadline of the exchange on top of the read and write timeouts.
func send[T any](ctx context.Context, t *transport, method string, p *params, wait time.Duration) (T, error) {
	var zero T

	body, err := t.exchange(ctx, method, p, wait)
	if err != nil {
		return zero, err
	}
	return decode[T](method, body)
}

func (t *transport) exchange(ctx context.Context, method string, p *params, wait time.Duration) ([]byte, error) {
	if p == nil {
		p = newParams()
	}
	ctx, cancel := context.WithTimeout(ctx, t.writeTimeout+wait+t.readTimeout)
	defer cancel()

	form := p.encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), strings.NewReader(form))
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Close = true

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: redact(err, t.baseURL)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("read response: %w", err)}
	}
	return body, nil
}

// decode unwraps the envelope. The HTTP status is deliberately ignored: the
// API reports failures in the envelope with ok=false and a description.
func decode[T any](method string, body []byte) (T, error) {
	var zero T

	var env response
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, &DecodeError{Method: method, Body: body, Err: err}
	}

	switch {
	case !env.OK && env.Description != nil:
		apiErr := &APIError{
			Method:      method,
			Description: *env.Description,
			ErrorCode:   env.ErrorCode,
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
			apiErr.MigrateToChatID = env.Parameters.MigrateToChatID
		}
		return zero, apiErr
	case env.OK && hasResult(env.Result):
		var out T
		if err := json.Unmarshal(env.Result, &out); err != nil {
			return zero, &DecodeError{Method: method, Body: body, Err: err}
		}
		return out, nil
	default:
		return zero, &InvalidStateError{Method: method, OK: env.OK}
	}
}

func hasResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// redact strips the bot token out of errors that quote the request URL.
func redact(err error, baseURL string) error {
	msg := err.Error()
	i := strings.LastIndex(baseURL, "/bot")
	if i < 0 || !strings.Contains(msg, baseURL) {
		return err
	}
	return &redactedError{
		msg: strings.ReplaceAll(msg, baseURL, baseURL[:i]+"/bot<redacted>"),
		err: err,
	}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
