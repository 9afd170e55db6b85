// Package telegram is a Telegram Bot API client with a long-poll update
// listener.
//
// An Api is created from a token (FromToken) or from an environment variable
// (FromEnv) and exposes the bot methods. Updates are received through a
// Listener, obtained with Api.Listener:
//
//	api, err := telegram.FromEnv("TELEGRAM_BOT_TOKEN")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l := api.Listener(telegram.LongPoll{})
//	err = l.Listen(ctx, telegram.HandlerFunc(func(ctx context.Context, u telegram.Update) (telegram.Action, error) {
//	    if u.Message != nil && u.Message.Text != "" {
//	        if _, err := api.SendMessage(ctx, u.Message.Chat.ID, "Hi!", nil); err != nil {
//	            return telegram.Continue, err
//	        }
//	    }
//	    return telegram.Continue, nil
//	}))
//
// Listen delivers every update to the handler at least once. An update whose
// handler returned without error is acknowledged and is not delivered again
// by the same Listener; if the process dies before that acknowledgment reaches
// the server, the update is delivered again on the next start.
//
// Listener.Channel runs the same loop on its own goroutine and hands updates
// over a channel, one at a time: the next update is only produced after the
// previous one is acknowledged.
package telegram

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultEndpoint is the public Bot API server.
const DefaultEndpoint = "https://api.telegram.org"

// Api sends requests to the Bot API on behalf of one bot.
//
// An Api is safe for concurrent use. Listeners created from it use their own
// HTTP client and share no state with the Api.
type Api struct {
	endpoint  string
	token     string
	transport *transport
}

// Option configures an Api.
type Option func(*apiConfig)

type apiConfig struct {
	endpoint     string
	readTimeout  time.Duration
	writeTimeout time.Duration
	httpClient   *http.Client
}

// WithEndpoint sets the API server, e.g. a local Bot API server or a test
// server. The default is DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *apiConfig) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithReadTimeout bounds reading a response, beyond any long-poll wait.
func WithReadTimeout(d time.Duration) Option {
	return func(c *apiConfig) {
		c.readTimeout = d
	}
}

// WithWriteTimeout bounds connecting and writing a request.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *apiConfig) {
		c.writeTimeout = d
	}
}

// WithHTTPClient makes the Api use hc for its own calls. Listeners always
// build their own client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *apiConfig) {
		c.httpClient = hc
	}
}

// FromToken creates an Api for token. It only checks that the token can form a
// valid API URL; call GetMe to verify it with the server.
func FromToken(token string, opts ...Option) (*Api, error) {
	cfg := apiConfig{
		endpoint:     DefaultEndpoint,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if token == "" {
		return nil, &InvalidTokenError{Err: fmt.Errorf("empty token")}
	}
	if strings.ContainsAny(token, "/?#") {
		return nil, &InvalidTokenError{Err: fmt.Errorf("token contains URL delimiters")}
	}
	base := cfg.endpoint + "/bot" + token
	if _, err := url.Parse(base + "/getMe"); err != nil {
		return nil, &InvalidTokenError{Err: err}
	}

	return &Api{
		endpoint:  cfg.endpoint,
		token:     token,
		transport: newTransport(base, cfg.readTimeout, cfg.writeTimeout, cfg.httpClient),
	}, nil
}

// FromEnv reads the token from the environment variable name and calls
// FromToken with it.
func FromEnv(name string, opts ...Option) (*Api, error) {
	token := os.Getenv(name)
	if token == "" {
		return nil, &EnvError{Var: name}
	}
	return FromToken(token, opts...)
}

// Listener returns a Listener receiving updates with method. The listener
// starts from offset 0 and owns a fresh HTTP client.
func (a *Api) Listener(method ListeningMethod, opts ...ListenerOption) *Listener {
	l := &Listener{
		method:    method,
		transport: a.transport.clone(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FileURL returns the download URL of a file obtained with GetFile.
func (a *Api) FileURL(f *File) string {
	if f == nil || f.FilePath == "" {
		return ""
	}
	return a.endpoint + "/file/bot" + a.token + "/" + f.FilePath
}
