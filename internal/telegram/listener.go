package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Samehadar/telegram-bot/internal/logging"
)

// DefaultPollTimeout is how long the server may hold a getUpdates request
// when LongPoll.Timeout is zero.
const DefaultPollTimeout = 30 * time.Second

// ListeningMethod selects how a Listener receives updates. LongPoll is the
// only method; the interface is sealed so new methods can be added without
// changing Listen.
type ListeningMethod interface {
	listeningMethod()
}

// LongPoll receives updates by repeatedly calling getUpdates. The server holds
// each request open for up to Timeout, rounded up to whole seconds; zero means
// DefaultPollTimeout.
type LongPoll struct {
	Timeout time.Duration
}

func (LongPoll) listeningMethod() {}

func (lp LongPoll) seconds() int64 {
	if lp.Timeout <= 0 {
		return int64(DefaultPollTimeout / time.Second)
	}
	// Rounding down could send timeout=0, which is short polling.
	return int64((lp.Timeout + time.Second - 1) / time.Second)
}

// Action tells the listener what to do after a handler returns.
type Action int

const (
	// Continue keeps listening.
	Continue Action = iota
	// Stop ends listening. The update passed to the handler counts as handled.
	Stop
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Handler handles one update. An error ends listening without marking the
// update handled, so it is delivered again by the next Listen.
type Handler interface {
	Handle(ctx context.Context, u Update) (Action, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Update) (Action, error)

func (f HandlerFunc) Handle(ctx context.Context, u Update) (Action, error) {
	return f(ctx, u)
}

// Observer is told about listener progress. Implementations must be cheap
// and must not block.
type Observer interface {
	FetchFailed(err error)
	UpdateHandled(updateID int64)
	Confirmed(offset int64)
}

type nopObserver struct{}

func (nopObserver) FetchFailed(error)   {}
func (nopObserver) UpdateHandled(int64) {}
func (nopObserver) Confirmed(int64)     {}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithObserver reports listener progress to o.
func WithObserver(o Observer) ListenerOption {
	return func(l *Listener) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithOffset starts the listener at offset instead of 0, e.g. to skip updates
// known to be handled.
func WithOffset(offset int64) ListenerOption {
	return func(l *Listener) {
		l.confirmed = offset
	}
}

// Listener receives updates and hands them to a handler in order. Obtain one
// with Api.Listener. A Listener must not be used by more than one goroutine at
// a time.
type Listener struct {
	method ListeningMethod
	// confirmed is the last offset known to have reached the server. The next
	// Listen starts from it.
	confirmed int64
	transport *transport
	observer  Observer
}

// Confirmed returns the last offset communicated to the server.
func (l *Listener) Confirmed() int64 {
	return l.confirmed
}

// Listen receives updates and calls h for each of them until h returns Stop
// or an error, or ctx is done.
//
// Returning Stop or nil error marks the update handled: it will not be passed
// to a handler of this Listener again. When h returns an error, Listen
// acknowledges the updates handled so far and returns that error; the failed
// update is delivered again by the next Listen. When ctx ends, the updates
// handled so far are acknowledged as well and ctx.Err() is returned. A failed
// acknowledgment is joined to the error being returned.
//
// Failed fetches are logged and retried immediately, without backoff.
func (l *Listener) Listen(ctx context.Context, h Handler) error {
	switch m := l.method.(type) {
	case LongPoll:
		return l.longPoll(ctx, m.seconds(), h)
	default:
		return fmt.Errorf("telegram: unsupported listening method %T", l.method)
	}
}

func (l *Listener) longPoll(ctx context.Context, timeout int64, h Handler) error {
	log := logging.L().With("component", "listener")

	// handledUntil is the smallest update id not yet handled.
	handledUntil := l.confirmed

	for {
		if err := ctx.Err(); err != nil {
			return l.interrupted(ctx, handledUntil, err)
		}

		updates, err := l.fetch(ctx, handledUntil, &timeout, nil)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return l.interrupted(ctx, handledUntil, ctxErr)
			}
			// TODO: distinguish transient from permanent failures and back off.
			log.Error("fetch updates", "offset", handledUntil, "err", err)
			l.observer.FetchFailed(err)
			continue
		}
		l.confirm(handledUntil)

		for _, u := range updates {
			action, err := h.Handle(ctx, u)
			if err != nil {
				log.Error("handler failed", "update_id", u.UpdateID, "err", err)
				if ackErr := l.acknowledge(ctx, handledUntil); ackErr != nil {
					return errors.Join(err, ackErr)
				}
				return err
			}

			if u.UpdateID >= handledUntil {
				handledUntil = u.UpdateID + 1
			}
			l.observer.UpdateHandled(u.UpdateID)

			if action == Stop {
				if err := l.acknowledge(ctx, handledUntil); err != nil {
					return err
				}
				log.Debug("listener stopped", "offset", handledUntil)
				return nil
			}
		}
	}
}

// interrupted ends a listen cut short by ctx. Updates handled since the last
// confirmation are acknowledged first so the next Listen does not see them.
func (l *Listener) interrupted(ctx context.Context, handledUntil int64, err error) error {
	if handledUntil <= l.confirmed {
		return err
	}
	if ackErr := l.acknowledge(ctx, handledUntil); ackErr != nil {
		return errors.Join(err, ackErr)
	}
	return err
}

// fetch calls getUpdates at offset. The server never returns an update with a
// smaller id once it has seen offset.
func (l *Listener) fetch(ctx context.Context, offset int64, timeout, limit *int64) ([]Update, error) {
	p := newParams()
	p.addInt("offset", offset)
	p.addIntOpt("timeout", timeout)
	p.addIntOpt("limit", limit)
	var wait time.Duration
	if timeout != nil {
		wait = time.Duration(*timeout) * time.Second
	}
	return send[[]Update](ctx, l.transport, "getUpdates", p, wait)
}

// acknowledge tells the server that every update below offset is handled,
// without waiting for or returning new ones. It is sent even if ctx is
// already cancelled.
func (l *Listener) acknowledge(ctx context.Context, offset int64) error {
	var limit int64
	if _, err := l.fetch(context.WithoutCancel(ctx), offset, nil, &limit); err != nil {
		return fmt.Errorf("acknowledge offset %d: %w", offset, err)
	}
	l.confirm(offset)
	return nil
}

func (l *Listener) confirm(offset int64) {
	if offset > l.confirmed {
		l.confirmed = offset
	}
	l.observer.Confirmed(l.confirmed)
}
