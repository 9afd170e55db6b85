package telegram

import "context"

// Ack is the consumer's answer to one update received from a Channel. It
// plays the role of a handler's return values.
type Ack struct {
	Action Action
	Err    error
}

// ContinueAck acknowledges an update and asks for the next one.
func ContinueAck() Ack { return Ack{Action: Continue} }

// StopAck acknowledges an update and ends listening.
func StopAck() Ack { return Ack{Action: Stop} }

// FailAck reports that the update could not be handled. Listening ends and
// the update is delivered again by the next listener run.
func FailAck(err error) Ack { return Ack{Err: err} }

// Channel decouples a running Listener from its consumer. The listener runs
// on its own goroutine and at most one update is in flight: after receiving
// an update from Updates the consumer must send exactly one Ack on Acks before
// the next update is fetched or delivered.
type Channel struct {
	updates chan Update
	acks    chan Ack
	done    chan struct{}
	err     error
}

// Channel consumes l and starts listening on a new goroutine.
//
// Cancelling ctx releases the worker: an update that has not been received
// yet is treated as if the consumer returned Stop, an update that was received
// but not acknowledged is treated as failed. Closing Acks is treated as Stop.
// Updates is closed when the worker ends; Err then reports why.
func (l *Listener) Channel(ctx context.Context) *Channel {
	c := &Channel{
		updates: make(chan Update),
		acks:    make(chan Ack),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		defer close(c.updates)

		err := l.Listen(ctx, HandlerFunc(c.handle))
		// The consumer went away; that is a normal end. A failed
		// acknowledgment comes back joined and is kept.
		if err == context.Canceled && ctx.Err() != nil {
			err = nil
		}
		c.err = err
	}()

	return c
}

func (c *Channel) handle(ctx context.Context, u Update) (Action, error) {
	select {
	case c.updates <- u:
	case <-ctx.Done():
		return Stop, nil
	}

	select {
	case ack, ok := <-c.acks:
		if !ok {
			return Stop, nil
		}
		return ack.Action, ack.Err
	case <-ctx.Done():
		return Continue, ctx.Err()
	}
}

// Updates delivers updates one at a time.
func (c *Channel) Updates() <-chan Update { return c.updates }

// Acks takes one Ack per received update.
func (c *Channel) Acks() chan<- Ack { return c.acks }

// Done is closed when the worker has ended.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns the listener's result. It is nil until Done is closed, and nil
// after a Stop or a cancelled context.
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
