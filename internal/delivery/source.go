package delivery

import (
	"context"
	"sync"
)

// Event represents a single inbound message ready for the gateway.
type Event struct {
	ID     string // Telegram update id (idempotency key)
	ChatID int64  // chat to reply in
	From   int64  // sender user id
	User   string // sender @username, may be empty
	Name   string // sender display name
	Text   string // extracted, gateway-ready text

	once sync.Once
	ack  func(error)
}

// NewEvent returns an Event that calls ack when acknowledged.
func NewEvent(ack func(error)) *Event {
	return &Event{ack: ack}
}

// Ack reports that the consumer is done with e. A nil err confirms the
// message; a non-nil err asks the source to deliver it again later. Only the
// first call has an effect.
func (e *Event) Ack(err error) {
	e.once.Do(func() {
		if e.ack != nil {
			e.ack(err)
		}
	})
}

// Source produces inbound message events from a delivery channel. The source
// waits for each event to be acknowledged before producing the next one.
type Source interface {
	Run(ctx context.Context, out chan<- *Event) error
}
