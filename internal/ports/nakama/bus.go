package nakama

import (
	"fmt"

	"tabletennis/internal/app"
)

// matchBus queues events published by the match core during a callback. The
// handler flushes the queue to the dispatcher before returning to Nakama.
type matchBus struct {
	connected func(userID string) bool
	queue     []app.Event
}

var _ app.MessageBus = (*matchBus)(nil)

func newMatchBus(connected func(userID string) bool) *matchBus {
	return &matchBus{connected: connected}
}

func (b *matchBus) SendTo(userID string, ev app.Event) error {
	if b.connected != nil && !b.connected(userID) {
		return fmt.Errorf("%s for %s: %w", ev.Kind, userID, app.ErrUnknownRecipient)
	}
	ev.Recipients = []string{userID}
	b.queue = append(b.queue, ev)
	return nil
}

func (b *matchBus) Broadcast(ev app.Event) error {
	ev.Recipients = nil
	b.queue = append(b.queue, ev)
	return nil
}

// drain returns the queued events in publish order and empties the queue.
func (b *matchBus) drain() []app.Event {
	out := b.queue
	b.queue = nil
	return out
}
