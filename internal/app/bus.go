package app

import "errors"

// ErrUnknownRecipient is returned when a targeted message names a client that
// is not connected.
var ErrUnknownRecipient = errors.New("recipient not connected")

// MessageBus delivers match events to observers.
type MessageBus interface {
	// SendTo delivers ev to a single client only.
	SendTo(clientID string, ev Event) error
	// Broadcast delivers ev to every connected client.
	Broadcast(ev Event) error
}

// MemoryBus is an in-memory MessageBus that queues every event in send order.
type MemoryBus struct {
	Sent []Event
}

// NewMemoryBus returns an empty queue.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) SendTo(clientID string, ev Event) error {
	ev.Recipients = []string{clientID}
	b.Sent = append(b.Sent, ev)
	return nil
}

func (b *MemoryBus) Broadcast(ev Event) error {
	ev.Recipients = nil
	b.Sent = append(b.Sent, ev)
	return nil
}

// Drain returns the queued events and empties the queue.
func (b *MemoryBus) Drain() []Event {
	out := b.Sent
	b.Sent = nil
	return out
}

// OfKind returns the queued events of the given kind, without draining.
func (b *MemoryBus) OfKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range b.Sent {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// publish routes ev through bus according to its recipients.
func publish(bus MessageBus, ev Event) error {
	if bus == nil {
		return nil
	}
	if len(ev.Recipients) == 0 {
		return bus.Broadcast(ev)
	}
	var errs []error
	for _, id := range ev.Recipients {
		if err := bus.SendTo(id, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
