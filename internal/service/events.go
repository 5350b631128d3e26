package service

import "context"

// Event is a notification fan-out published after a lifecycle transaction
// commits. The inbox rows for the same recipients are written inside the
// transaction.
type Event struct {
	Type       string
	DocumentID string
	ActorID    string
	Recipients []string
	Payload    map[string]interface{}
}

// Notifier delivers committed events. Delivery is best-effort and must not
// fail the operation that produced the event.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) {}

// outbox holds events raised inside a transaction until it commits.
type outbox struct {
	events []Event
}

func (o *outbox) add(ev Event) {
	if len(ev.Recipients) == 0 {
		return
	}
	o.events = append(o.events, ev)
}

func (o *outbox) flush(ctx context.Context, n Notifier) {
	for _, ev := range o.events {
		n.Publish(ctx, ev)
	}
	o.events = nil
}
