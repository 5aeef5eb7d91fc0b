package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Delivery is asynchronous; each subscriber sees events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(MotionEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StatusEvent:
		event.Publish(b.dispatcher, e)
	case MotionEvent:
		event.Publish(b.dispatcher, e)
	case PictureEvent:
		event.Publish(b.dispatcher, e)
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessCrashedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e MotionEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StatusEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MotionEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PictureEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessCrashedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
