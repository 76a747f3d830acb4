package events

import (
	"log/slog"
)

// Publisher is anyone that can emit a domain event. The services depend on
// this interface so tests can capture events with a slice-backed fake.
type Publisher interface {
	Publish(event Event)
}

// Bus is a buffered in-process event channel. Publishing never blocks
// business logic: when the buffer is full the event is dropped and counted
// as lost.
type Bus struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{inbox: make(chan Event, buffer), logger: logger}
}

func (b *Bus) Publish(event Event) {
	select {
	case b.inbox <- event:
	default:
		b.logger.Warn("event bus full, dropping event", "event", event.Name)
	}
}

// Inbox exposes the receive side for the worker.
func (b *Bus) Inbox() <-chan Event { return b.inbox }

// NopPublisher discards events. Used where no bus is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
