package events

import (
	"context"
	"log/slog"
)

// Sink is where drained events end up.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// LogSink writes events to the logger. The default sink when Kafka is not
// configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, event Event) error {
	s.Logger.InfoContext(ctx, "domain event", "event", event.Name, "data", event.Data)
	return nil
}

// Worker consumes events from the bus and hands them to the sink. Delivery
// failures are logged, not retried; events are advisory.
type Worker struct {
	inbox  <-chan Event
	sink   Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{inbox: inbox, sink: sink, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Deliver(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "event delivery failed",
					"event", event.Name, "error", err.Error())
			}
		}
	}
}
