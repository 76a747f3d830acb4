// Package events carries domain events out of the core. Services publish to
// an in-process bus; a worker drains the bus into a sink (Kafka when
// configured, log-only otherwise). Events are best-effort: business
// invariants never depend on them.
package events

import "time"

// Event names. Payload keys are free-form strings so sinks stay schema-less.
const (
	AttributeCreated               = "consumption.attributeCreated"
	AttributeSucceeded             = "consumption.attributeSucceeded"
	AttributeDeletionStatusChanged = "consumption.attributeDeletionStatusChanged"
	AttributeDeleted               = "consumption.attributeDeleted"
	RequestStatusChanged           = "consumption.requestStatusChanged"
	NotificationSent               = "consumption.notificationSent"
)

// Event is one domain occurrence.
type Event struct {
	Name       string            `json:"name"`
	OccurredAt time.Time         `json:"occurredAt"`
	Data       map[string]string `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(name string, data map[string]string) Event {
	return Event{Name: name, OccurredAt: time.Now(), Data: data}
}
