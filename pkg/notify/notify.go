// Package notify implements the controller's structured event
// notifications. Notifications are fire-and-forget: Sink.Emit must never
// block the caller.
package notify

import "github.com/google/uuid"

// Kind names a notification type.
type Kind string

const (
	DPChange     Kind = "DP_CHANGE"
	PortChange   Kind = "PORT_CHANGE"
	PortsStatus  Kind = "PORTS_STATUS"
	L2Learn      Kind = "L2_LEARN"
	L2Expire     Kind = "L2_EXPIRE"
	ConfigChange Kind = "CONFIG_CHANGE"
	Dot1X        Kind = "DOT1X"
)

// RestartType classifies a CONFIG_CHANGE notification.
type RestartType string

const (
	RestartCold RestartType = "cold"
	RestartWarm RestartType = "warm"
	RestartNull RestartType = "null"
)

// Event is one structured notification. ID correlates an event back to the
// operation that produced it, generated with github.com/google/uuid.
type Event struct {
	ID     string
	Kind   Kind
	DP     string
	Fields map[string]interface{}
}

// Sink receives notifications. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// New builds an Event with a fresh correlation ID.
func New(kind Kind, dp string, fields map[string]interface{}) Event {
	return Event{ID: uuid.NewString(), Kind: kind, DP: dp, Fields: fields}
}

// Noop discards every event; used by tests that don't assert on
// notifications.
type Noop struct{}

func (Noop) Emit(Event) {}

// Recorder accumulates events in-process, for tests that assert on
// notification content without standing up a real transport.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) { r.Events = append(r.Events, e) }
