// Package message defines the immutable, CloudEvents-aligned message
// envelope shared by commands and events across the eventcore runtime.
//
// Envelope's With* helpers return modified copies rather than mutating
// the receiver. Command wraps an Envelope with a typed (generic) payload;
// Event wraps one with an untyped Data payload, since a single stream
// mixes many payload types and dispatch is keyed on the Type tag.
package message

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a new globally-unique message id.
func NewID() string {
	return uuid.NewString()
}

// Envelope holds the CloudEvents-aligned metadata common to every
// command and event, modeled on the CloudEvents envelope attributes.
type Envelope struct {
	ID              string    // unique id
	Type            string    // type tag, as passed by the caller
	Source          string    // source URI
	Timestamp       time.Time // ISO-8601 (with timezone) occurrence time
	Subject         string    // optional: subject of the event in context of source
	DataContentType string    // optional: content type of Data
	DataSchema      string    // optional: schema URI Data adheres to
	CorrelationID   string    // optional: trace root
	CausationID     string    // optional: id of the message that caused this one
}

// NewEnvelope builds an Envelope, defaulting ID and Timestamp when unset.
// typ is used verbatim as Type; callers wanting the type tag to default
// to their payload's name should pass it explicitly (Go has no runtime
// class name for a generic payload).
func NewEnvelope(typ, source string) Envelope {
	return Envelope{
		ID:        NewID(),
		Type:      typ,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// WithSubject returns a copy of the envelope with Subject set.
func (e Envelope) WithSubject(subject string) Envelope {
	e.Subject = subject
	return e
}

// WithCorrelation returns a copy of the envelope with CorrelationID set.
func (e Envelope) WithCorrelation(correlationID string) Envelope {
	e.CorrelationID = correlationID
	return e
}

// WithCausation returns a copy of the envelope with CausationID set.
func (e Envelope) WithCausation(causationID string) Envelope {
	e.CausationID = causationID
	return e
}

// Command represents an intent to perform an action. Commands are
// generally routed to exactly one logical handler.
type Command[T any] struct {
	Envelope
	Data T
}

// NewCommand builds a Command envelope carrying typed data.
func NewCommand[T any](typ, source string, data T) Command[T] {
	return Command[T]{Envelope: NewEnvelope(typ, source), Data: data}
}

// Event represents an immutable fact that has occurred. Events may fan
// out to many subscribers.
type Event struct {
	Envelope
	// AggregateID is the owning stream id, carried alongside Subject for
	// convenience when Subject is used for something else on a
	// CloudEvents-native backend.
	AggregateID string
	// Version is the stream-local position at which this event was
	// appended, starting at 0.
	Version int
	// SchemaVersion is the event schema's version number, consumed by
	// pkg/versioning's upcaster registry. Distinct from Version, the
	// stream position.
	SchemaVersion int
	// Data is the event payload. Kept as `any` (rather than generic)
	// because a single stream mixes many event-payload types and the
	// store/bus/projection layers dispatch on Type, not on a Go type
	// parameter.
	Data any
}

// Position reports the event's position for projection cursoring: for
// events drawn from a single event-store read this is the stream-local
// Version; callers feeding a cross-stream/global feed should set a
// distinct sequence number on Data and have their projection handler
// consult it instead.
func (e Event) Position() int { return e.Version }

// NewEvent builds an Event envelope.
func NewEvent(typ, source string, data any) Event {
	return Event{Envelope: NewEnvelope(typ, source), Data: data, SchemaVersion: 1}
}

// AggregateTyper is implemented by aggregates that can name themselves
// and their id, used by NewEventFromAggregate.
type AggregateTyper interface {
	AggregateType() string
	AggregateID() string
}

// NewEventFromAggregate is a convenience constructor that derives
// Source from the aggregate's type name and Subject/AggregateID from
// the aggregate's id when the caller does not need to override them.
func NewEventFromAggregate(agg AggregateTyper, eventType string, data any) Event {
	source := "/" + agg.AggregateType()
	e := NewEvent(eventType, source, data)
	e.Subject = agg.AggregateID()
	e.AggregateID = agg.AggregateID()
	return e
}
