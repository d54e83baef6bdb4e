// Package stream folds the completion service's incremental event stream
// into an ordered view of one assistant turn: accumulated text plus a
// de-duplicated list of task steps, one per tool invocation.
package stream

import "time"

// EventType identifies one kind of completion stream event.
type EventType string

const (
	EventTextDelta      EventType = "text-delta"
	EventToolCallStart  EventType = "tool-call-start"
	EventToolCallResult EventType = "tool-call-result"
	EventStepFinished   EventType = "step-finished"
	EventStreamError    EventType = "stream-error"
)

// Event is the normalized form of one completion stream event. Provider
// specific payload shapes are normalized before the reducer sees them.
type Event struct {
	Type EventType

	// Text carries the fragment for text-delta events.
	Text string

	// CallID identifies a tool invocation across its start and result
	// events. May be empty when the provider does not echo it back.
	CallID string

	// Tool is the raw tool slug for tool-call-start events, and may be
	// present on result events as a matching fallback.
	Tool string

	// Input is the structured payload of a tool-call-start event.
	Input map[string]any

	// Output is the structured payload of a tool-call-result event.
	Output any

	// Reason describes why a step or the stream finished.
	Reason string

	// RetryAfter is the provider backoff hint on stream-error events,
	// zero when the provider gave none.
	RetryAfter time.Duration
}
