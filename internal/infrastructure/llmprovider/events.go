package llmprovider

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"isuite-server/chat-api/internal/domain/stream"
)

// SSE event names emitted by the completion service.
const (
	eventTextDelta    = "response.output_text.delta"
	eventToolCall     = "response.tool_call"
	eventToolResult   = "response.tool_result"
	eventStepFinished = "response.step_finished"
	eventCompleted    = "response.completed"
	eventError        = "response.error"
)

var retryAfterPattern = regexp.MustCompile(`try again in (\d+(?:\.\d+)?)(ms|s|m)?`)

// normalizeEvent decodes one named SSE payload into the internal event
// set. Provider shape quirks (several possible field names for arguments
// and results) are resolved here so the reducer sees a single shape.
// Returns false for events that carry nothing for the reducer.
func normalizeEvent(name string, data []byte) (*stream.Event, bool) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}

	switch name {
	case eventTextDelta:
		text := stringField(payload, "delta", "text")
		return &stream.Event{Type: stream.EventTextDelta, Text: text}, true

	case eventToolCall:
		input, _ := anyField(payload, "arguments", "args", "input").(map[string]any)
		return &stream.Event{
			Type:   stream.EventToolCallStart,
			CallID: stringField(payload, "call_id", "id"),
			Tool:   stringField(payload, "tool", "name", "tool_slug"),
			Input:  input,
		}, true

	case eventToolResult:
		return &stream.Event{
			Type:   stream.EventToolCallResult,
			CallID: stringField(payload, "call_id", "id"),
			Tool:   stringField(payload, "tool", "name", "tool_slug"),
			Output: anyField(payload, "result", "output"),
		}, true

	case eventStepFinished:
		return &stream.Event{
			Type:   stream.EventStepFinished,
			Reason: stringField(payload, "reason", "finish_reason"),
		}, true

	case eventError:
		message := errorMessage(payload)
		return &stream.Event{
			Type:       stream.EventStreamError,
			Reason:     message,
			RetryAfter: ParseRetryAfter(message),
		}, true
	}

	return nil, false
}

// errorMessage digs the human readable message out of either a flat or a
// nested error payload.
func errorMessage(payload map[string]any) string {
	if msg := stringField(payload, "message", "reason"); msg != "" {
		return msg
	}
	if nested, ok := payload["error"].(map[string]any); ok {
		return stringField(nested, "message", "reason")
	}
	return "stream error"
}

// ParseRetryAfter extracts a backoff duration from rate limit messages of
// the form "... try again in 12s". Returns zero when no hint is present.
func ParseRetryAfter(message string) time.Duration {
	match := retryAfterPattern.FindStringSubmatch(message)
	if match == nil {
		return 0
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}

	switch match[2] {
	case "ms":
		return time.Duration(value * float64(time.Millisecond))
	case "m":
		return time.Duration(value * float64(time.Minute))
	default:
		// Bare numbers are seconds
		return time.Duration(value * float64(time.Second))
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func anyField(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
