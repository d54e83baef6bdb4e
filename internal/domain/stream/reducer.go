package stream

import (
	"fmt"
	"strings"
	"time"

	"isuite-server/chat-api/internal/domain/status"
	"isuite-server/chat-api/internal/domain/toolcall"
)

// TaskStep tracks one tool invocation within a turn. Steps are positional,
// ordered by when their start event was first observed, and a result event
// mutates the matching step in place rather than appending a new one.
type TaskStep struct {
	CallID     string            `json:"call_id"`
	Tool       string            `json:"tool"`
	Toolkit    string            `json:"toolkit"`
	ActionName string            `json:"action_name"`
	LogoURL    string            `json:"logo_url"`
	Status     status.StepStatus `json:"status"`
	Input      map[string]any    `json:"input,omitempty"`
	Output     any               `json:"output,omitempty"`
}

// Turn is the reducer state for one in-flight assistant turn.
type Turn struct {
	ID     string
	Status status.TurnStatus
	Steps  []*TaskStep

	// StepsFinished counts step-finished events, used for step limit
	// enforcement by the caller.
	StepsFinished int

	// FailureReason and RetryAfter are set when a stream-error event
	// terminates the turn.
	FailureReason string
	RetryAfter    time.Duration

	text strings.Builder
}

// NewTurn creates an empty turn in the pending state.
func NewTurn(id string) *Turn {
	return &Turn{
		ID:     id,
		Status: status.TurnPending,
	}
}

// Apply folds one event into the turn and returns the step the event
// created or completed, nil for every other event. Events arriving after
// the turn reached a terminal state are dropped. Apply is not safe for
// concurrent use; the caller owns one turn per stream.
func (t *Turn) Apply(ev Event) *TaskStep {
	if t.Status.IsTerminal() {
		return nil
	}
	if t.Status == status.TurnPending {
		t.Status = status.TurnStreaming
	}

	switch ev.Type {
	case EventTextDelta:
		t.text.WriteString(ev.Text)

	case EventToolCallStart:
		c := toolcall.Classify(ev.Tool, ev.Input)
		step := &TaskStep{
			CallID:     ev.CallID,
			Tool:       ev.Tool,
			Toolkit:    c.Toolkit,
			ActionName: c.ActionName,
			LogoURL:    c.LogoURL,
			Status:     status.StepPending,
			Input:      ev.Input,
		}
		t.Steps = append(t.Steps, step)
		return step

	case EventToolCallResult:
		if step := t.matchPending(ev); step != nil {
			step.Status = status.StepCompleted
			step.Output = ev.Output
			return step
		}

	case EventStepFinished:
		t.StepsFinished++

	case EventStreamError:
		t.Status = status.TurnFailed
		t.FailureReason = ev.Reason
		t.RetryAfter = ev.RetryAfter
	}
	return nil
}

// matchPending finds the step a result event belongs to. A call ID match
// wins; otherwise the earliest pending step with the same tool slug, then
// the earliest pending step overall. Completed steps never regress, so a
// duplicate result for an already completed call matches nothing.
func (t *Turn) matchPending(ev Event) *TaskStep {
	if ev.CallID != "" {
		for _, step := range t.Steps {
			if step.CallID == ev.CallID && step.Status == status.StepPending {
				return step
			}
		}
	}
	if ev.Tool != "" {
		for _, step := range t.Steps {
			if step.Tool == ev.Tool && step.Status == status.StepPending {
				return step
			}
		}
		return nil
	}
	if ev.CallID != "" {
		return nil
	}
	for _, step := range t.Steps {
		if step.Status == status.StepPending {
			return step
		}
	}
	return nil
}

// Complete marks the turn ready. A turn that already failed stays failed.
func (t *Turn) Complete() {
	if t.Status.IsTerminal() {
		return
	}
	t.Status = status.TurnReady
}

// Fail marks the turn failed with the given reason.
func (t *Turn) Fail(reason string) {
	if t.Status.IsTerminal() {
		return
	}
	t.Status = status.TurnFailed
	t.FailureReason = reason
}

// Text returns the accumulated visible text of the turn.
func (t *Turn) Text() string {
	return t.text.String()
}

// Summary derives the one line description of what the turn is doing from
// the current steps, skipping router internal and unclassified toolkits.
func (t *Turn) Summary() string {
	if len(t.Steps) == 0 {
		return "Processing..."
	}

	seen := make(map[string]bool)
	var toolkits []string
	for _, step := range t.Steps {
		if step.Toolkit == toolcall.ToolkitInternal || step.Toolkit == toolcall.ToolkitUnknown {
			continue
		}
		if !seen[step.Toolkit] {
			seen[step.Toolkit] = true
			toolkits = append(toolkits, step.Toolkit)
		}
	}

	switch {
	case len(toolkits) == 0:
		return "Processing request..."
	case len(toolkits) == 1:
		return fmt.Sprintf("Using %s", toolcall.DisplayName(toolkits[0]))
	default:
		names := []string{toolcall.DisplayName(toolkits[0]), toolcall.DisplayName(toolkits[1])}
		summary := fmt.Sprintf("Using %s", strings.Join(names, ", "))
		if len(toolkits) > 2 {
			summary += fmt.Sprintf(" +%d", len(toolkits)-2)
		}
		return summary
	}
}

// PendingSteps reports how many steps have not seen a result yet.
func (t *Turn) PendingSteps() int {
	n := 0
	for _, step := range t.Steps {
		if step.Status == status.StepPending {
			n++
		}
	}
	return n
}
