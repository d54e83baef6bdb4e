// Package status defines the lifecycle status shared by turns and task steps.
package status

import "errors"

// TurnStatus represents the lifecycle of one assistant turn.
type TurnStatus string

const (
	// Non-terminal states
	TurnPending   TurnStatus = "pending"   // Turn created, stream not yet opened
	TurnStreaming TurnStatus = "streaming" // Events arriving from the completion stream

	// Terminal states (no further transitions allowed)
	TurnReady  TurnStatus = "ready"  // Stream drained cleanly, turn is persistable
	TurnFailed TurnStatus = "failed" // Stream terminated abnormally
)

// StepStatus represents the lifecycle of one tool invocation within a turn.
type StepStatus string

const (
	StepPending   StepStatus = "pending"   // Call started, no result observed
	StepCompleted StepStatus = "completed" // Result observed; steps never regress
)

// ErrInvalidTransition is returned when a status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal returns true if the turn status is a terminal state.
func (s TurnStatus) IsTerminal() bool {
	return s == TurnReady || s == TurnFailed
}

// String returns the string representation of the status.
func (s TurnStatus) String() string {
	return string(s)
}

// ValidTransitions defines allowed turn status transitions.
var ValidTransitions = map[TurnStatus][]TurnStatus{
	TurnPending:   {TurnStreaming, TurnFailed},
	TurnStreaming: {TurnReady, TurnFailed},
	// Terminal states have no valid transitions
	TurnReady:  {},
	TurnFailed: {},
}

// CanTransitionTo checks if a transition from the current status to target is valid.
func (s TurnStatus) CanTransitionTo(target TurnStatus) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, t := range validTargets {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition to the target status and returns error if invalid.
func (s TurnStatus) TransitionTo(target TurnStatus) (TurnStatus, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}
