// Package chat holds the session and message model plus the turn
// orchestration built on top of it.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"isuite-server/chat-api/internal/domain/status"
	"isuite-server/chat-api/internal/domain/stream"
	"isuite-server/chat-api/internal/domain/toolcall"
)

// Role indicates who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TitleState tracks the background title inference lifecycle of a session.
type TitleState string

const (
	TitleStatePending   TitleState = "pending"   // Placeholder title, not yet eligible
	TitleStateQueued    TitleState = "queued"    // Picked up by the title worker queue
	TitleStateCompleted TitleState = "completed" // Descriptive title written
)

// DefaultTitle is the placeholder every new session starts with.
const DefaultTitle = "New Chat"

// Session represents a logical chat thread.
type Session struct {
	ID         uint       `json:"-"`
	PublicID   string     `json:"id"`
	UserID     string     `json:"-"`
	Title      string     `json:"title"`
	TitleState TitleState `json:"-"`

	// MessageCount is annotated on list queries, zero elsewhere.
	MessageCount int64 `json:"message_count"`

	// LastMessage is the first message preview annotated on list queries.
	LastMessage *string `json:"last_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolCallRecord is the persisted form of one tool invocation. Once a
// record reaches storage it is always considered completed; pending is a
// live-only state.
type ToolCallRecord struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input,omitempty"`
	Output any            `json:"output,omitempty"`
}

// Message contains one persisted turn half. Messages are immutable after
// creation.
type Message struct {
	ID        uint             `json:"-"`
	PublicID  string           `json:"id"`
	SessionID uint             `json:"-"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Sequence  int              `json:"sequence"`
	CreatedAt time.Time        `json:"created_at"`
}

// SessionRepository exposes CRUD operations for chat sessions. Find and
// mutate operations are scoped to the owning user and fail with NotFound
// for foreign sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	FindByPublicID(ctx context.Context, publicID, userID string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	Update(ctx context.Context, session *Session) error
	Touch(ctx context.Context, sessionID uint) error
	Delete(ctx context.Context, publicID, userID string) error
}

// MessageRepository persists individual chat messages.
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	ListBySessionID(ctx context.Context, sessionID uint) ([]Message, error)
	CountBySessionID(ctx context.Context, sessionID uint) (int64, error)
}

// NewSession creates a session with the placeholder title.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		PublicID:   NewPublicID("sess"),
		UserID:     userID,
		Title:      DefaultTitle,
		TitleState: TitleStatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewPublicID builds a prefixed public identifier like "sess_<uuid>".
func NewPublicID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// RecordsFromSteps flattens live task steps into persistable records.
// Step status is dropped: stored records always read as completed.
func RecordsFromSteps(steps []*stream.TaskStep) []ToolCallRecord {
	if len(steps) == 0 {
		return nil
	}
	records := make([]ToolCallRecord, 0, len(steps))
	for _, step := range steps {
		records = append(records, ToolCallRecord{
			CallID: step.CallID,
			Tool:   step.Tool,
			Input:  step.Input,
			Output: step.Output,
		})
	}
	return records
}

// StepsFromRecords rebuilds task steps for a historical assistant message.
// Every rebuilt step renders completed.
func StepsFromRecords(records []ToolCallRecord) []*stream.TaskStep {
	if len(records) == 0 {
		return nil
	}
	steps := make([]*stream.TaskStep, 0, len(records))
	for _, rec := range records {
		c := toolcall.Classify(rec.Tool, rec.Input)
		steps = append(steps, &stream.TaskStep{
			CallID:     rec.CallID,
			Tool:       rec.Tool,
			Toolkit:    c.Toolkit,
			ActionName: c.ActionName,
			LogoURL:    c.LogoURL,
			Status:     status.StepCompleted,
			Input:      rec.Input,
			Output:     rec.Output,
		})
	}
	return steps
}
