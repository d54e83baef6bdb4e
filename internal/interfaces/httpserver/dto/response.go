package dto

import (
	"time"

	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/domain/stream"
	"isuite-server/chat-api/internal/infrastructure/integrations"
)

// SessionPayload is returned to clients for session objects.
type SessionPayload struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int64     `json:"message_count"`
	LastMessage  *string   `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MessagePayload is returned to clients for message objects. Assistant
// messages carry their tool calls rebuilt as completed steps so history
// renders the same way a live turn does.
type MessagePayload struct {
	ID        string                `json:"id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	ToolCalls []chat.ToolCallRecord `json:"tool_calls,omitempty"`
	Steps     []*stream.TaskStep    `json:"steps,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// SessionDetailPayload bundles a session with its message history.
type SessionDetailPayload struct {
	Session  SessionPayload   `json:"session"`
	Messages []MessagePayload `json:"messages"`
}

// SessionListPayload wraps session collections.
type SessionListPayload struct {
	Data []SessionPayload `json:"data"`
}

// ConnectionListPayload wraps linked account collections.
type ConnectionListPayload struct {
	Data []integrations.Connection `json:"data"`
}

// FromSession maps the domain session to its payload.
func FromSession(s *chat.Session) SessionPayload {
	return SessionPayload{
		ID:           s.PublicID,
		Title:        s.Title,
		MessageCount: s.MessageCount,
		LastMessage:  s.LastMessage,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// FromSessions maps a session slice to payloads.
func FromSessions(sessions []chat.Session) []SessionPayload {
	payloads := make([]SessionPayload, len(sessions))
	for i := range sessions {
		payloads[i] = FromSession(&sessions[i])
	}
	return payloads
}

// FromMessage maps the domain message to its payload.
func FromMessage(m *chat.Message) MessagePayload {
	return MessagePayload{
		ID:        m.PublicID,
		Role:      string(m.Role),
		Content:   m.Content,
		ToolCalls: m.ToolCalls,
		Steps:     chat.StepsFromRecords(m.ToolCalls),
		CreatedAt: m.CreatedAt,
	}
}

// FromMessages maps a message slice to payloads.
func FromMessages(messages []chat.Message) []MessagePayload {
	payloads := make([]MessagePayload, len(messages))
	for i := range messages {
		payloads[i] = FromMessage(&messages[i])
	}
	return payloads
}
