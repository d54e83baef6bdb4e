package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"isuite-server/chat-api/internal/domain/chat"
)

// Message represents the database schema for chat messages. Tool calls
// are stored as a JSONB array; every stored record reads as completed.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	PublicID  string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	SessionID uint           `gorm:"index:idx_message_session_seq;not null"`
	Role      string         `gorm:"type:varchar(20);not null"`
	Content   string         `gorm:"type:text;not null"`
	ToolCalls datatypes.JSON `gorm:"type:jsonb"`
	Sequence  int            `gorm:"index:idx_message_session_seq;not null"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// EtoD converts the database entity to the domain model.
func (m *Message) EtoD() *chat.Message {
	var toolCalls []chat.ToolCallRecord
	if len(m.ToolCalls) > 0 {
		// Malformed rows degrade to no tool calls rather than failing reads
		_ = json.Unmarshal(m.ToolCalls, &toolCalls)
	}

	return &chat.Message{
		ID:        m.ID,
		PublicID:  m.PublicID,
		SessionID: m.SessionID,
		Role:      chat.Role(m.Role),
		Content:   m.Content,
		ToolCalls: toolCalls,
		Sequence:  m.Sequence,
		CreatedAt: m.CreatedAt,
	}
}

// MessageDtoE converts the domain model to a database entity.
func MessageDtoE(message *chat.Message) (*Message, error) {
	entity := &Message{
		ID:        message.ID,
		PublicID:  message.PublicID,
		SessionID: message.SessionID,
		Role:      string(message.Role),
		Content:   message.Content,
		Sequence:  message.Sequence,
		CreatedAt: message.CreatedAt,
	}

	if len(message.ToolCalls) > 0 {
		raw, err := json.Marshal(message.ToolCalls)
		if err != nil {
			return nil, err
		}
		entity.ToolCalls = datatypes.JSON(raw)
	}
	return entity, nil
}
