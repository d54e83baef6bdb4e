package entities

import (
	"time"

	"isuite-server/chat-api/internal/domain/chat"
)

// ChatSession represents the database schema for chat sessions.
type ChatSession struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID   string `gorm:"type:varchar(50);uniqueIndex;not null"`
	UserID     string `gorm:"type:varchar(64);index:idx_chat_session_user_updated;not null"`
	Title      string `gorm:"type:varchar(256);not null;default:'New Chat'"`
	TitleState string `gorm:"type:varchar(20);index;not null;default:'pending'"`

	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for ChatSession.
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// EtoD converts the database entity to the domain model.
func (s *ChatSession) EtoD() *chat.Session {
	return &chat.Session{
		ID:         s.ID,
		PublicID:   s.PublicID,
		UserID:     s.UserID,
		Title:      s.Title,
		TitleState: chat.TitleState(s.TitleState),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// DtoE converts the domain model to a database entity.
func SessionDtoE(session *chat.Session) *ChatSession {
	return &ChatSession{
		ID:         session.ID,
		PublicID:   session.PublicID,
		UserID:     session.UserID,
		Title:      session.Title,
		TitleState: string(session.TitleState),
		CreatedAt:  session.CreatedAt,
		UpdatedAt:  session.UpdatedAt,
	}
}
