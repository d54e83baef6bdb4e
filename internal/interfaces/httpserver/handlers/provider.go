package handlers

import (
	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/infrastructure/integrations"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Session    *SessionHandler
	Chat       *ChatHandler
	Connection *ConnectionHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(
	chatService *chat.Service,
	connectionService integrations.Service,
	authValidator *auth.Validator,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Session:    NewSessionHandler(chatService, authValidator, log),
		Chat:       NewChatHandler(chatService, authValidator, log),
		Connection: NewConnectionHandler(connectionService, authValidator, log),
	}
}
