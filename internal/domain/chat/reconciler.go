package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/domain/status"
	"isuite-server/chat-api/internal/domain/stream"
)

// Reconciler guarantees each completed assistant turn is written to the
// transcript store exactly once. One reconciler exists per loaded session;
// the last-persisted marker never crosses sessions.
type Reconciler struct {
	sessionID       uint
	lastPersistedID string
	messages        MessageRepository
	log             zerolog.Logger
}

// NewReconciler creates a reconciler for one session.
func NewReconciler(sessionID uint, messages MessageRepository, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		sessionID: sessionID,
		messages:  messages,
		log:       log.With().Str("component", "reconciler").Uint("session_id", sessionID).Logger(),
	}
}

// Restore loads the session's messages in creation order and advances the
// marker past the final assistant message so reloading never re-writes it.
func (r *Reconciler) Restore(ctx context.Context) ([]Message, error) {
	messages, err := r.messages.ListBySessionID(ctx, r.sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}

	r.lastPersistedID = ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			r.lastPersistedID = messages[i].PublicID
			break
		}
	}

	return messages, nil
}

// Persist writes the turn's assistant message if the turn is ready, has
// visible text, and was not persisted before. Calling Persist again for
// the same turn is a no-op. Failed turns are never persisted so partial
// steps cannot masquerade as completed history.
func (r *Reconciler) Persist(ctx context.Context, turn *stream.Turn) (*Message, error) {
	if turn.Status != status.TurnReady {
		return nil, nil
	}
	if turn.Text() == "" {
		return nil, nil
	}
	if turn.ID == r.lastPersistedID {
		return nil, nil
	}

	message := &Message{
		PublicID:  turn.ID,
		SessionID: r.sessionID,
		Role:      RoleAssistant,
		Content:   turn.Text(),
		ToolCalls: RecordsFromSteps(turn.Steps),
	}
	if err := r.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}

	r.lastPersistedID = turn.ID
	r.log.Debug().Str("message_id", turn.ID).Int("tool_calls", len(message.ToolCalls)).Msg("assistant turn persisted")
	return message, nil
}

// LastPersistedID returns the marker, exposed for tests and diagnostics.
func (r *Reconciler) LastPersistedID() string {
	return r.lastPersistedID
}
