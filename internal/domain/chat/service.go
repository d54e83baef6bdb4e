package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/config"
	"isuite-server/chat-api/internal/domain/llm"
	"isuite-server/chat-api/internal/domain/status"
	"isuite-server/chat-api/internal/domain/stream"
	"isuite-server/chat-api/internal/utils/platformerrors"
)

const systemPrompt = `You are a helpful assistant that can use third-party productivity tools (email, calendar, documents, spreadsheets) on the user's behalf. Use the available tools when the user's request calls for them, and answer directly otherwise.`

const titlePromptTemplate = `Based on this conversation, generate a very short, descriptive title (2-4 words) that captures the MAIN TOPIC or ACTION being discussed. Ignore greetings like "hello" or "hi" and focus on the actual task or question.

Conversation:
%s

Respond with ONLY the title, no quotes or extra text. Focus on the main action or topic, not greetings. Examples: "Email sending task", "GitHub repository help", "Calendar event creation", "Document editing"`

// TurnObserver receives live turn progress, typically forwarded as SSE.
// Implementations must tolerate being called after the client went away.
type TurnObserver interface {
	OnTurnCreated(turnID string)
	OnDelta(text string)
	OnStep(step *stream.TaskStep)
	OnSummary(summary string)
	OnCompleted(turn *stream.Turn, message *Message)
	OnError(reason string, retryAfter time.Duration)
}

// sessionState is the live state of one loaded session.
type sessionState struct {
	session    *Session
	reconciler *Reconciler
	inflight   bool
}

// Service orchestrates session lifecycle, turn streaming, and persistence.
type Service struct {
	sessions SessionRepository
	messages MessageRepository
	provider llm.Provider
	cfg      *config.Config
	log      zerolog.Logger

	mu     sync.Mutex
	active map[string]*sessionState // keyed by user ID
}

// NewService wires dependencies.
func NewService(
	sessions SessionRepository,
	messages MessageRepository,
	provider llm.Provider,
	cfg *config.Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		messages: messages,
		provider: provider,
		cfg:      cfg,
		log:      log.With().Str("component", "chat-service").Logger(),
		active:   make(map[string]*sessionState),
	}
}

// CreateSession starts a new conversation for the user. If the user's
// active session is still empty it is returned as-is instead of littering
// the history with abandoned blanks.
func (s *Service) CreateSession(ctx context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	state := s.active[userID]
	s.mu.Unlock()

	if state != nil {
		count, err := s.messages.CountBySessionID(ctx, state.session.ID)
		if err == nil && count == 0 {
			return state.session, nil
		}
	}

	session := NewSession(userID)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.setActive(userID, session)
	s.log.Info().Str("session_id", session.PublicID).Str("user_id", userID).Msg("session created")
	return session, nil
}

// ListSessions returns the user's sessions most recently updated first,
// optionally filtered by a case-insensitive title substring.
func (s *Service) ListSessions(ctx context.Context, userID, search string) ([]Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if search == "" {
		return sessions, nil
	}

	needle := strings.ToLower(search)
	filtered := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		if strings.Contains(strings.ToLower(sess.Title), needle) {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

// GetSession returns one session with its full message history.
func (s *Service) GetSession(ctx context.Context, userID, publicID string) (*Session, []Message, error) {
	session, err := s.sessions.FindByPublicID(ctx, publicID, userID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.messages.ListBySessionID(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

// ActivateSession switches the user to the target session. When the
// session being left is still empty it is deleted before the target loads,
// so abandoned blanks never linger in the history list.
func (s *Service) ActivateSession(ctx context.Context, userID, targetID string) (*Session, []Message, error) {
	s.mu.Lock()
	prev := s.active[userID]
	s.mu.Unlock()

	if prev != nil && prev.session.PublicID != targetID {
		count, err := s.messages.CountBySessionID(ctx, prev.session.ID)
		if err == nil && count == 0 {
			if err := s.sessions.Delete(ctx, prev.session.PublicID, userID); err != nil {
				s.log.Warn().Err(err).Str("session_id", prev.session.PublicID).Msg("cleanup of empty session failed")
			}
		}
	}

	session, err := s.sessions.FindByPublicID(ctx, targetID, userID)
	if err != nil {
		return nil, nil, err
	}

	state := s.setActive(userID, session)
	messages, err := state.reconciler.Restore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

// UpdateTitle renames a session.
func (s *Service) UpdateTitle(ctx context.Context, userID, publicID, title string) (*Session, error) {
	session, err := s.sessions.FindByPublicID(ctx, publicID, userID)
	if err != nil {
		return nil, err
	}

	session.Title = ClampTitle(title)
	session.TitleState = TitleStateCompleted
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session and its messages. Deleting the active
// session activates the most recently updated remaining one, or creates a
// fresh session when none remain.
func (s *Service) DeleteSession(ctx context.Context, userID, publicID string) (*Session, error) {
	if err := s.sessions.Delete(ctx, publicID, userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	state := s.active[userID]
	wasActive := state != nil && state.session.PublicID == publicID
	if wasActive {
		delete(s.active, userID)
	}
	s.mu.Unlock()

	if !wasActive {
		return nil, nil
	}

	remaining, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		next, _, err := s.ActivateSession(ctx, userID, remaining[0].PublicID)
		return next, err
	}
	return s.CreateSession(ctx, userID)
}

// StartTurn appends the user message, opens the completion stream, folds
// its events, and persists the assistant turn exactly once on success.
// One turn per session is in flight at a time; a second send while one is
// active fails with Conflict.
func (s *Service) StartTurn(ctx context.Context, userID, sessionID, content string, observer TurnObserver) error {
	session, err := s.sessions.FindByPublicID(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	state, err := s.loadState(ctx, userID, session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if state.inflight {
		s.mu.Unlock()
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			"a turn is already in progress for this session", nil, "d2f0a1b4-7c3e-4e8a-9b1f-5a6c8d9e0f12")
	}
	state.inflight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		state.inflight = false
		s.mu.Unlock()
	}()

	userMsg := &Message{
		PublicID:  NewPublicID("msg"),
		SessionID: session.ID,
		Role:      RoleUser,
		Content:   strings.TrimSpace(content),
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.PublicID).Msg("touch session failed")
	}

	history, err := s.buildHistory(ctx, session)
	if err != nil {
		return err
	}

	turn := stream.NewTurn(NewPublicID("msg"))
	observer.OnTurnCreated(turn.ID)

	// The turn outlives the HTTP request: navigating away mid-stream must
	// not cancel it, so persistence runs against a detached context.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TurnTimeout)
	defer cancel()

	s.consumeStream(turnCtx, turn, history, userID, observer)

	if turn.Status == status.TurnFailed {
		retryAfter := turn.RetryAfter
		if retryAfter <= 0 {
			retryAfter = s.cfg.StreamCooldown
		}
		observer.OnError(turn.FailureReason, retryAfter)
		return nil
	}

	message, err := state.reconciler.Persist(turnCtx, turn)
	if err != nil {
		// The rendered answer stays visible even when saving it failed.
		s.log.Error().Err(err).Str("session_id", session.PublicID).Msg("assistant turn persistence failed")
	}
	if message != nil {
		if err := s.sessions.Touch(turnCtx, session.ID); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.PublicID).Msg("touch session failed")
		}
		s.maybeQueueTitle(turnCtx, session)
	}

	observer.OnCompleted(turn, message)
	return nil
}

// consumeStream drains the provider stream into the turn, forwarding each
// event to the observer as it lands.
func (s *Service) consumeStream(ctx context.Context, turn *stream.Turn, history []llm.ChatMessage, userID string, observer TurnObserver) {
	req := llm.TurnRequest{
		Model:    s.cfg.ChatModel,
		System:   systemPrompt,
		Messages: history,
		MaxSteps: s.cfg.MaxTurnSteps,
		UserID:   userID,
	}

	es, err := s.provider.StreamTurn(ctx, req)
	if err != nil {
		turn.Fail(err.Error())
		return
	}
	defer es.Close()

	for {
		ev, err := es.Recv()
		if errors.Is(err, io.EOF) {
			turn.Complete()
			return
		}
		if err != nil {
			turn.Fail(err.Error())
			return
		}

		step := turn.Apply(*ev)

		switch ev.Type {
		case stream.EventTextDelta:
			observer.OnDelta(ev.Text)
		case stream.EventToolCallStart:
			if step != nil {
				observer.OnStep(step)
				observer.OnSummary(turn.Summary())
			}
		case stream.EventToolCallResult:
			// Forward whichever step the result resolved to, including
			// tool slug fallback matches that echo no call ID.
			if step != nil {
				observer.OnStep(step)
			}
		}

		if turn.Status.IsTerminal() {
			return
		}
	}
}

// GenerateTitle infers a descriptive session title from the opening
// messages, falling back to the deterministic heuristic when the model
// call fails. Invoked by the background title workers.
func (s *Service) GenerateTitle(ctx context.Context, session *Session) error {
	messages, err := s.messages.ListBySessionID(ctx, session.ID)
	if err != nil {
		return err
	}
	if len(messages) > TitleContextMessages {
		messages = messages[:TitleContextMessages]
	}
	if len(messages) < MinMessagesForTitle {
		return nil
	}

	title := s.inferTitle(ctx, messages)
	if title == "" {
		title = FallbackTitle(messages)
	}
	if title == "" {
		return nil
	}

	session.Title = title
	session.TitleState = TitleStateCompleted
	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	s.log.Info().Str("session_id", session.PublicID).Str("title", title).Msg("session title inferred")
	return nil
}

func (s *Service) inferTitle(ctx context.Context, messages []Message) string {
	var transcript strings.Builder
	for _, msg := range messages {
		transcript.WriteString(string(msg.Role))
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	resp, err := s.provider.CreateChatCompletion(ctx, llm.ChatCompletionRequest{
		Model: s.cfg.TitleModel,
		Messages: []llm.ChatMessage{{
			Role:    "user",
			Content: fmt.Sprintf(titlePromptTemplate, strings.TrimSuffix(transcript.String(), "\n")),
		}},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("title inference call failed, using fallback")
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}

	text, ok := resp.Choices[0].Message.Content.(string)
	if !ok {
		return ""
	}
	return ClampTitle(text)
}

// maybeQueueTitle marks the session for background title inference when
// its title is still the placeholder or a greeting. Best-effort: failures
// never block the turn.
func (s *Service) maybeQueueTitle(ctx context.Context, session *Session) {
	if session.TitleState == TitleStateQueued {
		return
	}

	count, err := s.messages.CountBySessionID(ctx, session.ID)
	if err != nil || !NeedsTitle(session.Title, count) {
		return
	}

	session.TitleState = TitleStateQueued
	if err := s.sessions.Update(ctx, session); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.PublicID).Msg("queueing title inference failed")
	}
}

// buildHistory converts the stored transcript into completion messages,
// trimmed to fit the model context.
func (s *Service) buildHistory(ctx context.Context, session *Session) ([]llm.ChatMessage, error) {
	stored, err := s.messages.ListBySessionID(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history := make([]llm.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		history = append(history, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	trimmed := llm.TrimHistoryToFit(history, llm.DefaultContextLength)
	if trimmed.TrimmedCount > 0 {
		s.log.Debug().Int("trimmed", trimmed.TrimmedCount).Str("session_id", session.PublicID).Msg("history trimmed to fit context")
	}
	return trimmed.Messages, nil
}

// loadState returns the live state for the session, creating it (with a
// restored reconciler) when the session is not the user's active one.
func (s *Service) loadState(ctx context.Context, userID string, session *Session) (*sessionState, error) {
	s.mu.Lock()
	state := s.active[userID]
	if state != nil && state.session.ID == session.ID {
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	state = s.setActive(userID, session)
	if _, err := state.reconciler.Restore(ctx); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) setActive(userID string, session *Session) *sessionState {
	state := &sessionState{
		session:    session,
		reconciler: NewReconciler(session.ID, s.messages, s.log),
	}
	s.mu.Lock()
	s.active[userID] = state
	s.mu.Unlock()
	return state
}
