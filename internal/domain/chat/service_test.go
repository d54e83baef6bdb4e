package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/config"
	"isuite-server/chat-api/internal/domain/llm"
	"isuite-server/chat-api/internal/domain/stream"
	"isuite-server/chat-api/internal/utils/platformerrors"
)

type mockSessionRepo struct {
	createFunc func(ctx context.Context, session *Session) error
	findFunc   func(ctx context.Context, publicID, userID string) (*Session, error)
	listFunc   func(ctx context.Context, userID string) ([]Session, error)
	updateFunc func(ctx context.Context, session *Session) error
	touchFunc  func(ctx context.Context, sessionID uint) error
	deleteFunc func(ctx context.Context, publicID, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *Session) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByPublicID(ctx context.Context, publicID, userID string) (*Session, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, publicID, userID)
	}
	return &Session{ID: 1, PublicID: publicID, UserID: userID, Title: DefaultTitle}, nil
}

func (m *mockSessionRepo) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *Session) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) Touch(ctx context.Context, sessionID uint) error {
	if m.touchFunc != nil {
		return m.touchFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, publicID, userID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, publicID, userID)
	}
	return nil
}

type scriptedStream struct {
	events []stream.Event
	idx    int
	// gate, when set, blocks each Recv until released
	gate chan struct{}
}

func (s *scriptedStream) Recv() (*stream.Event, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.idx >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.idx]
	s.idx++
	return &ev, nil
}

func (s *scriptedStream) Close() error { return nil }

type mockProvider struct {
	completionFunc func(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
	streamFunc     func(ctx context.Context, req llm.TurnRequest) (llm.EventStream, error)
}

func (m *mockProvider) CreateChatCompletion(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	if m.completionFunc != nil {
		return m.completionFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProvider) StreamTurn(ctx context.Context, req llm.TurnRequest) (llm.EventStream, error) {
	if m.streamFunc != nil {
		return m.streamFunc(ctx, req)
	}
	return &scriptedStream{}, nil
}

type recordingObserver struct {
	mu         sync.Mutex
	turnID     string
	deltas     []string
	steps      []*stream.TaskStep
	summaries  []string
	completed  *stream.Turn
	persisted  *Message
	errReason  string
	retryAfter time.Duration
}

func (o *recordingObserver) OnTurnCreated(turnID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turnID = turnID
}

func (o *recordingObserver) OnDelta(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deltas = append(o.deltas, text)
}

func (o *recordingObserver) OnStep(step *stream.TaskStep) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
}

func (o *recordingObserver) OnSummary(summary string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, summary)
}

func (o *recordingObserver) OnCompleted(turn *stream.Turn, message *Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = turn
	o.persisted = message
}

func (o *recordingObserver) OnError(reason string, retryAfter time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errReason = reason
	o.retryAfter = retryAfter
}

func testConfig() *config.Config {
	return &config.Config{
		ChatModel:      "gpt-4o-mini",
		TitleModel:     "gpt-4o-mini",
		MaxTurnSteps:   10,
		TurnTimeout:    5 * time.Second,
		StreamCooldown: 30 * time.Second,
	}
}

func newTestService(sessions SessionRepository, messages MessageRepository, provider llm.Provider) *Service {
	return NewService(sessions, messages, provider, testConfig(), zerolog.Nop())
}

func TestCreateSessionReusesEmptyActive(t *testing.T) {
	creates := 0
	sessions := &mockSessionRepo{
		createFunc: func(_ context.Context, session *Session) error {
			creates++
			session.ID = uint(creates)
			return nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, _ uint) (int64, error) { return 0, nil },
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	first, err := svc.CreateSession(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateSession() unexpected error: %v", err)
	}

	second, err := svc.CreateSession(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateSession() unexpected error: %v", err)
	}
	if second.PublicID != first.PublicID {
		t.Errorf("CreateSession() created a duplicate: %q vs %q", second.PublicID, first.PublicID)
	}
	if creates != 1 {
		t.Errorf("Create called %d times, want 1", creates)
	}
}

func TestCreateSessionWhenActiveHasMessages(t *testing.T) {
	creates := 0
	sessions := &mockSessionRepo{
		createFunc: func(_ context.Context, session *Session) error {
			creates++
			session.ID = uint(creates)
			return nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, _ uint) (int64, error) { return 3, nil },
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	first, _ := svc.CreateSession(context.Background(), "user-1")
	second, err := svc.CreateSession(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateSession() unexpected error: %v", err)
	}
	if second.PublicID == first.PublicID {
		t.Error("CreateSession() reused a non-empty session")
	}
	if creates != 2 {
		t.Errorf("Create called %d times, want 2", creates)
	}
}

func TestActivateSessionDeletesEmptyPrevious(t *testing.T) {
	var deleted []string
	sessions := &mockSessionRepo{
		createFunc: func(_ context.Context, session *Session) error {
			session.ID = 1
			return nil
		},
		findFunc: func(_ context.Context, publicID, userID string) (*Session, error) {
			return &Session{ID: 2, PublicID: publicID, UserID: userID, Title: DefaultTitle}, nil
		},
		deleteFunc: func(_ context.Context, publicID, _ string) error {
			deleted = append(deleted, publicID)
			return nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, sessionID uint) (int64, error) {
			if sessionID == 1 {
				return 0, nil
			}
			return 5, nil
		},
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	empty, _ := svc.CreateSession(context.Background(), "user-1")
	_, _, err := svc.ActivateSession(context.Background(), "user-1", "sess_target")
	if err != nil {
		t.Fatalf("ActivateSession() unexpected error: %v", err)
	}

	if len(deleted) != 1 || deleted[0] != empty.PublicID {
		t.Errorf("deleted = %v, want [%s]", deleted, empty.PublicID)
	}
}

func TestActivateSessionKeepsNonEmptyPrevious(t *testing.T) {
	sessions := &mockSessionRepo{
		createFunc: func(_ context.Context, session *Session) error {
			session.ID = 1
			return nil
		},
		findFunc: func(_ context.Context, publicID, userID string) (*Session, error) {
			return &Session{ID: 2, PublicID: publicID, UserID: userID}, nil
		},
		deleteFunc: func(_ context.Context, publicID, _ string) error {
			t.Fatalf("Delete called for non-empty session %s", publicID)
			return nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, _ uint) (int64, error) { return 2, nil },
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	// CreateSession with non-zero count creates a fresh one and makes it active.
	if _, err := svc.CreateSession(context.Background(), "user-1"); err != nil {
		t.Fatalf("CreateSession() unexpected error: %v", err)
	}
	if _, _, err := svc.ActivateSession(context.Background(), "user-1", "sess_target"); err != nil {
		t.Fatalf("ActivateSession() unexpected error: %v", err)
	}
}

func TestDeleteActiveSessionActivatesMostRecent(t *testing.T) {
	sessions := &mockSessionRepo{
		createFunc: func(_ context.Context, session *Session) error {
			session.ID = 1
			return nil
		},
		listFunc: func(_ context.Context, _ string) ([]Session, error) {
			return []Session{
				{ID: 9, PublicID: "sess_recent", Title: "Recent"},
				{ID: 8, PublicID: "sess_old", Title: "Old"},
			}, nil
		},
		findFunc: func(_ context.Context, publicID, userID string) (*Session, error) {
			return &Session{ID: 9, PublicID: publicID, UserID: userID}, nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, _ uint) (int64, error) { return 1, nil },
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	active, _ := svc.CreateSession(context.Background(), "user-1")
	next, err := svc.DeleteSession(context.Background(), "user-1", active.PublicID)
	if err != nil {
		t.Fatalf("DeleteSession() unexpected error: %v", err)
	}
	if next == nil || next.PublicID != "sess_recent" {
		t.Errorf("DeleteSession() activated %v, want sess_recent", next)
	}
}

func TestDeleteOnlySessionCreatesFresh(t *testing.T) {
	creates := 0
	sessions := &mockSessionRepo{
		createFunc: func(_ context.Context, session *Session) error {
			creates++
			session.ID = uint(creates)
			return nil
		},
		listFunc: func(_ context.Context, _ string) ([]Session, error) {
			return nil, nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, _ uint) (int64, error) { return 1, nil },
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	active, _ := svc.CreateSession(context.Background(), "user-1")
	next, err := svc.DeleteSession(context.Background(), "user-1", active.PublicID)
	if err != nil {
		t.Fatalf("DeleteSession() unexpected error: %v", err)
	}
	if next == nil || next.PublicID == active.PublicID {
		t.Errorf("DeleteSession() = %v, want a fresh session", next)
	}
}

func TestListSessionsFiltersByTitle(t *testing.T) {
	sessions := &mockSessionRepo{
		listFunc: func(_ context.Context, _ string) ([]Session, error) {
			return []Session{
				{PublicID: "sess_1", Title: "Email sending task"},
				{PublicID: "sess_2", Title: "Calendar event"},
				{PublicID: "sess_3", Title: "EMAIL cleanup"},
			}, nil
		},
	}
	svc := newTestService(sessions, &mockMessageRepo{}, &mockProvider{})

	got, err := svc.ListSessions(context.Background(), "user-1", "email")
	if err != nil {
		t.Fatalf("ListSessions() unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].PublicID != "sess_1" || got[1].PublicID != "sess_3" {
		t.Errorf("filtered = %v, want sess_1 and sess_3", got)
	}
}

func TestStartTurnHappyPath(t *testing.T) {
	var created []Message
	messages := &mockMessageRepo{
		createFunc: func(_ context.Context, message *Message) error {
			message.ID = uint(len(created) + 1)
			created = append(created, *message)
			return nil
		},
		listFunc: func(_ context.Context, _ uint) ([]Message, error) {
			out := make([]Message, len(created))
			copy(out, created)
			return out, nil
		},
		countFunc: func(_ context.Context, _ uint) (int64, error) {
			return int64(len(created)), nil
		},
	}
	provider := &mockProvider{
		streamFunc: func(_ context.Context, req llm.TurnRequest) (llm.EventStream, error) {
			if req.MaxSteps != 10 {
				t.Errorf("TurnRequest.MaxSteps = %d, want 10", req.MaxSteps)
			}
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventToolCallStart, CallID: "c1", Tool: "GMAIL_SEND_EMAIL", Input: map[string]any{"to": "x"}},
				{Type: stream.EventToolCallResult, CallID: "c1", Output: "ok"},
				{Type: stream.EventTextDelta, Text: "Email "},
				{Type: stream.EventTextDelta, Text: "sent."},
				{Type: stream.EventStepFinished, Reason: "stop"},
			}}, nil
		},
	}
	svc := newTestService(&mockSessionRepo{}, messages, provider)

	obs := &recordingObserver{}
	err := svc.StartTurn(context.Background(), "user-1", "sess_1", "send the email", obs)
	if err != nil {
		t.Fatalf("StartTurn() unexpected error: %v", err)
	}

	if obs.turnID == "" {
		t.Error("observer never saw turn.created")
	}
	if got := len(obs.deltas); got != 2 {
		t.Errorf("deltas = %d, want 2", got)
	}
	if len(obs.summaries) == 0 || obs.summaries[0] != "Using Gmail" {
		t.Errorf("summaries = %v, want [Using Gmail ...]", obs.summaries)
	}
	if obs.persisted == nil {
		t.Fatal("assistant message was not persisted")
	}
	if obs.persisted.Content != "Email sent." {
		t.Errorf("persisted content = %q, want %q", obs.persisted.Content, "Email sent.")
	}

	// user message + assistant message
	if len(created) != 2 {
		t.Fatalf("messages created = %d, want 2", len(created))
	}
	if created[0].Role != RoleUser || created[1].Role != RoleAssistant {
		t.Errorf("roles = %v/%v, want user/assistant", created[0].Role, created[1].Role)
	}
	if len(created[1].ToolCalls) != 1 {
		t.Errorf("assistant tool calls = %d, want 1", len(created[1].ToolCalls))
	}
}

func TestStartTurnStreamErrorUsesCooldown(t *testing.T) {
	var assistantWrites int
	messages := &mockMessageRepo{
		createFunc: func(_ context.Context, message *Message) error {
			if message.Role == RoleAssistant {
				assistantWrites++
			}
			return nil
		},
	}
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventTextDelta, Text: "partial"},
				{Type: stream.EventStreamError, Reason: "rate limited"},
			}}, nil
		},
	}
	svc := newTestService(&mockSessionRepo{}, messages, provider)

	obs := &recordingObserver{}
	if err := svc.StartTurn(context.Background(), "user-1", "sess_1", "hi", obs); err != nil {
		t.Fatalf("StartTurn() unexpected error: %v", err)
	}

	if obs.errReason != "rate limited" {
		t.Errorf("errReason = %q, want %q", obs.errReason, "rate limited")
	}
	if obs.retryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want default cooldown 30s", obs.retryAfter)
	}
	if assistantWrites != 0 {
		t.Errorf("assistant writes = %d, failed turn must not persist", assistantWrites)
	}
}

func TestStartTurnStreamErrorKeepsProviderBackoff(t *testing.T) {
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventStreamError, Reason: "rate limited", RetryAfter: 12 * time.Second},
			}}, nil
		},
	}
	svc := newTestService(&mockSessionRepo{}, &mockMessageRepo{}, provider)

	obs := &recordingObserver{}
	if err := svc.StartTurn(context.Background(), "user-1", "sess_1", "hi", obs); err != nil {
		t.Fatalf("StartTurn() unexpected error: %v", err)
	}
	if obs.retryAfter != 12*time.Second {
		t.Errorf("retryAfter = %v, want provider hint 12s", obs.retryAfter)
	}
}

func TestStartTurnRejectsConcurrentSend(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			close(started)
			return &scriptedStream{gate: gate}, nil
		},
	}
	svc := newTestService(&mockSessionRepo{}, &mockMessageRepo{}, provider)

	done := make(chan error, 1)
	go func() {
		done <- svc.StartTurn(context.Background(), "user-1", "sess_1", "first", &recordingObserver{})
	}()

	<-started
	err := svc.StartTurn(context.Background(), "user-1", "sess_1", "second", &recordingObserver{})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
		t.Errorf("second StartTurn() error = %v, want Conflict", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first StartTurn() unexpected error: %v", err)
	}
}

func TestStartTurnQueuesTitleInference(t *testing.T) {
	var updated *Session
	sessions := &mockSessionRepo{
		findFunc: func(_ context.Context, publicID, userID string) (*Session, error) {
			return &Session{ID: 1, PublicID: publicID, UserID: userID, Title: DefaultTitle, TitleState: TitleStatePending}, nil
		},
		updateFunc: func(_ context.Context, session *Session) error {
			updated = session
			return nil
		},
	}
	messages := &mockMessageRepo{
		countFunc: func(_ context.Context, _ uint) (int64, error) { return 2, nil },
	}
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventTextDelta, Text: "answer"},
			}}, nil
		},
	}
	svc := newTestService(sessions, messages, provider)

	if err := svc.StartTurn(context.Background(), "user-1", "sess_1", "draft a doc", &recordingObserver{}); err != nil {
		t.Fatalf("StartTurn() unexpected error: %v", err)
	}
	if updated == nil || updated.TitleState != TitleStateQueued {
		t.Errorf("session title state = %+v, want queued", updated)
	}
}

func TestGenerateTitleModelSuccess(t *testing.T) {
	var savedTitle string
	sessions := &mockSessionRepo{
		updateFunc: func(_ context.Context, session *Session) error {
			savedTitle = session.Title
			return nil
		},
	}
	messages := &mockMessageRepo{
		listFunc: func(_ context.Context, _ uint) ([]Message, error) {
			return []Message{
				{Role: RoleUser, Content: "help me send emails"},
				{Role: RoleAssistant, Content: "Sure, which ones?"},
			}, nil
		},
	}
	provider := &mockProvider{
		completionFunc: func(_ context.Context, _ llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
			return &llm.ChatCompletionResponse{
				Choices: []llm.ChatCompletionChoice{{Message: llm.ChatMessage{Role: "assistant", Content: "Email sending task"}}},
			}, nil
		},
	}
	svc := newTestService(sessions, messages, provider)

	session := &Session{ID: 1, PublicID: "sess_1", Title: DefaultTitle}
	if err := svc.GenerateTitle(context.Background(), session); err != nil {
		t.Fatalf("GenerateTitle() unexpected error: %v", err)
	}
	if savedTitle != "Email sending task" {
		t.Errorf("title = %q, want %q", savedTitle, "Email sending task")
	}
	if session.TitleState != TitleStateCompleted {
		t.Errorf("title state = %v, want completed", session.TitleState)
	}
}

func TestGenerateTitleFallsBackOnModelFailure(t *testing.T) {
	var savedTitle string
	sessions := &mockSessionRepo{
		updateFunc: func(_ context.Context, session *Session) error {
			savedTitle = session.Title
			return nil
		},
	}
	messages := &mockMessageRepo{
		listFunc: func(_ context.Context, _ uint) ([]Message, error) {
			return []Message{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleAssistant, Content: "Hello!"},
				{Role: RoleUser, Content: "help me draft a proposal"},
			}, nil
		},
	}
	provider := &mockProvider{
		completionFunc: func(_ context.Context, _ llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
			return nil, errors.New("model unavailable")
		},
	}
	svc := newTestService(sessions, messages, provider)

	if err := svc.GenerateTitle(context.Background(), &Session{ID: 1, PublicID: "sess_1", Title: DefaultTitle}); err != nil {
		t.Fatalf("GenerateTitle() unexpected error: %v", err)
	}
	if savedTitle != "Help me draft a proposal" {
		t.Errorf("title = %q, want fallback %q", savedTitle, "Help me draft a proposal")
	}
}

func TestGenerateTitleTooFewMessages(t *testing.T) {
	sessions := &mockSessionRepo{
		updateFunc: func(_ context.Context, _ *Session) error {
			t.Fatal("Update called with too few messages")
			return nil
		},
	}
	messages := &mockMessageRepo{
		listFunc: func(_ context.Context, _ uint) ([]Message, error) {
			return []Message{{Role: RoleUser, Content: "hi"}}, nil
		},
	}
	svc := newTestService(sessions, messages, &mockProvider{})

	if err := svc.GenerateTitle(context.Background(), &Session{ID: 1, Title: DefaultTitle}); err != nil {
		t.Fatalf("GenerateTitle() unexpected error: %v", err)
	}
}
