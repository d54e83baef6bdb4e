package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/config"
	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/domain/llm"
	"isuite-server/chat-api/internal/domain/stream"
	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/infrastructure/integrations"
	"isuite-server/chat-api/internal/interfaces/httpserver/handlers"
	"isuite-server/chat-api/internal/utils/platformerrors"
)

type mockSessionRepo struct {
	createFunc func(ctx context.Context, session *chat.Session) error
	findFunc   func(ctx context.Context, publicID, userID string) (*chat.Session, error)
	listFunc   func(ctx context.Context, userID string) ([]chat.Session, error)
	updateFunc func(ctx context.Context, session *chat.Session) error
	touchFunc  func(ctx context.Context, sessionID uint) error
	deleteFunc func(ctx context.Context, publicID, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *chat.Session) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, session)
	}
	session.ID = 1
	return nil
}

func (m *mockSessionRepo) FindByPublicID(ctx context.Context, publicID, userID string) (*chat.Session, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, publicID, userID)
	}
	return &chat.Session{ID: 1, PublicID: publicID, UserID: userID, Title: chat.DefaultTitle}, nil
}

func (m *mockSessionRepo) ListByUser(ctx context.Context, userID string) ([]chat.Session, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *chat.Session) error {
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

type mockMessageRepo struct {
	created   []*chat.Message
	listFunc  func(ctx context.Context, sessionID uint) ([]chat.Message, error)
	countFunc func(ctx context.Context, sessionID uint) (int64, error)
}

func (m *mockMessageRepo) Create(ctx context.Context, message *chat.Message) error {
	message.ID = uint(len(m.created) + 1)
	message.Sequence = len(m.created) + 1
	m.created = append(m.created, message)
	return nil
}

func (m *mockMessageRepo) ListBySessionID(ctx context.Context, sessionID uint) ([]chat.Message, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, sessionID)
	}
	out := make([]chat.Message, 0, len(m.created))
	for _, msg := range m.created {
		out = append(out, *msg)
	}
	return out, nil
}

func (m *mockMessageRepo) CountBySessionID(ctx context.Context, sessionID uint) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, sessionID)
	}
	return int64(len(m.created)), nil
}

type scriptedStream struct {
	events []stream.Event
	idx    int
}

func (s *scriptedStream) Recv() (*stream.Event, error) {
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

type mockConnectionService struct {
	listFunc     func(ctx context.Context, userID string) ([]integrations.Connection, error)
	initiateFunc func(ctx context.Context, userID, toolkit string) (*integrations.InitiateResult, error)
	deleteFunc   func(ctx context.Context, connectionID string) error
}

func (m *mockConnectionService) ListConnections(ctx context.Context, userID string) ([]integrations.Connection, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID)
	}
	return []integrations.Connection{}, nil
}

func (m *mockConnectionService) InitiateConnection(ctx context.Context, userID, toolkit string) (*integrations.InitiateResult, error) {
	if m.initiateFunc != nil {
		return m.initiateFunc(ctx, userID, toolkit)
	}
	return &integrations.InitiateResult{}, nil
}

func (m *mockConnectionService) DeleteConnection(ctx context.Context, connectionID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, connectionID)
	}
	return nil
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

func newTestRouter(t *testing.T, sessions chat.SessionRepository, messages chat.MessageRepository, provider llm.Provider, connections integrations.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator, err := auth.NewValidator(context.Background(), &config.Config{AuthEnabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewValidator() unexpected error: %v", err)
	}

	chatService := chat.NewService(sessions, messages, provider, testConfig(), zerolog.Nop())
	handlerProvider := handlers.NewProvider(chatService, connections, validator, zerolog.Nop())

	engine := gin.New()
	group := engine.Group("/v1")
	group.POST("/chat/sessions", handlerProvider.Session.Create)
	group.GET("/chat/sessions", handlerProvider.Session.List)
	group.GET("/chat/sessions/:session_id", handlerProvider.Session.Get)
	group.PATCH("/chat/sessions/:session_id", handlerProvider.Session.UpdateTitle)
	group.DELETE("/chat/sessions/:session_id", handlerProvider.Session.Delete)
	group.POST("/chat/sessions/:session_id/activate", handlerProvider.Session.Activate)
	group.POST("/chat/sessions/:session_id/turns", handlerProvider.Chat.SendTurn)
	group.GET("/connections", handlerProvider.Connection.List)
	group.POST("/connections", handlerProvider.Connection.Initiate)
	group.DELETE("/connections/:connection_id", handlerProvider.Connection.Delete)
	return engine
}

func TestSessionCreate(t *testing.T) {
	sessions := &mockSessionRepo{}
	router := newTestRouter(t, sessions, &mockMessageRepo{}, &mockProvider{}, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload["title"] != chat.DefaultTitle {
		t.Errorf("title = %v, want %q", payload["title"], chat.DefaultTitle)
	}
	id, _ := payload["id"].(string)
	if !strings.HasPrefix(id, "sess_") {
		t.Errorf("id = %q, want sess_ prefix", id)
	}
}

func TestSessionList(t *testing.T) {
	sessions := &mockSessionRepo{
		listFunc: func(_ context.Context, _ string) ([]chat.Session, error) {
			return []chat.Session{
				{PublicID: "sess_a", Title: "Email drafting"},
				{PublicID: "sess_b", Title: "Trip planning"},
			}, nil
		},
	}
	router := newTestRouter(t, sessions, &mockMessageRepo{}, &mockProvider{}, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/chat/sessions?search=email", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(payload.Data) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(payload.Data))
	}
	if payload.Data[0]["id"] != "sess_a" {
		t.Errorf("data[0].id = %v, want sess_a", payload.Data[0]["id"])
	}
}

func TestSessionGetNotFound(t *testing.T) {
	sessions := &mockSessionRepo{
		findFunc: func(ctx context.Context, publicID, _ string) (*chat.Session, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "chat session not found", nil,
				"11111111-2222-3333-4444-555555555555")
		},
	}
	router := newTestRouter(t, sessions, &mockMessageRepo{}, &mockProvider{}, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/chat/sessions/sess_missing", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestSessionUpdateTitleValidation(t *testing.T) {
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, &mockProvider{}, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/v1/chat/sessions/sess_1", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSendTurnStreamsEvents(t *testing.T) {
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventToolCallStart, CallID: "call_1", Tool: "GMAIL_SEND_EMAIL"},
				{Type: stream.EventToolCallResult, CallID: "call_1", Output: "sent"},
				{Type: stream.EventTextDelta, Text: "Done, the email is on its way."},
			}}, nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, provider, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/sess_1/turns",
		bytes.NewBufferString(`{"content":"send the email"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"event: turn.created",
		"event: turn.step",
		"event: turn.summary",
		"event: turn.delta",
		"event: turn.completed",
		`"Using Gmail"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "event: turn.error") {
		t.Errorf("stream contains unexpected error event:\n%s", body)
	}
}

func TestSendTurnStreamError(t *testing.T) {
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventTextDelta, Text: "partial"},
				{Type: stream.EventStreamError, Reason: "rate limit exceeded"},
			}}, nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, provider, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/sess_1/turns",
		bytes.NewBufferString(`{"content":"hi there"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: turn.error") {
		t.Fatalf("stream missing turn.error event:\n%s", body)
	}
	if !strings.Contains(body, `"retry_after":30`) {
		t.Errorf("stream missing default retry_after in:\n%s", body)
	}
}

// sseEventData returns the data payloads of every occurrence of the named
// event in an SSE body.
func sseEventData(body, event string) []string {
	var out []string
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "event: "+event && i+1 < len(lines) {
			out = append(out, strings.TrimPrefix(lines[i+1], "data: "))
		}
	}
	return out
}

func TestSendTurnForwardsToolMatchedStep(t *testing.T) {
	provider := &mockProvider{
		streamFunc: func(_ context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventToolCallStart, CallID: "call_1", Tool: "GMAIL_SEND_EMAIL"},
				// Result echoes no call ID; it resolves by tool slug.
				{Type: stream.EventToolCallResult, Tool: "GMAIL_SEND_EMAIL", Output: "sent"},
				{Type: stream.EventTextDelta, Text: "Done."},
			}}, nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, provider, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/sess_1/turns",
		bytes.NewBufferString(`{"content":"send the email"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	steps := sseEventData(rec.Body.String(), "turn.step")
	if len(steps) != 2 {
		t.Fatalf("len(turn.step events) = %d, want 2 (start and completion):\n%s", len(steps), rec.Body.String())
	}
	if !strings.Contains(steps[1], `"status":"completed"`) {
		t.Errorf("second step event = %s, want completed status", steps[1])
	}
	if !strings.Contains(steps[1], `"output":"sent"`) {
		t.Errorf("second step event = %s, want tool output", steps[1])
	}
}

func TestSendTurnForwardsAuthHeader(t *testing.T) {
	var gotAuth string
	provider := &mockProvider{
		streamFunc: func(ctx context.Context, _ llm.TurnRequest) (llm.EventStream, error) {
			gotAuth = llm.AuthTokenFromContext(ctx)
			return &scriptedStream{events: []stream.Event{
				{Type: stream.EventTextDelta, Text: "ok"},
			}}, nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, provider, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/sess_1/turns",
		bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token-123")
	router.ServeHTTP(rec, req)

	if gotAuth != "Bearer token-123" {
		t.Errorf("completion call saw Authorization %q, want %q", gotAuth, "Bearer token-123")
	}
}

func TestSendTurnEmptyContent(t *testing.T) {
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, &mockProvider{}, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/sess_1/turns",
		bytes.NewBufferString(`{"content":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSendTurnSessionNotFound(t *testing.T) {
	sessions := &mockSessionRepo{
		findFunc: func(ctx context.Context, publicID, _ string) (*chat.Session, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "chat session not found", nil,
				"66666666-7777-8888-9999-aaaaaaaaaaaa")
		},
	}
	router := newTestRouter(t, sessions, &mockMessageRepo{}, &mockProvider{}, &mockConnectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/sess_gone/turns",
		bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); strings.Contains(ct, "text/event-stream") {
		t.Errorf("error response should not be an SSE stream, got Content-Type %q", ct)
	}
}

func TestConnectionList(t *testing.T) {
	connections := &mockConnectionService{
		listFunc: func(_ context.Context, _ string) ([]integrations.Connection, error) {
			return []integrations.Connection{
				{ID: "conn_1", Toolkit: "gmail", Status: integrations.ConnectionStatusActive},
			}, nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, &mockProvider{}, connections)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/connections", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"gmail"`) {
		t.Errorf("response missing toolkit: %s", rec.Body.String())
	}
}

func TestConnectionInitiate(t *testing.T) {
	connections := &mockConnectionService{
		initiateFunc: func(_ context.Context, _, toolkit string) (*integrations.InitiateResult, error) {
			if toolkit != "gmail" {
				return nil, errors.New("unexpected toolkit")
			}
			return &integrations.InitiateResult{RedirectURL: "https://example.com/oauth", ConnectionID: "conn_new"}, nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, &mockProvider{}, connections)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/connections",
		bytes.NewBufferString(`{"toolkit":"gmail"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "https://example.com/oauth") {
		t.Errorf("response missing redirect URL: %s", rec.Body.String())
	}
}

func TestConnectionDelete(t *testing.T) {
	deleted := ""
	connections := &mockConnectionService{
		deleteFunc: func(_ context.Context, connectionID string) error {
			deleted = connectionID
			return nil
		},
	}
	router := newTestRouter(t, &mockSessionRepo{}, &mockMessageRepo{}, &mockProvider{}, connections)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/connections/conn_1", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if deleted != "conn_1" {
		t.Errorf("deleted = %q, want conn_1", deleted)
	}
}
