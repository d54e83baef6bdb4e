// Package llmprovider implements the llm.Provider contract against the
// completion stream service.
package llmprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"isuite-server/chat-api/internal/domain/llm"
	"isuite-server/chat-api/internal/domain/stream"
)

// Client implements the llm.Provider interface.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

// NewClient creates a Resty-backed client.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(75 * time.Second),
		baseURL: baseURL,
	}
}

// CreateChatCompletion calls the completion service /v1/chat/completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	var completion llm.ChatCompletionResponse
	request := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&completion)

	if token := llm.AuthTokenFromContext(ctx); token != "" {
		request.SetHeader("Authorization", token)
	}

	resp, err := request.Post("/v1/chat/completions")
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("completion api error: %s", resp.String())
	}
	return &completion, nil
}

// StreamTurn opens the /v1/turns SSE stream for one assistant turn.
func (c *Client) StreamTurn(ctx context.Context, req llm.TurnRequest) (llm.EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/turns", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token := llm.AuthTokenFromContext(ctx); token != "" {
		httpReq.Header.Set("Authorization", token)
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("completion api error: %d %s", resp.StatusCode, string(body))
	}

	return &sseStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// Ensure interface compliance.
var _ llm.Provider = (*Client)(nil)

// sseStream implements llm.EventStream backed by an http.Response body
// with SSE parsing. Events arrive as "event: <name>" / "data: <json>"
// pairs; the stream ends at response.completed or [DONE].
type sseStream struct {
	resp      *http.Response
	reader    *bufio.Reader
	eventName string
}

func (s *sseStream) Recv() (*stream.Event, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read line: %w", err)
		}

		line = strings.TrimSpace(line)

		// Blank lines delimit events, comments are skipped
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if name, ok := strings.CutPrefix(line, "event: "); ok {
			s.eventName = name
			continue
		}

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		if data == "[DONE]" {
			return nil, io.EOF
		}

		name := s.eventName
		s.eventName = ""
		if name == eventCompleted {
			return nil, io.EOF
		}

		ev, ok := normalizeEvent(name, []byte(data))
		if !ok {
			// Skip malformed or unknown chunks
			continue
		}
		return ev, nil
	}
}

func (s *sseStream) Close() error {
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}
