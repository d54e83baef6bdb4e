// Package integrations is the HTTP client for the external account
// linking service.
package integrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Service exposes the connection operations consumed by the handlers.
type Service interface {
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
	InitiateConnection(ctx context.Context, userID, toolkit string) (*InitiateResult, error)
	DeleteConnection(ctx context.Context, connectionID string) error
}

// Client implements Service over the integrations HTTP API.
type Client struct {
	httpClient *resty.Client
	log        zerolog.Logger
}

// NewClient creates a Resty-backed integrations client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}
	return &Client{
		httpClient: client,
		log:        log.With().Str("component", "integrations-client").Logger(),
	}
}

var _ Service = (*Client)(nil)

// ListConnections returns the user's linked accounts. Failures degrade to
// an empty list so the chat surface keeps working without connections.
func (c *Client) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	var result listConnectionsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetResult(&result).
		Get("/v1/connected-accounts")
	if err != nil {
		c.log.Warn().Err(err).Msg("list connections failed")
		return []Connection{}, nil
	}
	if resp.IsError() {
		c.log.Warn().Int("status", resp.StatusCode()).Msg("list connections failed")
		return []Connection{}, nil
	}
	if result.Items == nil {
		return []Connection{}, nil
	}
	return result.Items, nil
}

// InitiateConnection starts the OAuth link flow for a toolkit and returns
// the redirect URL the user must visit.
func (c *Client) InitiateConnection(ctx context.Context, userID, toolkit string) (*InitiateResult, error) {
	var result InitiateResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(initiateConnectionRequest{UserID: userID, Toolkit: strings.ToLower(toolkit)}).
		SetResult(&result).
		Post("/v1/connected-accounts")
	if err != nil {
		return nil, fmt.Errorf("initiate connection: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("initiate connection: %s", resp.String())
	}
	return &result, nil
}

// DeleteConnection removes a linked account.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete("/v1/connected-accounts/" + connectionID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete connection: %s", resp.String())
	}
	return nil
}
