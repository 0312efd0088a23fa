// Package agent is the HTTP client for the backend agent service.
//
// The client is thin glue: it starts and stops the conversational agent
// for a channel and renews the channel token. Failures are surfaced to
// the caller as typed errors and never retried here; the UI decides how
// to present them.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parleyhq/parley/iox"
	"github.com/parleyhq/parley/types"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// Config configures the agent client.
type Config struct {
	// BaseURL is the agent service root, e.g. "https://agents.example.com" (required).
	BaseURL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
}

// Client talks to the backend agent service.
type Client struct {
	config Config
	client *http.Client
}

// New creates an agent client from the given config.
// Returns an error if the base URL is empty or unparsable.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("agent client requires a base URL")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("agent client: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError is returned for non-2xx responses from the agent service.
type StatusError struct {
	Code int
	Op   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent %s: unexpected status %d", e.Op, e.Code)
}

// StartResult describes the agent joined to the channel.
type StartResult struct {
	AgentID  string
	AgentUID string
	CreateTS int64
	State    string
}

type startRequest struct {
	ChannelName string `json:"channel_name"`
	UID         string `json:"uid"`
}

type startResponse struct {
	AgentID  string      `json:"agent_id"`
	AgentUID json.Number `json:"agent_uid"`
	CreateTS int64       `json:"create_ts"`
	State    string      `json:"state"`
}

type stopRequest struct {
	ChannelName string `json:"channel_name"`
	UID         string `json:"uid"`
	AgentUID    string `json:"agent_uid"`
	TenantID    string `json:"tenant_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Start asks the service to join an agent to the channel.
// The returned agent identity is in canonical form.
func (c *Client) Start(ctx context.Context, channel, uid string) (*StartResult, error) {
	var resp startResponse
	err := c.postJSON(ctx, "start", "/start", startRequest{
		ChannelName: channel,
		UID:         uid,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &StartResult{
		AgentID:  resp.AgentID,
		AgentUID: types.CanonicalUID(resp.AgentUID.String()),
		CreateTS: resp.CreateTS,
		State:    resp.State,
	}, nil
}

// Stop asks the service to remove the agent from the channel.
func (c *Client) Stop(ctx context.Context, channel, uid, agentUID, tenantID string) error {
	return c.postJSON(ctx, "stop", "/stop", stopRequest{
		ChannelName: channel,
		UID:         uid,
		AgentUID:    agentUID,
		TenantID:    tenantID,
	}, nil)
}

// RenewToken fetches a fresh channel token for the given identity.
func (c *Client) RenewToken(ctx context.Context, channel, uid string) (string, error) {
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("uid", uid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/token/renew?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("agent renew: create request: %w", err)
	}
	c.setHeaders(req)

	var resp tokenResponse
	if err := c.do(req, "renew", &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("agent renew: empty token in response")
	}
	return resp.Token, nil
}

// postJSON POSTs a JSON body and optionally decodes a JSON response.
func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("agent %s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("agent %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent %s: request failed: %w", op, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Op: op}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agent %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
