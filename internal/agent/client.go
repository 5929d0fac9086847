// ABOUTME: HTTP client for the outbound agent endpoint call
// ABOUTME: One POST per user message; the raw JSON body goes to the normalizer

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of an endpoint response is read. Agent
// answers are short; anything larger is endpoint misbehavior.
const maxResponseBytes = 1 << 20

// Client talks to the conversational agent endpoint. The endpoint is opaque:
// whatever JSON it returns is handed to the reply normalizer untouched.
type Client struct {
	endpoint   string
	agentID    string
	httpClient *http.Client
	logger     *slog.Logger
}

// askRequest is the fixed outbound body shape.
type askRequest struct {
	AgentID   string  `json:"agent_id"`
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// NewClient creates a client for the given endpoint. A zero timeout disables
// the client-side deadline (callers can still cancel via context).
func NewClient(endpoint, agentID string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		agentID:    agentID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "agent"),
	}
}

// Ask sends one user message to the agent endpoint and returns the raw JSON
// response body. sessionID may be empty, which is sent as null.
//
// Transport failures and non-JSON bodies are errors; the caller surfaces them
// as a synthetic chat message. Status codes are not checked - error payloads
// are still JSON the normalizer knows how to fall back on.
func (c *Client) Ask(ctx context.Context, message, sessionID string) (json.RawMessage, error) {
	reqBody := askRequest{
		AgentID: c.agentID,
		Message: message,
	}
	if sessionID != "" {
		reqBody.SessionID = &sessionID
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("agent returned non-JSON response (status %d)", resp.StatusCode)
	}

	c.logger.Debug("agent responded",
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start))

	return json.RawMessage(body), nil
}
