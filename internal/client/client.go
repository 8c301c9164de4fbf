// Package client talks to a running umlchat-server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultEndpoint is used when neither an endpoint nor UMLCHAT_SERVER_URL is set.
const DefaultEndpoint = "http://localhost:8485"

// Client is an HTTP and websocket client for the umlchat server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses UMLCHAT_SERVER_URL env var or defaults to localhost:8485.
// Timeout can be configured via UMLCHAT_CLIENT_TIMEOUT env var (default 30s).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("UMLCHAT_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	timeout := 30 * time.Second
	if t := os.Getenv("UMLCHAT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// =============================================================================
// TYPES (matching the server's JSON)
// =============================================================================

// Category describes one diagram category.
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// OperationStats represents metrics for a single operation type.
type OperationStats struct {
	Count             int64    `json:"count"`
	Errors            int64    `json:"errors"`
	TotalTimeMs       int64    `json:"totalTimeMs"`
	AvgTimeMs         float64  `json:"avgTimeMs"`
	MinTimeMs         int64    `json:"minTimeMs"`
	MaxTimeMs         int64    `json:"maxTimeMs"`
	TotalInputTokens  *int64   `json:"totalInputTokens,omitempty"`
	TotalOutputTokens *int64   `json:"totalOutputTokens,omitempty"`
	AvgInputTokens    *float64 `json:"avgInputTokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avgOutputTokens,omitempty"`
	MinInputTokens    *int64   `json:"minInputTokens,omitempty"`
	MaxInputTokens    *int64   `json:"maxInputTokens,omitempty"`
	MinOutputTokens   *int64   `json:"minOutputTokens,omitempty"`
	MaxOutputTokens   *int64   `json:"maxOutputTokens,omitempty"`
}

// ServerStats represents server runtime statistics.
type ServerStats struct {
	UptimeSeconds float64         `json:"uptimeSeconds"`
	Completion    *OperationStats `json:"completion,omitempty"`
	Render        *OperationStats `json:"render,omitempty"`
	Turn          *OperationStats `json:"turn,omitempty"`
}

// Reply is one server message for a chat turn.
type Reply struct {
	Session  string `json:"session"`
	State    string `json:"state"`
	Source   string `json:"source,omitempty"`
	Format   string `json:"format,omitempty"`
	Artifact []byte `json:"artifact,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the turn failed.
func (r *Reply) Failed() bool {
	return r.State == "failed"
}

func (r *Reply) terminal() bool {
	return r.State == "done" || r.State == "failed"
}

type chatRequest struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// =============================================================================
// HTTP OPERATIONS
// =============================================================================

// getJSON fetches path and decodes the JSON body into result.
func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

// Categories lists the diagram categories the server accepts.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.getJSON(ctx, "/categories", &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// GetServerStats returns in-memory runtime statistics.
func (c *Client) GetServerStats(ctx context.Context) (*ServerStats, error) {
	var stats ServerStats
	if err := c.getJSON(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat is an open websocket conversation. The server keeps one transcript
// per Chat; closing it discards the transcript.
type Chat struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Connect opens a chat session.
func (c *Client) Connect(ctx context.Context) (*Chat, error) {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Chat{conn: conn}, nil
}

// Send runs one turn and returns the final reply. onState, if non-nil, is
// called for every intermediate state.
func (ch *Chat) Send(ctx context.Context, text, category string, onState func(state string)) (*Reply, error) {
	if err := ch.conn.WriteJSON(chatRequest{Text: text, Category: category}); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ch.Close()
		case <-done:
		}
	}()

	for {
		var reply Reply
		if err := ch.conn.ReadJSON(&reply); err != nil {
			// Check if this was due to context cancellation
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read message: %w", err)
		}
		if reply.terminal() {
			return &reply, nil
		}
		if onState != nil {
			onState(reply.State)
		}
	}
}

// Close ends the session. It is safe to call more than once.
func (ch *Chat) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	_ = ch.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return ch.conn.Close()
}
