package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultOllamaHost is the local inference server.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaTimeout bounds each generate request.
	DefaultOllamaTimeout = 30 * time.Second
)

// errEmptyResponse is returned when the server answers without a response field.
var errEmptyResponse = errors.New("empty response")

// OllamaClient implements Completer against a local Ollama server's
// /api/generate endpoint with streaming disabled.
type OllamaClient struct {
	client *api.Client
	host   string
	model  string
}

// Compile-time check that OllamaClient implements Completer.
var _ Completer = (*OllamaClient)(nil)

// NewOllamaClient creates a client for host. Empty host and zero timeout
// fall back to DefaultOllamaHost and DefaultOllamaTimeout.
func NewOllamaClient(host, model string, timeout time.Duration) (*OllamaClient, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	if timeout <= 0 {
		timeout = DefaultOllamaTimeout
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model required")
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	return &OllamaClient{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		host:   host,
		model:  model,
	}, nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Host returns the server URL.
func (c *OllamaClient) Host() string {
	return c.host
}

// Complete posts {model, prompt, stream:false} and returns the trimmed
// response field. Any non-success status, timeout or undecodable body is
// reported as ErrCompletion.
func (c *OllamaClient) Complete(ctx context.Context, instruction string) (string, error) {
	return c.complete(ctx, Request{Instruction: instruction, Model: c.model})
}

func (c *OllamaClient) complete(ctx context.Context, req Request) (string, error) {
	stream := req.Stream
	genReq := &api.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Instruction,
		Stream: &stream,
	}

	var sb strings.Builder
	received := false
	err := c.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		received = true
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", completionError("generate", fmt.Errorf("status %d: %s", statusErr.StatusCode, statusErr.ErrorMessage))
		}
		return "", completionError("generate", err)
	}

	text := strings.TrimSpace(sb.String())
	if !received || text == "" {
		return "", completionError("generate", errEmptyResponse)
	}
	return text, nil
}
