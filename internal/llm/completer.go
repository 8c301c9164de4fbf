// Package llm sends diagram instructions to a text-generation backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/umlchat/internal/config"
	"github.com/raphaelgruber/umlchat/internal/metrics"
)

var (
	// ErrCompletion wraps every backend failure: transport errors,
	// timeouts, non-success statuses and malformed payloads.
	ErrCompletion = errors.New("completion failed")

	// ErrFatalAPI marks failures caused by credentials, billing or quota.
	// Retrying the same request will not help.
	ErrFatalAPI = errors.New("fatal API error")

	// ErrUnsupportedProvider is returned by NewCompleter for unknown providers.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
)

// Completer turns an instruction into completion text. Each call makes
// exactly one request; nothing is cached or retried.
type Completer interface {
	Complete(ctx context.Context, instruction string) (string, error)
	Model() string
}

// Request describes a single completion call.
type Request struct {
	Instruction string
	Model       string
	Stream      bool
}

// NewCompleter returns the backend selected by cfg.Provider. mc may be nil.
func NewCompleter(ctx context.Context, cfg config.Config, mc *metrics.Collector) (Completer, error) {
	var c Completer
	var err error

	if cfg.Provider == config.ProviderOllama {
		c, err = NewOllamaClient(cfg.OllamaHost, cfg.Model, cfg.OllamaTimeout)
	} else {
		c, err = NewModel(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	return &instrumented{next: c, metrics: mc, tokens: newTokenCounter()}, nil
}

// instrumented records timing and token estimates for every call.
type instrumented struct {
	next    Completer
	metrics *metrics.Collector
	tokens  *tokenCounter
}

func (i *instrumented) Complete(ctx context.Context, instruction string) (string, error) {
	start := time.Now()
	text, err := i.next.Complete(ctx, instruction)
	duration := time.Since(start)

	if err != nil {
		i.metrics.RecordError(metrics.OpCompletion)
		slog.Warn("completion failed", "model", i.next.Model(), "duration_ms", duration.Milliseconds(), "error", err)
		return "", err
	}

	i.metrics.RecordLLMUsage(metrics.OpCompletion, duration, i.tokens.Count(instruction), i.tokens.Count(text))
	slog.Debug("completion done", "model", i.next.Model(), "duration_ms", duration.Milliseconds(), "response_len", len(text))
	return text, nil
}

func (i *instrumented) Model() string {
	return i.next.Model()
}

// fatalMarkers are substrings of provider error messages that indicate
// credential or billing problems.
var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"api key not valid",
	"authentication",
	"unauthorized",
	"permission denied",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags credential and quota failures with ErrFatalAPI and
// returns other errors unchanged.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// completionError wraps err with ErrCompletion and the fatal marker where
// it applies.
func completionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCompletion, op, wrapFatalError(err))
}
