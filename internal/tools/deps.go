// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"
	"sync"

	"github.com/raphaelgruber/umlchat/internal/conversation"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Completer llm.Completer
	Sanitizer sanitize.Sanitizer
	Renderer  render.Renderer
	// Session is the transcript shared by every call on this server.
	Session *conversation.Session
	Logger  *slog.Logger
	Metrics *metrics.Collector

	// turnMu serialises turns; the renderer owns a single scratch dir.
	turnMu sync.Mutex
}
