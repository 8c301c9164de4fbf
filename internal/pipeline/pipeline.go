// Package pipeline runs one chat turn: prompt, completion, cleanup,
// render, transcript.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/umlchat/internal/conversation"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
)

// State is a stage of a turn.
type State int

const (
	Idle State = iota
	Prompting
	Completing
	Sanitizing
	Rendering
	Done
	Failed
)

var stateNames = [...]string{"idle", "prompting", "completing", "sanitizing", "rendering", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the turn has finished.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Assistant turn prefixes for failed turns.
const (
	CompletionErrorPrefix = "Error: "
	RenderErrorPrefix     = "PlantUML Error:\n"
)

// Observer receives every state transition of a turn.
type Observer func(State)

// Result is the outcome of a single turn.
type Result struct {
	State State
	// Raw is the completion text before cleanup.
	Raw string
	// Source is the sanitized diagram source.
	Source   string
	Artifact *render.Artifact
	Err      error
}

// Pipeline wires the turn stages together.
type Pipeline struct {
	Completer llm.Completer
	Sanitizer sanitize.Sanitizer
	Renderer  render.Renderer
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Observer  Observer
}

// Run executes one turn for userText against session. The user turn is
// appended first and exactly one assistant turn follows, whatever the
// outcome. Failures are reported through Result and never leave the
// session unusable.
func (p *Pipeline) Run(ctx context.Context, session *conversation.Session, userText string, category prompt.Category) Result {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", session.ID, "category", category.Key())

	start := time.Now()
	res := p.run(ctx, logger, session, userText, category)
	if res.State == Failed {
		p.Metrics.RecordError(metrics.OpTurn)
	} else {
		p.Metrics.RecordTiming(metrics.OpTurn, time.Since(start))
	}
	p.notify(res.State)
	return res
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, session *conversation.Session, userText string, category prompt.Category) Result {
	p.notify(Prompting)
	session.AppendUser(userText)
	instruction := prompt.Build(userText, category)

	p.notify(Completing)
	raw, err := p.Completer.Complete(ctx, instruction)
	if err != nil {
		logger.Warn("completion failed", "model", p.Completer.Model(), "error", err)
		session.AppendAssistant(CompletionErrorPrefix + completionDetail(err))
		return Result{State: Failed, Err: err}
	}

	p.notify(Sanitizing)
	source := p.Sanitizer.Sanitize(raw)
	logger.Debug("sanitized completion", "raw_len", len(raw), "source_len", len(source))

	p.notify(Rendering)
	artifact, err := p.Renderer.Render(ctx, source)
	if err != nil {
		logger.Info("render failed", "error", err)
		session.AppendAssistant(RenderErrorPrefix + renderDetail(err))
		return Result{State: Failed, Raw: raw, Source: source, Err: err}
	}

	session.AppendAssistant(source)
	logger.Info("turn complete", "format", artifact.Format, "bytes", len(artifact.Data))
	return Result{State: Done, Raw: raw, Source: source, Artifact: artifact}
}

func (p *Pipeline) notify(s State) {
	if p.Observer != nil {
		p.Observer(s)
	}
}

// completionDetail strips the sentinel prefix so the transcript shows
// what the backend said.
func completionDetail(err error) string {
	msg := err.Error()
	if errors.Is(err, llm.ErrCompletion) {
		if detail, ok := strings.CutPrefix(msg, llm.ErrCompletion.Error()+": "); ok {
			return detail
		}
	}
	return msg
}

// renderDetail returns the renderer's diagnostics verbatim when present.
func renderDetail(err error) string {
	var renderErr *render.RenderError
	if errors.As(err, &renderErr) && renderErr.Stderr != "" {
		return renderErr.Stderr
	}
	return err.Error()
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for i, name := range stateNames {
		if name == s {
			return State(i), true
		}
	}
	return Idle, false
}
