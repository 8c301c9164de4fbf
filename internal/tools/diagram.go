package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/raphaelgruber/umlchat/internal/render"
)

// GenerateDiagramInput defines the input schema for the generate_diagram tool.
type GenerateDiagramInput struct {
	Description string `json:"description" jsonschema:"What the diagram should show, in plain language"`
	Category    string `json:"category,omitempty" jsonschema:"Diagram type: sequence, usecase, class, object, activity, component, deployment, state or timing (default sequence)"`
}

// NewGenerateDiagramHandler runs one pipeline turn per call.
func NewGenerateDiagramHandler(deps *Dependencies) mcp.ToolHandlerFor[GenerateDiagramInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GenerateDiagramInput) (
		*mcp.CallToolResult, any, error,
	) {
		if strings.TrimSpace(input.Description) == "" {
			return ErrorResult("Description cannot be empty", "Describe the diagram you want"), nil, nil
		}

		category := prompt.Sequence
		if input.Category != "" {
			c, err := prompt.ParseCategory(input.Category)
			if err != nil {
				return ErrorResult(err.Error(), "Call list_categories for valid values"), nil, nil
			}
			category = c
		}

		deps.turnMu.Lock()
		defer deps.turnMu.Unlock()

		p := &pipeline.Pipeline{
			Completer: deps.Completer,
			Sanitizer: deps.Sanitizer,
			Renderer:  deps.Renderer,
			Logger:    deps.Logger,
			Metrics:   deps.Metrics,
		}
		res := p.Run(ctx, deps.Session, input.Description, category)

		if res.Err != nil {
			last, _ := deps.Session.Last()
			return ErrorResult(last.Content, failureHint(res.Err)), nil, nil
		}
		return diagramResult(res), nil, nil
	}
}

func failureHint(err error) string {
	var renderErr *render.RenderError
	switch {
	case errors.Is(err, llm.ErrFatalAPI):
		return "The model backend rejected the request; check credentials and quota"
	case errors.Is(err, llm.ErrCompletion):
		return "The model backend is unavailable; try again later"
	case errors.Is(err, render.ErrWorkdirBusy):
		return "Another renderer is using the work directory"
	case errors.As(err, &renderErr):
		return "Rephrase the description or pick a different category"
	default:
		return ""
	}
}

func diagramResult(res pipeline.Result) *mcp.CallToolResult {
	content := []mcp.Content{
		&mcp.TextContent{Text: res.Source},
	}
	if a := res.Artifact; a != nil {
		if a.Format.IsVector() {
			content = append(content, &mcp.TextContent{Text: a.Text()})
		} else {
			content = append(content, &mcp.ImageContent{Data: a.Data, MIMEType: a.Format.MIMEType()})
		}
	}
	return &mcp.CallToolResult{Content: content}
}

// NewListCategoriesHandler lists categories as "key: label" lines.
func NewListCategoriesHandler() mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		lines := make([]string, 0, len(prompt.Categories()))
		for _, c := range prompt.Categories() {
			lines = append(lines, fmt.Sprintf("%s: %s", c.Key(), c))
		}
		return TextResult(strings.Join(lines, "\n")), nil, nil
	}
}

// NewTranscriptHandler returns the session's turns as a JSON array.
func NewTranscriptHandler(deps *Dependencies) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		data, err := json.Marshal(deps.Session.All())
		if err != nil {
			return ErrorResult("encode transcript: "+err.Error(), "retry get_transcript"), nil, nil
		}
		return TextResult(string(data)), nil, nil
	}
}
