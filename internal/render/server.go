package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/umlchat/internal/metrics"
)

// maxArtifactSize caps how much of a server response is read.
const maxArtifactSize = 32 << 20

// ServerRenderer renders through a PlantUML server by POSTing the source
// to /svg or /png. Nothing is written to disk.
type ServerRenderer struct {
	baseURL    string
	format     Format
	httpClient *http.Client
	metrics    *metrics.Collector
}

// Compile-time check that ServerRenderer implements Renderer.
var _ Renderer = (*ServerRenderer)(nil)

// NewServerRenderer creates a renderer for the server at baseURL.
// A nil httpClient uses one with a one-minute timeout.
func NewServerRenderer(baseURL string, format Format, httpClient *http.Client, mc *metrics.Collector) (*ServerRenderer, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if baseURL == "" {
		return nil, fmt.Errorf("plantuml server URL required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}
	return &ServerRenderer{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		format:     format,
		httpClient: httpClient,
		metrics:    mc,
	}, nil
}

// Format returns the output format.
func (r *ServerRenderer) Format() Format {
	return r.format
}

// Render posts source to the server. A non-2xx answer becomes a
// RenderError whose Stderr is the response body.
func (r *ServerRenderer) Render(ctx context.Context, source string) (*Artifact, error) {
	start := time.Now()
	artifact, err := r.render(ctx, source)
	if err != nil {
		r.metrics.RecordError(metrics.OpRender)
		return nil, err
	}
	r.metrics.RecordTiming(metrics.OpRender, time.Since(start))
	return artifact, nil
}

func (r *ServerRenderer) render(ctx context.Context, source string) (*Artifact, error) {
	url := r.baseURL + "/" + string(r.format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(source))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &RenderError{ExitCode: -1, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := resp.Header.Get("X-PlantUML-Diagram-Error")
		if detail == "" {
			detail = string(body)
			if r.format == FormatPNG || strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
				detail = resp.Status
			}
		}
		return nil, &RenderError{ExitCode: resp.StatusCode, Stderr: detail}
	}
	if len(body) == 0 {
		return nil, &RenderError{ExitCode: resp.StatusCode, Err: ErrArtifactMissing}
	}

	return &Artifact{Format: r.format, Data: body}, nil
}
