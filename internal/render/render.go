// Package render turns PlantUML source into an image via an external renderer.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrArtifactMissing means the renderer exited cleanly but wrote no image.
	ErrArtifactMissing = errors.New("rendered artifact missing")

	// ErrWorkdirBusy means another process holds the scratch directory lock.
	ErrWorkdirBusy = errors.New("render work directory is in use")

	// ErrUnsupportedFormat is returned for formats other than svg and png.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Format is the renderer output type.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

// ParseFormat accepts "svg" or "png" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSVG, FormatPNG:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// IsVector reports whether the format is text (SVG).
func (f Format) IsVector() bool {
	return f == FormatSVG
}

// MIMEType returns the content type of the format.
func (f Format) MIMEType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Artifact is the output of the most recent render.
type Artifact struct {
	Format Format
	Data   []byte
	// Path is where the artifact lives on disk; empty for renderers that
	// never touch the filesystem.
	Path string
}

// Text returns the artifact as a string; meaningful for SVG.
func (a *Artifact) Text() string {
	return string(a.Data)
}

// Renderer converts diagram source into an image.
type Renderer interface {
	Render(ctx context.Context, source string) (*Artifact, error)
	Format() Format
}

// RenderError carries the renderer's diagnostic output verbatim.
type RenderError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RenderError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	switch {
	case detail != "":
		return detail
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("renderer exited with status %d", e.ExitCode)
	}
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
