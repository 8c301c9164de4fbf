package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/shlex"
	"github.com/raphaelgruber/umlchat/internal/metrics"
)

// Scratch file names inside the work directory.
const (
	SourceFile = "puml.txt"
	LockFile   = "puml.lock"
	stem       = "puml"
)

// staleExtensions are outputs a previous run may have left behind.
var staleExtensions = []string{"png", "svg", "xml"}

// JarConfig configures a JarRenderer.
type JarConfig struct {
	// Runtime is the command that runs the jar, e.g. "java" or
	// "java -Djava.awt.headless=true". It is split shell-style.
	Runtime string
	Jar     string
	WorkDir string
	Format  Format
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// JarRenderer renders by running `<runtime> -jar <jar> -t<format> puml.txt`
// in its work directory. One JarRenderer owns one scratch directory.
type JarRenderer struct {
	runtime []string
	jar     string
	dir     string
	format  Format
	lock    *flock.Flock
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Compile-time check that JarRenderer implements Renderer.
var _ Renderer = (*JarRenderer)(nil)

// NewJarRenderer validates cfg and creates the work directory.
func NewJarRenderer(cfg JarConfig) (*JarRenderer, error) {
	if cfg.Runtime == "" {
		cfg.Runtime = "java"
	}
	if cfg.Jar == "" {
		cfg.Jar = "plantuml.jar"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Format == "" {
		cfg.Format = FormatSVG
	}
	if _, err := ParseFormat(string(cfg.Format)); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	runtime, err := shlex.Split(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("parse runtime command: %w", err)
	}
	if len(runtime) == 0 {
		return nil, fmt.Errorf("parse runtime command: empty")
	}

	dir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	// A relative jar path is resolved against the caller's cwd, not the
	// work directory the subprocess runs in.
	jar := cfg.Jar
	if !filepath.IsAbs(jar) {
		if abs, err := filepath.Abs(jar); err == nil {
			jar = abs
		}
	}

	return &JarRenderer{
		runtime: runtime,
		jar:     jar,
		dir:     dir,
		format:  cfg.Format,
		lock:    flock.New(filepath.Join(dir, LockFile)),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Format returns the output format.
func (r *JarRenderer) Format() Format {
	return r.format
}

// Dir returns the scratch directory.
func (r *JarRenderer) Dir() string {
	return r.dir
}

// SourcePath returns the path of the scratch source file.
func (r *JarRenderer) SourcePath() string {
	return filepath.Join(r.dir, SourceFile)
}

// ArtifactPath returns where the renderer writes its output.
func (r *JarRenderer) ArtifactPath() string {
	return filepath.Join(r.dir, stem+"."+string(r.format))
}

// Render writes source to puml.txt, runs the renderer and reads back the
// artifact. Outputs of earlier runs are deleted first, and a failed run
// deletes whatever partial output it produced, so the artifact on disk
// always belongs to the last successful render.
func (r *JarRenderer) Render(ctx context.Context, source string) (*Artifact, error) {
	start := time.Now()
	artifact, err := r.render(ctx, source)
	if err != nil {
		r.metrics.RecordError(metrics.OpRender)
		return nil, err
	}
	r.metrics.RecordTiming(metrics.OpRender, time.Since(start))
	return artifact, nil
}

func (r *JarRenderer) render(ctx context.Context, source string) (artifact *Artifact, err error) {
	locked, err := r.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock work dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrWorkdirBusy, r.dir)
	}
	defer func() {
		if unlockErr := r.lock.Unlock(); unlockErr != nil {
			r.logger.Warn("failed to unlock work dir", "dir", r.dir, "error", unlockErr)
		}
	}()

	r.removeStale()
	defer func() {
		if err != nil {
			r.removeStale()
		}
	}()

	if err := writeSynced(r.SourcePath(), source); err != nil {
		return nil, err
	}

	args := append([]string{}, r.runtime[1:]...)
	args = append(args, "-jar", r.jar, "-t"+string(r.format), SourceFile)
	cmd := exec.CommandContext(ctx, r.runtime[0], args...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running renderer", "command", cmd.String(), "dir", r.dir)
	runErr := cmd.Run()
	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.logger.Info("renderer failed", "exit_code", exitCode, "stderr_len", stderr.Len())
		return nil, &RenderError{ExitCode: exitCode, Stderr: stderr.String(), Err: runErr}
	}

	data, readErr := os.ReadFile(r.ArtifactPath())
	if errors.Is(readErr, os.ErrNotExist) {
		return nil, &RenderError{Stderr: stderr.String(), Err: ErrArtifactMissing}
	}
	if readErr != nil {
		return nil, fmt.Errorf("read artifact: %w", readErr)
	}

	r.logger.Debug("renderer succeeded", "artifact", r.ArtifactPath(), "bytes", len(data), "stdout_len", stdout.Len())
	return &Artifact{Format: r.format, Data: data, Path: r.ArtifactPath()}, nil
}

// removeStale deletes every renderer output in the work directory.
func (r *JarRenderer) removeStale() {
	for _, ext := range staleExtensions {
		path := filepath.Join(r.dir, stem+"."+ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove stale artifact", "path", path, "error", err)
		}
	}
}

// writeSynced writes content to path and flushes it to stable storage
// before returning, so the renderer never reads a partial file.
func writeSynced(path, content string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write source file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync source file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close source file: %w", err)
	}
	return nil
}
