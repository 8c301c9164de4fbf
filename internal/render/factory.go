package render

import (
	"log/slog"

	"github.com/raphaelgruber/umlchat/internal/config"
	"github.com/raphaelgruber/umlchat/internal/metrics"
)

// New builds the renderer selected by cfg.Renderer. The jar renderer uses
// cfg.WorkDir as its scratch directory.
func New(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) (Renderer, error) {
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	if cfg.Renderer == config.RendererServer {
		r, err := NewServerRenderer(cfg.PlantUMLServer, format, nil, mc)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	r, err := NewJarRenderer(JarConfig{
		Runtime: cfg.JavaCommand,
		Jar:     cfg.PlantUMLJar,
		WorkDir: cfg.WorkDir,
		Format:  format,
		Logger:  logger,
		Metrics: mc,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
