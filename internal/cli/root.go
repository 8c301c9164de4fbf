// Package cli provides the command-line interface for umlchat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/umlchat/internal/config"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger
	cfg           config.Config
	logger        *slog.Logger
	closeLogger   func() error
	collector     = metrics.NewCollector()
	buildPipeline = newPipeline
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "umlchat",
	Short: "Describe a diagram, get PlantUML",
	Long: `umlchat turns plain-language descriptions into PlantUML diagrams.

Each turn sends your description to a language model, cleans up the
returned source and renders it with PlantUML. Use "chat" for a running
conversation or "generate" for a single diagram.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config for commands that need none
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "types" {
			return nil
		}

		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		// Keep stderr quiet so it doesn't fight the TUI or stdout output.
		logger, closeLogger = config.SetupQuietLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// newPipeline wires the completion backend and renderer from cfg.
func newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	completer, err := llm.NewCompleter(ctx, cfg, collector)
	if err != nil {
		return nil, fmt.Errorf("init completer: %w", err)
	}
	renderer, err := render.New(cfg, logger, collector)
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	logger.Debug("pipeline ready",
		"provider", cfg.Provider,
		"model", completer.Model(),
		"renderer", cfg.Renderer,
		"format", renderer.Format(),
	)

	return &pipeline.Pipeline{
		Completer: completer,
		Sanitizer: sanitize.Sanitizer{StripBraces: cfg.StripBraces},
		Renderer:  renderer,
		Logger:    logger,
		Metrics:   collector,
	}, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is cancelled on SIGINT by main.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	// Add subcommands
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}
