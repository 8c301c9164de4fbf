// Package main provides the entry point for the umlchat MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/umlchat/internal/config"
	"github.com/raphaelgruber/umlchat/internal/conversation"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
	"github.com/raphaelgruber/umlchat/internal/server"
	"github.com/raphaelgruber/umlchat/internal/tools"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON). stdout carries
	// the protocol, so nothing else may write there.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("umlchat-mcp starting",
		"version", version,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"renderer", cfg.Renderer,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	collector := metrics.NewCollector()

	completer, err := llm.NewCompleter(ctx, cfg, collector)
	if err != nil {
		logger.Error("failed to create completer", "error", err)
		os.Exit(1)
	}

	renderer, err := render.New(cfg, logger, collector)
	if err != nil {
		logger.Error("failed to create renderer", "error", err)
		os.Exit(1)
	}

	// Create and setup server
	srv := server.New(version, logger)
	srv.Setup()

	session := conversation.NewSession()
	deps := &tools.Dependencies{
		Completer: completer,
		Sanitizer: sanitize.Sanitizer{StripBraces: cfg.StripBraces},
		Renderer:  renderer,
		Session:   session,
		Logger:    logger,
		Metrics:   collector,
	}
	tools.RegisterAll(srv.MCPServer(), deps)
	logger.Info("server ready, awaiting connections", "session", session.ID)

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
