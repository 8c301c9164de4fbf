// Package main provides the websocket chat server for umlchat.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/umlchat/internal/config"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
	"github.com/raphaelgruber/umlchat/internal/web"
)

func main() {
	// Parse flags
	port := flag.String("port", "", "listen port (overrides UMLCHAT_SERVER_PORT)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.ServerPort = *port
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting umlchat-server",
		"port", cfg.ServerPort,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"renderer", cfg.Renderer,
		"format", cfg.Format,
	)

	collector := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	completer, err := llm.NewCompleter(ctx, cfg, collector)
	cancel()
	if err != nil {
		logger.Error("failed to create completer", "error", err)
		os.Exit(1)
	}

	srv, err := web.New(web.Config{
		Completer: completer,
		Sanitizer: sanitize.Sanitizer{StripBraces: cfg.StripBraces},
		NewRenderer: func(dir string) (render.Renderer, error) {
			sessionCfg := cfg
			sessionCfg.WorkDir = dir
			return render.New(sessionCfg, logger, collector)
		},
		WorkDir: cfg.WorkDir,
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("chat endpoint available", "url", fmt.Sprintf("ws://localhost:%s/ws", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...", "active_sessions", srv.ActiveSessions())

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
