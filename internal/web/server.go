// Package web serves the diagram chat over HTTP and websockets.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/umlchat/internal/conversation"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/pipeline"
	"github.com/raphaelgruber/umlchat/internal/prompt"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
)

// SessionsDir is the subdirectory of the work dir holding per-connection
// scratch directories.
const SessionsDir = "sessions"

// maxMessageSize caps a single client message.
const maxMessageSize = 64 << 10

// RendererFactory creates a renderer that owns dir.
type RendererFactory func(dir string) (render.Renderer, error)

// Config holds the server dependencies.
type Config struct {
	Completer   llm.Completer
	Sanitizer   sanitize.Sanitizer
	NewRenderer RendererFactory
	WorkDir     string
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// Server hands every websocket connection its own session and scratch
// directory.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Completer == nil {
		return nil, errors.New("completer required")
	}
	if cfg.NewRenderer == nil {
		return nil, errors.New("renderer factory required")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
		},
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	return router
}

// ActiveSessions returns the number of open websocket connections.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cfg.Metrics.Snapshot())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories := make([]CategoryInfo, 0, len(prompt.Categories()))
	for _, c := range prompt.Categories() {
		categories = append(categories, CategoryInfo{Key: c.Key(), Label: c.String()})
	}
	writeJSON(w, categories)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	session := conversation.NewSession()
	logger := s.cfg.Logger.With("session", session.ID)

	dir := filepath.Join(s.cfg.WorkDir, SessionsDir, session.ID)
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove session dir", "dir", dir, "error", err)
		}
	}()

	renderer, err := s.cfg.NewRenderer(dir)
	if err != nil {
		logger.Error("failed to create renderer", "error", err)
		_ = conn.WriteJSON(Reply{Session: session.ID, State: pipeline.Failed.String(), Error: err.Error()})
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)
	logger.Info("session opened", "remote", r.RemoteAddr)
	defer logger.Info("session closed", "turns", session.Len())

	s.serve(r.Context(), conn, session, renderer, logger)
}

// serve processes one message at a time until the client disconnects.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, session *conversation.Session, renderer render.Renderer, logger *slog.Logger) {
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var syntaxErr *json.SyntaxError
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
					_ = conn.WriteJSON(Reply{Session: session.ID, State: pipeline.Failed.String(), Error: "invalid message: " + err.Error()})
					continue
				}
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		category := prompt.Sequence
		if req.Category != "" {
			c, err := prompt.ParseCategory(req.Category)
			if err != nil {
				if writeErr := conn.WriteJSON(Reply{Session: session.ID, State: pipeline.Failed.String(), Error: err.Error()}); writeErr != nil {
					return
				}
				continue
			}
			category = c
		}

		var writeErr error
		p := &pipeline.Pipeline{
			Completer: s.cfg.Completer,
			Sanitizer: s.cfg.Sanitizer,
			Renderer:  renderer,
			Logger:    logger,
			Metrics:   s.cfg.Metrics,
			Observer: func(state pipeline.State) {
				if state.Terminal() || writeErr != nil {
					return
				}
				writeErr = conn.WriteJSON(Reply{Session: session.ID, State: state.String()})
			},
		}

		res := p.Run(ctx, session, req.Text, category)
		if writeErr != nil {
			logger.Debug("client went away mid-turn", "error", writeErr)
			return
		}

		reply := Reply{
			Session: session.ID,
			State:   res.State.String(),
			Source:  res.Source,
		}
		if res.Artifact != nil {
			reply.Format = string(res.Artifact.Format)
			reply.Artifact = res.Artifact.Data
		}
		if last, ok := session.Last(); ok && res.Err != nil {
			reply.Error = last.Content
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug("failed to write reply", "error", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Time{})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
