package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/umlchat/internal/llm"
	"github.com/raphaelgruber/umlchat/internal/metrics"
	"github.com/raphaelgruber/umlchat/internal/render"
	"github.com/raphaelgruber/umlchat/internal/sanitize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diagram = "@startuml\nAlice -> Bob: hello\n@enduml"

type stubCompleter struct {
	mu       sync.Mutex
	response string
	err      error
}

func (s *stubCompleter) Complete(_ context.Context, instruction string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response, s.err
}

func (s *stubCompleter) Model() string { return "stub" }

// dirRenderer writes the source into its directory so tests can observe
// the scratch dir lifecycle.
type dirRenderer struct {
	dir string
	err error
}

func (r *dirRenderer) Render(_ context.Context, source string) (*render.Artifact, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := os.WriteFile(filepath.Join(r.dir, render.SourceFile), []byte(source), 0o644); err != nil {
		return nil, err
	}
	return &render.Artifact{Format: render.FormatSVG, Data: []byte("<svg>ok</svg>")}, nil
}

func (r *dirRenderer) Format() render.Format { return render.FormatSVG }

type harness struct {
	server  *Server
	http    *httptest.Server
	workDir string

	mu   sync.Mutex
	dirs []string
}

func newHarness(t *testing.T, completer llm.Completer, renderErr error) *harness {
	t.Helper()
	h := &harness{workDir: t.TempDir()}

	srv, err := New(Config{
		Completer: completer,
		Sanitizer: sanitize.Default,
		NewRenderer: func(dir string) (render.Renderer, error) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			h.mu.Lock()
			h.dirs = append(h.dirs, dir)
			h.mu.Unlock()
			return &dirRenderer{dir: dir, err: renderErr}, nil
		},
		WorkDir: h.workDir,
		Metrics: metrics.NewCollector(),
	})
	require.NoError(t, err)

	h.server = srv
	h.http = httptest.NewServer(srv.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

// readTurn reads replies until a terminal state.
func readTurn(t *testing.T, conn *websocket.Conn) (states []string, final Reply) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var reply Reply
		require.NoError(t, conn.ReadJSON(&reply))
		states = append(states, reply.State)
		if reply.State == "done" || reply.State == "failed" {
			return states, reply
		}
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, &stubCompleter{response: diagram}, nil)

	resp, err := http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCategories(t *testing.T) {
	h := newHarness(t, &stubCompleter{response: diagram}, nil)

	resp, err := http.Get(h.http.URL + "/categories")
	require.NoError(t, err)
	defer resp.Body.Close()

	var categories []CategoryInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&categories))
	require.Len(t, categories, 9)
	assert.Equal(t, CategoryInfo{Key: "sequence", Label: "Sequence diagram"}, categories[0])
}

func TestWebsocketTurn(t *testing.T) {
	h := newHarness(t, &stubCompleter{response: diagram}, nil)
	conn := h.dial(t)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Text: "Alice greets Bob", Category: "sequence"}))
	states, final := readTurn(t, conn)

	assert.Equal(t, []string{"prompting", "completing", "sanitizing", "rendering", "done"}, states)
	assert.Equal(t, diagram, final.Source)
	assert.Equal(t, "svg", final.Format)
	assert.Equal(t, "<svg>ok</svg>", string(final.Artifact))
	assert.Empty(t, final.Error)
	assert.NotEmpty(t, final.Session)

	resp, err := http.Get(h.http.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(1), snap.Turn.Count)
}

func TestWebsocketCompletionFailure(t *testing.T) {
	completer := &stubCompleter{err: errors.New("backend down")}
	h := newHarness(t, completer, nil)
	conn := h.dial(t)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Text: "x"}))
	_, final := readTurn(t, conn)

	assert.Equal(t, "failed", final.State)
	assert.Equal(t, "Error: backend down", final.Error)

	// The session stays usable.
	completer.mu.Lock()
	completer.err = nil
	completer.response = diagram
	completer.mu.Unlock()

	require.NoError(t, conn.WriteJSON(Request{Text: "y"}))
	_, final = readTurn(t, conn)
	assert.Equal(t, "done", final.State)
}

func TestWebsocketRenderFailure(t *testing.T) {
	h := newHarness(t, &stubCompleter{response: diagram}, &render.RenderError{Stderr: "syntax error at line 2"})
	conn := h.dial(t)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Text: "x"}))
	_, final := readTurn(t, conn)

	assert.Equal(t, "failed", final.State)
	assert.Equal(t, diagram, final.Source)
	assert.Equal(t, "PlantUML Error:\nsyntax error at line 2", final.Error)
}

func TestWebsocketBadInput(t *testing.T) {
	h := newHarness(t, &stubCompleter{response: diagram}, nil)
	conn := h.dial(t)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Text: "x", Category: "venn"}))
	_, final := readTurn(t, conn)
	assert.Equal(t, "failed", final.State)
	assert.Contains(t, final.Error, "unknown diagram category")

	for _, raw := range []string{"not json", `{"text":5}`, `{"text":"x","category":["class"]}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		_, final = readTurn(t, conn)
		assert.Equal(t, "failed", final.State, raw)
		assert.Contains(t, final.Error, "invalid message", raw)
	}

	// The connection is still usable afterwards.
	require.NoError(t, conn.WriteJSON(Request{Text: "Alice greets Bob"}))
	_, final = readTurn(t, conn)
	assert.Equal(t, "done", final.State)
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, &stubCompleter{response: diagram}, nil)

	first := h.dial(t)
	second := h.dial(t)

	require.NoError(t, first.WriteJSON(Request{Text: "a"}))
	_, r1 := readTurn(t, first)
	require.NoError(t, second.WriteJSON(Request{Text: "b"}))
	_, r2 := readTurn(t, second)

	assert.NotEqual(t, r1.Session, r2.Session)

	h.mu.Lock()
	dirs := append([]string(nil), h.dirs...)
	h.mu.Unlock()
	require.Len(t, dirs, 2)
	assert.NotEqual(t, dirs[0], dirs[1])
	for _, dir := range dirs {
		assert.Equal(t, filepath.Join(h.workDir, SessionsDir), filepath.Dir(dir))
		assert.FileExists(t, filepath.Join(dir, render.SourceFile))
	}
	assert.Equal(t, int64(2), h.server.ActiveSessions())

	require.NoError(t, first.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	first.Close()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dirs[0])
		return os.IsNotExist(err)
	}, 2*time.Second, 20*time.Millisecond, "scratch dir should be removed on disconnect")
	assert.DirExists(t, dirs[1])

	second.Close()
	assert.Eventually(t, func() bool {
		return h.server.ActiveSessions() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Completer: &stubCompleter{}})
	assert.Error(t, err)
}
