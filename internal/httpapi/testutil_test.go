package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/chat"
	"chatd/internal/engine"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// stubRuntime echoes the prompt unless scripted with tokens or a failure.
type stubRuntime struct {
	tokens []string
	genErr error
	newErr error
}

func (r *stubRuntime) New(cfg types.ModelConfig) (engine.Generator, error) {
	if r.newErr != nil {
		return nil, r.newErr
	}
	return &stubEngine{r: r}, nil
}

type stubEngine struct{ r *stubRuntime }

func (e *stubEngine) Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error) {
	if e.r.genErr != nil {
		return "", e.r.genErr
	}
	toks := e.r.tokens
	if len(toks) == 0 {
		toks = []string{"Echo: " + prompt}
	}
	var b strings.Builder
	for _, tok := range toks {
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
		b.WriteString(tok)
	}
	return b.String(), nil
}

func (e *stubEngine) Close() error { return nil }

// newTestApp wires a real store, engine manager, gate and session manager
// over the stub runtime, returning the router and the app.
func newTestApp(t *testing.T, rt *stubRuntime, loaded, management bool) (http.Handler, *App) {
	t.Helper()
	log := zerolog.New(io.Discard)
	st, err := store.Open(filepath.Join(t.TempDir(), "chatd.db"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engines := engine.NewManager(engine.ManagerConfig{Runtime: rt, Logger: log})
	if loaded {
		if _, err := engines.Load(types.ModelConfig{Name: "stub", ModelPath: "stub.gguf"}); err != nil {
			t.Fatalf("load engine: %v", err)
		}
	}
	sessions := chat.NewManager(st, engines, engine.NewGate(0), log)
	app := &App{
		Sessions:   sessions,
		Engines:    engines,
		Users:      st,
		Management: management,
		StartedAt:  time.Now(),
	}
	return NewMux(app), app
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// mustCreateSession creates a session for userID and returns its id.
func mustCreateSession(t *testing.T, h http.Handler, userID string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/chat/sessions", `{"user_id":"`+userID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create session: status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return resp.SessionID
}
