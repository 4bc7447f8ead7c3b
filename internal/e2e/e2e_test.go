package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/chat"
	"chatd/internal/engine"
	"chatd/internal/httpapi"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// slowRuntime emits one token per delay tick; used to hold the gate open
// long enough for concurrent requests to collide.
type slowRuntime struct {
	tokens []string
	delay  time.Duration
}

func (r *slowRuntime) New(cfg types.ModelConfig) (engine.Generator, error) {
	return &slowEngine{r: r}, nil
}

type slowEngine struct{ r *slowRuntime }

func (e *slowEngine) Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error) {
	toks := e.r.tokens
	if len(toks) == 0 {
		toks = []string{"Echo: " + prompt}
	}
	var b strings.Builder
	for _, tok := range toks {
		if e.r.delay > 0 {
			select {
			case <-time.After(e.r.delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
		b.WriteString(tok)
	}
	return b.String(), nil
}

func (e *slowEngine) Close() error { return nil }

func newServer(t *testing.T, rt engine.Runtime, gateMaxWait time.Duration) *httptest.Server {
	t.Helper()
	log := zerolog.New(io.Discard)
	st, err := store.Open(filepath.Join(t.TempDir(), "chatd.db"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engines := engine.NewManager(engine.ManagerConfig{Runtime: rt, Logger: log})
	if _, err := engines.Load(types.ModelConfig{Name: "stub", ModelPath: "stub.gguf"}); err != nil {
		t.Fatalf("load engine: %v", err)
	}
	sessions := chat.NewManager(st, engines, engine.NewGate(gateMaxWait), log)
	mux := httpapi.NewMux(&httpapi.App{
		Sessions:  sessions,
		Engines:   engines,
		Users:     st,
		StartedAt: time.Now(),
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func createSession(t *testing.T, base, userID string) string {
	t.Helper()
	resp, body := postJSON(t, base+"/api/chat/sessions", `{"user_id":"`+userID+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session: %d %s", resp.StatusCode, string(body))
	}
	var sr types.SessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		t.Fatalf("json: %v", err)
	}
	return sr.SessionID
}

// TestE2E_Backpressure429 verifies that requests which cannot take the
// inference gate within its wait budget are rejected with 429.
func TestE2E_Backpressure429(t *testing.T) {
	srv := newServer(t, &slowRuntime{tokens: []string{"a", "b", "c"}, delay: 40 * time.Millisecond}, 5*time.Millisecond)

	// Separate sessions so the collision happens at the gate, not at the
	// per-session queue.
	ids := []string{
		createSession(t, srv.URL, "u1"),
		createSession(t, srv.URL, "u1"),
		createSession(t, srv.URL, "u1"),
	}

	var wg sync.WaitGroup
	codes := make(chan int, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			resp, _ := postJSON(t, srv.URL+"/api/chat/sessions/"+id+"/messages", `{"content":"hello"}`)
			codes <- resp.StatusCode
		}(id)
	}
	wg.Wait()
	close(codes)

	var ok, busy int
	for c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			busy++
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	if ok == 0 || busy == 0 {
		t.Fatalf("expected a mix of 200 and 429, got ok=%d busy=%d", ok, busy)
	}
}

// TestE2E_ConversationFlow drives a whole conversation through the HTTP
// surface: user, session, sync exchange, streamed exchange, history readback.
func TestE2E_ConversationFlow(t *testing.T) {
	srv := newServer(t, &slowRuntime{}, 0)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/users", nil)
	req.Header.Set("X-User-ID", "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create user status=%d", resp.StatusCode)
	}

	id := createSession(t, srv.URL, "alice")

	resp, body := postJSON(t, srv.URL+"/api/chat/sessions/"+id+"/messages", `{"content":"first"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync message: %d %s", resp.StatusCode, string(body))
	}
	var mr types.MessageResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if mr.Message.Content != "Echo: first" {
		t.Fatalf("reply=%q", mr.Message.Content)
	}

	resp, body = postJSON(t, srv.URL+"/api/chat/sessions/"+id+"/messages/stream", `{"content":"second"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream message: %d %s", resp.StatusCode, string(body))
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	var end types.StreamEnd
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &end); err != nil {
		t.Fatalf("sentinel: %v", err)
	}
	if !end.Done || end.Content != "Echo: second" {
		t.Fatalf("unexpected sentinel: %+v", end)
	}

	getResp, err := http.Get(srv.URL + "/api/chat/sessions/" + id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	b, _ := io.ReadAll(getResp.Body)
	_ = getResp.Body.Close()
	var sr types.SessionResponse
	if err := json.Unmarshal(b, &sr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(sr.Messages) != 4 {
		t.Fatalf("history len=%d", len(sr.Messages))
	}
	want := []string{"first", "Echo: first", "second", "Echo: second"}
	for i, m := range sr.Messages {
		if m.Content != want[i] {
			t.Fatalf("messages[%d]=%q want %q", i, m.Content, want[i])
		}
	}
}
