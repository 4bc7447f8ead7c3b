package chat

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/engine"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// stubRuntime echoes the prompt unless scripted with explicit tokens or a
// failure. It tracks concurrent generations so gate serialization is
// observable.
type stubRuntime struct {
	tokens []string
	genErr error
	delay  time.Duration

	active    int32
	maxActive int32
}

func (r *stubRuntime) New(cfg types.ModelConfig) (engine.Generator, error) {
	return &stubEngine{r: r}, nil
}

type stubEngine struct{ r *stubRuntime }

func (e *stubEngine) Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error) {
	n := atomic.AddInt32(&e.r.active, 1)
	defer atomic.AddInt32(&e.r.active, -1)
	for {
		cur := atomic.LoadInt32(&e.r.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(&e.r.maxActive, cur, n) {
			break
		}
	}
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
	if e.r.genErr != nil {
		return "", e.r.genErr
	}
	return b.String(), nil
}

func (e *stubEngine) Close() error { return nil }

// testStack wires a full core: temp-file store, engine manager over a stub
// runtime with a loaded engine, global gate, and a session manager.
type testStack struct {
	runtime *stubRuntime
	engines *engine.Manager
	gate    *engine.Gate
	store   *store.Store
	mgr     *Manager
}

func newTestStack(t *testing.T, rt *stubRuntime) *testStack {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engines := engine.NewManager(engine.ManagerConfig{Runtime: rt, Logger: zerolog.Nop()})
	if _, err := engines.Load(types.ModelConfig{Name: "stub", ModelPath: "/dev/null"}); err != nil {
		t.Fatalf("load engine: %v", err)
	}
	gate := engine.NewGate(0)
	return &testStack{
		runtime: rt,
		engines: engines,
		gate:    gate,
		store:   st,
		mgr:     NewManager(st, engines, gate, zerolog.Nop()),
	}
}
