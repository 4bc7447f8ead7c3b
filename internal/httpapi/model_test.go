package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"chatd/pkg/types"
)

func TestGetModelNoneLoaded404(t *testing.T) {
	h, _ := newTestApp(t, &stubRuntime{}, false, true)
	w := doJSON(t, h, http.MethodGet, "/api/llm", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSetModelLoadsAndPersists(t *testing.T) {
	h, app := newTestApp(t, &stubRuntime{}, false, true)
	body := `{"name":"tiny","model_path":"tiny.gguf","max_tokens":64,"temperature":0.7,"do_sample":true}`
	w := doJSON(t, h, http.MethodPut, "/api/llm", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	cfg, ok := app.Engines.CurrentConfig()
	if !ok || cfg.Name != "tiny" {
		t.Fatalf("expected engine loaded, got %+v ok=%v", cfg, ok)
	}

	w = doJSON(t, h, http.MethodGet, "/api/llm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}
	var got types.ModelConfig
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Name != "tiny" || got.MaxTokens != 64 {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestSetModelRequiresNameAndPath(t *testing.T) {
	h, _ := newTestApp(t, &stubRuntime{}, false, true)
	w := doJSON(t, h, http.MethodPut, "/api/llm", `{"name":"","model_path":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRemoveModelUnloads(t *testing.T) {
	h, app := newTestApp(t, &stubRuntime{}, true, true)
	w := doJSON(t, h, http.MethodDelete, "/api/llm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if _, ok := app.Engines.CurrentConfig(); ok {
		t.Fatal("expected engine unloaded")
	}
}

func TestListAvailableModelFiles(t *testing.T) {
	h, app := newTestApp(t, &stubRuntime{}, false, true)
	dir := t.TempDir()
	for _, n := range []string{"a.gguf", "b.gguf", "ignore.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(""), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	app.ModelsDir = dir

	w := doJSON(t, h, http.MethodGet, "/api/llm/available", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp types.ModelFileListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("files=%d", len(resp.Files))
	}
}

func TestModelManagementDisabledInProduction(t *testing.T) {
	h, _ := newTestApp(t, &stubRuntime{}, true, false)
	w := doJSON(t, h, http.MethodPut, "/api/llm", `{"name":"x","model_path":"x.gguf"}`)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", w.Code)
	}
	// The read-only endpoint stays available.
	w = doJSON(t, h, http.MethodGet, "/api/llm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}
}
