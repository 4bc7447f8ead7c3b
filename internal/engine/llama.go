//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"chatd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaRuntime constructs in-process llama.cpp engines.
type llamaRuntime struct {
	threads int
}

// NewLlamaRuntime returns the llama.cpp-backed runtime.
func NewLlamaRuntime(threads int) Runtime {
	return &llamaRuntime{threads: threads}
}

// llamaEngine owns one loaded model.
type llamaEngine struct {
	model   *llama.LLama
	threads int
	cfg     types.ModelConfig
}

func (r *llamaRuntime) New(cfg types.ModelConfig) (Generator, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(zn(cfg.ContextWindow, 4096)),
	}
	m, err := llama.New(cfg.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaEngine{model: m, threads: r.threads, cfg: cfg}, nil
}

func (e *llamaEngine) Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error) {
	if e.model == nil {
		return "", errors.New("llama model not initialized")
	}

	// Bridge token streaming to onToken and respect cancellation.
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return false
			}
		}
		return true
	})

	po := predictOptions(e.cfg, e.threads)
	text, err := e.model.Predict(BuildPrompt(history, prompt), po...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

// helpers
func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions maps a ModelConfig's decoding parameters to go-llama.cpp options.
func predictOptions(cfg types.ModelConfig, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(cfg.MaxTokens, 512)),
		llama.SetThreads(zn(threads, 1)),
	}
	if cfg.DoSample {
		po = append(po,
			llama.SetTemperature(zf(float32(cfg.Temperature), llama.DefaultOptions.Temperature)),
			llama.SetTopP(zf(float32(cfg.TopP), llama.DefaultOptions.TopP)),
			llama.SetTopK(zn(cfg.TopK, llama.DefaultOptions.TopK)),
		)
	} else {
		// Greedy decoding for deterministic output.
		po = append(po, llama.SetTemperature(0), llama.SetTopK(1))
	}
	return po
}
