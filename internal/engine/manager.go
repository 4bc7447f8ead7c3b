package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatd/pkg/types"
)

// State represents the lifecycle state of the manager.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
)

// ManagerConfig bundles Manager dependencies and options.
type ManagerConfig struct {
	// Runtime constructs engines from configs. Required.
	Runtime Runtime
	// GenerateTimeout is the upper bound on one generation call.
	// Zero disables the bound.
	GenerateTimeout time.Duration
	Logger          zerolog.Logger
}

// Manager owns the single loaded engine. All lifecycle transitions go
// through it; callers never construct or close a Generator themselves.
type Manager struct {
	runtime    Runtime
	genTimeout time.Duration
	log        zerolog.Logger

	// loadMu serializes whole load/unload operations so that no two
	// engines can coexist even transiently. mu guards the fields below
	// and is never held across runtime calls.
	loadMu sync.Mutex
	mu     sync.Mutex
	state  State
	cfg    types.ModelConfig
	gen    Generator

	// inflight counts generation calls running against gen. Teardown
	// waits for it to drain before closing the engine, so Close never
	// runs under an active Generate.
	inflight sync.WaitGroup

	loadsTotal   uint64
	unloadsTotal uint64
}

// NewManager returns an unloaded manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		runtime:    cfg.Runtime,
		genTimeout: cfg.GenerateTimeout,
		log:        cfg.Logger,
		state:      StateUnloaded,
	}
}

// Load makes cfg the active engine. If an engine with a structurally equal
// config is already loaded it is returned unchanged; otherwise the current
// engine is unloaded first and a new one is constructed. A construction
// failure leaves the manager unloaded.
func (m *Manager) Load(cfg types.ModelConfig) (Generator, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.Lock()
	if m.gen != nil && m.cfg.Equal(cfg) {
		gen := m.gen
		m.mu.Unlock()
		m.log.Debug().Str("model", cfg.Name).Msg("engine load skipped, config unchanged")
		return gen, nil
	}
	m.mu.Unlock()

	m.unloadCurrent()

	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()
	m.log.Info().Str("model", cfg.Name).Str("path", cfg.ModelPath).Msg("engine loading")

	gen, err := m.runtime.New(cfg)
	if err != nil {
		m.mu.Lock()
		m.state = StateUnloaded
		m.mu.Unlock()
		m.log.Error().Err(err).Str("model", cfg.Name).Msg("engine load failed")
		return nil, ErrLoadFailed(err)
	}

	m.mu.Lock()
	m.gen = gen
	m.cfg = cfg
	m.state = StateReady
	m.loadsTotal++
	engineLoadsTotal.Inc()
	m.mu.Unlock()
	m.log.Info().Str("model", cfg.Name).Msg("engine ready")
	return gen, nil
}

// Unload releases the current engine if one is loaded. It never returns an
// error: cleanup failures are logged and swallowed so shutdown paths are
// never blocked.
func (m *Manager) Unload() {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.unloadCurrent()
}

// unloadCurrent requires loadMu to be held.
func (m *Manager) unloadCurrent() {
	m.mu.Lock()
	gen := m.gen
	name := m.cfg.Name
	m.gen = nil
	m.cfg = types.ModelConfig{}
	m.state = StateUnloaded
	if gen != nil {
		m.unloadsTotal++
		engineUnloadsTotal.Inc()
	}
	m.mu.Unlock()

	if gen == nil {
		return
	}
	// Drain: a generation that grabbed this engine before it was
	// detached must finish before the engine is freed.
	m.inflight.Wait()
	if err := gen.Close(); err != nil {
		m.log.Warn().Err(err).Str("model", name).Msg("engine cleanup error ignored")
	}
	m.log.Info().Str("model", name).Msg("engine unloaded")
}

// Generate runs one generation call against the loaded engine. The caller
// must hold the inference gate. On an engine failure the manager unloads
// the engine before surfacing the error; a context cancellation or
// deadline is propagated as-is and keeps the engine loaded.
func (m *Manager) Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error) {
	// The in-flight count is taken under mu, in the same critical
	// section that reads gen: once unloadCurrent has detached the
	// engine, no new generation can attach to it, so its drain wait
	// cannot race a late Add.
	m.mu.Lock()
	gen := m.gen
	if gen != nil {
		m.inflight.Add(1)
	}
	m.mu.Unlock()
	if gen == nil {
		return "", ErrNotLoaded()
	}

	if m.genTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.genTimeout)
		defer cancel()
	}

	content, err := gen.Generate(ctx, prompt, history, onToken)
	m.inflight.Done()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.log.Error().Err(err).Msg("engine failed mid-generation, unloading")
		// Only drop the engine if it is still the one that failed; a
		// concurrent swap must not be torn down.
		m.loadMu.Lock()
		m.mu.Lock()
		same := m.gen == gen
		m.mu.Unlock()
		if same {
			m.unloadCurrent()
		}
		m.loadMu.Unlock()
		return "", ErrInference(err)
	}
	return content, nil
}

// CurrentConfig returns the active config, if any.
func (m *Manager) CurrentConfig() (types.ModelConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, m.gen != nil
}

// CurrentEngine returns the active engine handle, if any.
func (m *Manager) CurrentEngine() (Generator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, m.gen != nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Counters returns total loads and unloads since startup.
func (m *Manager) Counters() (loads, unloads uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadsTotal, m.unloadsTotal
}
