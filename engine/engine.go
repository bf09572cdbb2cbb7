package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/iota-runtime/errors"
)

// Engine wraps a wazero runtime. One engine can host many guest modules
// and instances; the iota host module is instantiated once per engine.
type Engine struct {
	runtime wazero.Runtime

	hostInitMu   sync.Mutex
	hostInitDone atomic.Bool

	sessionsMu sync.RWMutex
	sessions   map[api.Module]*Instance
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// NewEngine creates a new wazero-based engine
func NewEngine(ctx context.Context) (*Engine, error) {
	return NewEngineWithConfig(ctx, nil)
}

// NewEngineWithConfig creates a new engine with custom configuration
func NewEngineWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &Engine{
		runtime:  runtime,
		sessions: make(map[api.Module]*Instance),
	}, nil
}

// LoadModule compiles guest module bytes.
func (e *Engine) LoadModule(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "compile module")
	}
	return &Module{engine: e, compiled: compiled}, nil
}

// Close releases the engine and every module and instance it owns.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// initHostModule instantiates the iota host module singleton for this
// engine's runtime. Safe for concurrent calls from multiple modules
// sharing the same engine.
func (e *Engine) initHostModule(ctx context.Context) error {
	if e.hostInitDone.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostInitDone.Load() {
		return nil
	}

	if e.runtime.Module(HostModuleName) != nil {
		e.hostInitDone.Store(true)
		return nil
	}

	if err := instantiateHostModule(ctx, e); err != nil {
		if e.runtime.Module(HostModuleName) == nil {
			return errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "instantiate host module")
		}
	}

	e.hostInitDone.Store(true)
	return nil
}

// session resolves the instance owning a calling guest module.
func (e *Engine) session(mod api.Module) *Instance {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()
	return e.sessions[mod]
}

func (e *Engine) register(mod api.Module, inst *Instance) {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()
	e.sessions[mod] = inst
}

func (e *Engine) unregister(mod api.Module) {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()
	delete(e.sessions, mod)
}

// Module is a compiled guest module ready for instantiation.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
