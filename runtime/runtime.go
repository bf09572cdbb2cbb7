package runtime

import (
	"context"

	"github.com/wippyai/iota-runtime/bundle"
	"github.com/wippyai/iota-runtime/engine"
	"github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/flow"
)

// Runtime owns one engine and the host-side import bindings shared by its
// instances.
type Runtime struct {
	engine  *engine.Engine
	imports map[opKey]flow.Action
}

// Options configures runtime creation.
type Options struct {
	// MemoryLimitPages caps guest linear memory, in 64KB pages. 0 means the
	// engine default.
	MemoryLimitPages uint32
}

type opKey struct {
	namespace string
	name      string
}

// New creates a runtime with default options.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithOptions(ctx, nil)
}

// NewWithOptions creates a runtime with custom options.
func NewWithOptions(ctx context.Context, opts *Options) (*Runtime, error) {
	var engCfg *engine.Config
	if opts != nil && opts.MemoryLimitPages > 0 {
		engCfg = &engine.Config{MemoryLimitPages: opts.MemoryLimitPages}
	}
	eng, err := engine.NewEngineWithConfig(ctx, engCfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInstantiation, err, "create engine")
	}
	return &Runtime{
		engine:  eng,
		imports: make(map[opKey]flow.Action),
	}, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// RegisterImport binds an action to an operation the guest imports from the
// host. Must be called before instantiating modules that call it. The
// action's shape must match the operation's declared shape; the mismatch
// surfaces as a rejection at call time.
func (r *Runtime) RegisterImport(namespace, name string, action flow.Action) {
	r.imports[opKey{namespace, name}] = action
}

// LoadBundle compiles a validated bundle's module.
func (r *Runtime) LoadBundle(ctx context.Context, b *bundle.Bundle) (*Module, error) {
	mod, err := r.LoadModule(ctx, b.Module)
	if err != nil {
		return nil, err
	}
	mod.bundle = b
	return mod, nil
}

// LoadModule compiles raw guest module bytes.
func (r *Runtime) LoadModule(ctx context.Context, wasm []byte) (*Module, error) {
	engMod, err := r.engine.LoadModule(ctx, wasm)
	if err != nil {
		return nil, err
	}
	return &Module{runtime: r, engMod: engMod}, nil
}

// Module is a compiled guest module, instantiable many times.
type Module struct {
	runtime *Runtime
	engMod  *engine.Module
	bundle  *bundle.Bundle
}

// Bundle returns the bundle this module was loaded from, or nil for raw
// modules.
func (m *Module) Bundle() *bundle.Bundle {
	return m.bundle
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.engMod.Close(ctx)
}
