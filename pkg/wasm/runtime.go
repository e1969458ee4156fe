package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Runtime is the wazero engine shared by every wasm module of a rigz
// runtime. It owns the compilation cache, WASI and the `env` host module.
type Runtime struct {
	runtime wazero.Runtime
	log     *slog.Logger
	seq     atomic.Uint64

	mu      sync.Mutex
	modules map[string]api.Module
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	cacheDir string
	logger   *slog.Logger
}

// WithCacheDir persists compiled modules under dir between runs.
func WithCacheDir(dir string) RuntimeOption {
	return func(o *runtimeOptions) { o.cacheDir = dir }
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) { o.logger = l }
}

// NewRuntime creates a new WASM runtime
func NewRuntime(ctx context.Context, opts ...RuntimeOption) (*Runtime, error) {
	o := runtimeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	cache := wazero.NewCompilationCache()
	if o.cacheDir != "" {
		var err error
		if cache, err = wazero.NewCompilationCacheWithDir(o.cacheDir); err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", o.cacheDir, err)
		}
	}
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCompilationCache(cache))

	// Instantiate WASI for filesystem/env access
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	rt := &Runtime{
		runtime: r,
		log:     o.logger,
		modules: make(map[string]api.Module),
	}
	if err := NewHostFunctions(o.logger).Register(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return rt, nil
}

// LoadModule compiles and instantiates the wasm file at path. Instances
// get a unique name so two rigz modules may load the same file.
func (r *Runtime) LoadModule(ctx context.Context, name string, wasmPath string) (api.Module, error) {
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM file %s: %w", wasmPath, err)
	}
	return r.Instantiate(ctx, name, wasmBytes)
}

// Instantiate is LoadModule for an in-memory binary.
func (r *Runtime) Instantiate(ctx context.Context, name string, wasmBytes []byte) (api.Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WASM module %s: %w", name, err)
	}

	instance := fmt.Sprintf("%s#%d", name, r.seq.Add(1))
	cfg := wazero.NewModuleConfig().WithName(instance).WithStartFunctions("_initialize")
	mod, err := r.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate WASM module %s: %w", name, err)
	}

	r.mu.Lock()
	r.modules[instance] = mod
	r.mu.Unlock()
	r.log.Info("WASM module loaded", "name", name, "instance", instance)
	return mod, nil
}

// CallFunction calls an exported function of mod. A Go panic raised while
// the guest runs (a host function, the engine) comes back as an error.
func (r *Runtime) CallFunction(ctx context.Context, mod api.Module, functionName string, params ...uint64) (results []uint64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("PANIC in WASM execution",
				"module", mod.Name(),
				"function", functionName,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("WASM panic in %s.%s: %v", mod.Name(), functionName, rec)
		}
	}()

	fn := mod.ExportedFunction(functionName)
	if fn == nil {
		return nil, fmt.Errorf("function %s not found in module %s", functionName, mod.Name())
	}
	results, err = fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s.%s: %w", mod.Name(), functionName, err)
	}
	return results, nil
}

// ListModules returns the instance names currently loaded.
func (r *Runtime) ListModules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}

// UnloadModule closes one instance.
func (r *Runtime) UnloadModule(ctx context.Context, mod api.Module) error {
	r.mu.Lock()
	delete(r.modules, mod.Name())
	r.mu.Unlock()

	if err := mod.Close(ctx); err != nil {
		return fmt.Errorf("failed to close module %s: %w", mod.Name(), err)
	}
	return nil
}

// Close closes the runtime and all loaded modules
func (r *Runtime) Close(ctx context.Context) error {
	if err := r.runtime.Close(ctx); err != nil {
		return fmt.Errorf("failed to close WASM runtime: %w", err)
	}
	r.mu.Lock()
	r.modules = map[string]api.Module{}
	r.mu.Unlock()
	r.log.Info("WASM runtime closed")
	return nil
}
