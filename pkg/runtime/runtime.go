// Package runtime holds the dispatch engine and the program evaluator:
// an ordered registry of modules that resolves symbols, and the loop that
// runs parsed programs statement by statement against it.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"rigz/pkg/metrics"
	"rigz/pkg/module"
	"rigz/pkg/parser"
	"rigz/pkg/value"
)

// DefaultMaxForwardDepth bounds how many times a FunctionCall result is
// dispatched again for one statement.
const DefaultMaxForwardDepth = 64

type options struct {
	runArgs         RunArgs
	logger          *slog.Logger
	maxForwardDepth int
	parallelUnits   int
	metrics         *metrics.Dispatch
	wasmCacheDir    string
	factory         Factory
}

type Option func(*options)

// WithRunArgs sets the policy modules are initialized with. Run still takes
// its own RunArgs.
func WithRunArgs(args RunArgs) Option {
	return func(o *options) { o.runArgs = args }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMaxForwardDepth(n int) Option {
	return func(o *options) { o.maxForwardDepth = n }
}

// WithParallelUnits lets Run evaluate up to n programs at once.
func WithParallelUnits(n int) Option {
	return func(o *options) { o.parallelUnits = n }
}

func WithMetrics(m *metrics.Dispatch) Option {
	return func(o *options) { o.metrics = m }
}

// WithWasmCacheDir persists compiled wasm modules under dir.
func WithWasmCacheDir(dir string) Option {
	return func(o *options) { o.wasmCacheDir = dir }
}

// WithFactory replaces the backend factory.
func WithFactory(f Factory) Option {
	return func(o *options) { o.factory = f }
}

// Runtime is the module registry plus the programs to run. Modules are
// tried in registration order; the name index serves dotted calls.
type Runtime struct {
	modules  []module.Module
	byName   map[string]module.Module
	programs []parser.Program

	runArgs         RunArgs
	log             *slog.Logger
	metrics         *metrics.Dispatch
	maxForwardDepth int
	parallelUnits   int
	backends        *backends

	closeOnce sync.Once
	closeErr  error
}

// Initialize builds a module per definition, in order, and initializes
// it. The first initialization error closes everything built so far and
// aborts.
func Initialize(ctx context.Context, defs []module.Definition, programs []parser.Program, opts ...Option) (*Runtime, error) {
	o := options{
		logger:          slog.Default(),
		maxForwardDepth: DefaultMaxForwardDepth,
		parallelUnits:   1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelUnits < 1 {
		o.parallelUnits = 1
	}

	r := &Runtime{
		byName:          make(map[string]module.Module, len(defs)),
		programs:        programs,
		runArgs:         o.runArgs,
		log:             o.logger,
		metrics:         o.metrics,
		maxForwardDepth: o.maxForwardDepth,
		parallelUnits:   o.parallelUnits,
		backends:        &backends{log: o.logger, cacheDir: o.wasmCacheDir},
	}
	factory := o.factory
	if factory == nil {
		factory = r.backends.build
	}

	for _, def := range defs {
		def.Convention = module.ResolveConvention(def.Convention, r.log.With("module", def.Name))
		mod, err := factory(ctx, def)
		if err != nil {
			r.Close()
			return nil, &Diagnostic{Err: ErrModuleInit, Module: def.Name, Message: err.Error(), Cause: err}
		}

		name := mod.Name()
		r.log.Info("Initializing", "module", name, "kind", def.Kind)
		st := r.initialize(ctx, mod, module.InitArgs{
			IncludeNonePrior: o.runArgs.IncludeNonePrior,
			Config:           def.Config,
			Logger:           r.log,
		})
		switch {
		case st.IsNotFound():
			r.log.Info("No initialization method", "module", name)
		case st.IsErr():
			closeModule(mod)
			r.Close()
			return nil, &Diagnostic{Err: ErrModuleInit, Module: name, Message: st.Message()}
		}

		if _, ok := r.byName[name]; ok {
			r.log.Warn("Overwrote module", "module", name)
		}
		r.byName[name] = mod
		r.modules = append(r.modules, mod)
	}
	return r, nil
}

func (r *Runtime) initialize(ctx context.Context, mod module.Module, args module.InitArgs) (st module.Status[struct{}]) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("🔥 PANIC RECOVERED IN MODULE INITIALIZE",
				"panic", rec,
				"module", mod.Name(),
				"stack", string(debug.Stack()),
			)
			st = module.Errf[struct{}]("panic: %v", rec)
		}
	}()
	return mod.Initialize(ctx, args)
}

// Modules returns the registered module names in dispatch order.
func (r *Runtime) Modules() []string {
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.Name()
	}
	return names
}

// Module looks a module up by name. With duplicate names the last one
// registered wins.
func (r *Runtime) Module(name string) (module.Module, bool) {
	m, ok := r.byName[name]
	return m, ok
}

func (r *Runtime) Programs() []parser.Program { return r.programs }

// RunArgs returns the policy the runtime was initialized with.
func (r *Runtime) RunArgs() RunArgs { return r.runArgs }

// InvokeSymbol resolves name and calls it.
//
// A dotted name whose prefix is a registered module goes straight to that
// module with the remainder as the symbol; its outcome is final. Anything
// else walks the modules in registration order: NotFound moves on, Err
// stops the search, Ok returns. With RequireAliases names arrive already
// resolved, so dotted names are not split and always walk the chain.
func (r *Runtime) InvokeSymbol(ctx context.Context, name string, args []value.Value, def value.Definition, prior value.Value, ra RunArgs) (value.Value, error) {
	call := module.Call{Name: name, Args: args, Definition: def, Prior: prior}

	if i := strings.IndexByte(name, '.'); i > 0 && !ra.RequireAliases {
		if mod, ok := r.byName[name[:i]]; ok {
			call.Name = name[i+1:]
			st := r.call(ctx, mod, call)
			switch {
			case st.IsOk():
				return st.Value(), nil
			case st.IsErr():
				return value.None(), r.callFailed(mod, name, st)
			}
			return r.unresolved(name, ra)
		}
		r.log.Debug("Module not found, falling back to module chain", "module", name[:i], "symbol", name)
	}

	for _, mod := range r.modules {
		st := r.call(ctx, mod, call)
		switch {
		case st.IsNotFound():
			r.log.Debug("Not found", "module", mod.Name(), "symbol", name)
			continue
		case st.IsErr():
			return value.None(), r.callFailed(mod, name, st)
		}
		return st.Value(), nil
	}
	return r.unresolved(name, ra)
}

// call runs one module function. A panicking backend is turned into an
// Err status so one bad module cannot take the process down.
func (r *Runtime) call(ctx context.Context, mod module.Module, call module.Call) (st module.Status[value.Value]) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("🔥 PANIC RECOVERED IN MODULE",
				"panic", rec,
				"module", mod.Name(),
				"symbol", call.Name,
				"stack", string(debug.Stack()),
			)
			st = module.Errf[value.Value]("panic: %v", rec)
		}
		r.metrics.ObserveCall(mod.Name(), st.Code().String(), time.Since(start))
	}()
	return mod.FunctionCall(ctx, call)
}

func (r *Runtime) callFailed(mod module.Module, name string, st module.Status[value.Value]) error {
	return &Diagnostic{Err: ErrFunctionCall, Module: mod.Name(), Symbol: name, Message: st.Message()}
}

func (r *Runtime) unresolved(name string, ra RunArgs) (value.Value, error) {
	r.metrics.SymbolNotFound()
	switch {
	case ra.IgnoreSymbolNotFound:
		r.log.Debug("Ignoring unresolved symbol", "symbol", name)
		return value.None(), nil
	case ra.AllErrorsFatal:
		return value.None(), &Diagnostic{Err: ErrSymbolNotFound, Symbol: name}
	}
	r.log.Warn("Failed to find function", "symbol", name)
	return value.Errorf("symbol not found: %s", name), nil
}

// Close releases every module (last registered first) and the shared
// backend resources. It is safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		for i := len(r.modules) - 1; i >= 0; i-- {
			if err := closeModule(r.modules[i]); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", r.modules[i].Name(), err))
			}
		}
		if err := r.backends.close(context.Background()); err != nil {
			errs = append(errs, err)
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

func closeModule(m module.Module) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
