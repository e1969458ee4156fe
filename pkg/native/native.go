// Package native loads rigz modules from shared libraries through a C
// ABI. A library exports:
//
//	int32_t rigz_invoke(const uint8_t* req, size_t req_len, uint8_t** out, size_t* out_len);
//	void    rigz_free(uint8_t* ptr, size_t len);
//	int32_t rigz_initialize(const uint8_t* cfg, size_t cfg_len);   // optional
//
// req is a pkg/abi request frame lent for the duration of the call. On a
// zero return *out holds a response frame allocated by the library; the
// host decodes it and hands it back through rigz_free exactly once. A
// nonzero return means no response was produced.
//
// The entry points are resolved once, when the library is opened, into a
// table bound to that handle, so any number of libraries can be loaded
// side by side.
package native

import (
	"context"
	"log/slog"
	"sync"

	gojson "github.com/goccy/go-json"

	"rigz/pkg/abi"
	"rigz/pkg/module"
	"rigz/pkg/value"
)

// library is the resolved function table of one loaded library.
type library interface {
	Invoke(req []byte) (*abi.Owned, int32)
	// Initialize reports false when the library has no initializer.
	Initialize(cfg []byte) (int32, bool)
	Path() string
}

type Module struct {
	def  module.Definition
	opts module.AssembleOptions
	log  *slog.Logger
	open func(path string) (library, error)

	mu  sync.RWMutex
	lib library
}

var _ module.Module = (*Module)(nil)

func New(def module.Definition) *Module {
	return &Module{def: def, log: slog.Default(), open: openLibrary}
}

func (m *Module) Name() string { return m.def.Name }

func (m *Module) Root() string { return m.def.Root }

// Initialize opens the library and runs rigz_initialize with the module
// config as JSON. Libraries are never unloaded.
func (m *Module) Initialize(_ context.Context, args module.InitArgs) module.Status[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opts = module.AssembleOptions{IncludeNonePrior: args.IncludeNonePrior}
	m.log = args.Log().With("module", m.def.Name)

	path := m.def.Resolve(m.def.Library)
	lib, err := m.open(path)
	if err != nil {
		return module.Errf[struct{}]("failed to load library: %s - %s %v", m.def.Name, path, err)
	}
	m.lib = lib
	m.log.Info("Native library loaded", "path", path)

	cfg, err := gojson.Marshal(m.def.Config)
	if err != nil {
		return module.Errf[struct{}]("module %s: encode config: %v", m.def.Name, err)
	}
	code, ok := lib.Initialize(cfg)
	if !ok {
		return module.NotFound[struct{}]()
	}
	if code != 0 {
		return module.Errf[struct{}]("initialization failed: %s - code %d", m.def.Name, code)
	}
	return module.Ok(struct{}{})
}

// FunctionCall may run concurrently: libraries are expected to be
// reentrant, the host keeps no per-call state outside the arena.
func (m *Module) FunctionCall(_ context.Context, call module.Call) module.Status[value.Value] {
	m.mu.RLock()
	lib := m.lib
	m.mu.RUnlock()
	if lib == nil {
		return module.NotFound[value.Value]()
	}

	arena := abi.AcquireArena()
	defer abi.ReleaseArena(arena)
	req := arena.EncodeRequest(module.Request(call.Name, module.Assemble(m.def.Convention, call, m.opts)))

	out, code := lib.Invoke(req)
	if code != 0 {
		if out != nil {
			out.Release()
		}
		return module.Errf[value.Value]("native call failed: %s.%s - code %d", m.def.Name, call.Name, code)
	}
	if out == nil {
		return module.Errf[value.Value]("native call failed: %s.%s - no response", m.def.Name, call.Name)
	}
	return module.TakeResponse(out)
}
