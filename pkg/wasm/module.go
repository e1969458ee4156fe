// Package wasm hosts rigz modules that run out of process or out of the
// host's memory: WebAssembly guests through wazero and sidecar processes
// speaking JSON lines.
//
// A wasm guest exports:
//
//	memory
//	alloc(len i32) i32
//	dealloc(ptr i32, len i32)
//	rigz_invoke(req_ptr i32, req_len i32) i64   ; ptr<<32 | len of a response frame
//	rigz_initialize(cfg_ptr i32, cfg_len i32) i32   ; optional, 0 is success
//
// Frames are the pkg/abi encoding. The host allocates the request through
// alloc and deallocs it after the call. The response belongs to the host
// once rigz_invoke returns: it is decoded and then dealloc'ed exactly
// once.
package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/tetratelabs/wazero/api"

	"rigz/pkg/abi"
	"rigz/pkg/module"
	"rigz/pkg/value"
)

var requiredExports = []string{"alloc", "dealloc", "rigz_invoke"}

type Module struct {
	rt   *Runtime
	def  module.Definition
	opts module.AssembleOptions
	log  *slog.Logger

	// A guest instance is single threaded.
	mu   sync.Mutex
	inst api.Module
}

var _ module.Module = (*Module)(nil)

func New(rt *Runtime, def module.Definition) *Module {
	return &Module{rt: rt, def: def, log: slog.Default()}
}

func (m *Module) Name() string { return m.def.Name }

func (m *Module) Root() string { return m.def.Root }

func (m *Module) Initialize(ctx context.Context, args module.InitArgs) module.Status[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opts = module.AssembleOptions{IncludeNonePrior: args.IncludeNonePrior}
	m.log = args.Log().With("module", m.def.Name)

	path := m.def.Resolve(m.def.Library)
	inst, err := m.rt.LoadModule(ctx, m.def.Name, path)
	if err != nil {
		return module.Errf[struct{}]("failed to load library: %s - %s %v", m.def.Name, path, err)
	}
	if err := m.bind(inst); err != nil {
		_ = m.rt.UnloadModule(ctx, inst)
		return module.Errf[struct{}]("invalid library: %s - %s %v", m.def.Name, path, err)
	}
	return m.initialize(ctx)
}

// bind checks the guest exports the boundary functions.
func (m *Module) bind(inst api.Module) error {
	if inst.Memory() == nil {
		return fmt.Errorf("no exported memory")
	}
	for _, name := range requiredExports {
		if inst.ExportedFunction(name) == nil {
			return fmt.Errorf("missing export %s", name)
		}
	}
	m.inst = inst
	return nil
}

func (m *Module) initialize(ctx context.Context) module.Status[struct{}] {
	if m.inst.ExportedFunction("rigz_initialize") == nil {
		return module.Ok(struct{}{})
	}
	cfg, err := gojson.Marshal(m.def.Config)
	if err != nil {
		return module.Errf[struct{}]("module %s: encode config: %v", m.def.Name, err)
	}
	ptr, err := m.write(ctx, cfg)
	if err != nil {
		return module.Errf[struct{}]("module %s: %v", m.def.Name, err)
	}
	defer m.free(ctx, ptr, uint32(len(cfg)))

	res, err := m.rt.CallFunction(ctx, m.inst, "rigz_initialize", uint64(ptr), uint64(len(cfg)))
	if err != nil {
		return module.Errf[struct{}]("initialization failed: %s - %v", m.def.Name, err)
	}
	if len(res) > 0 && int32(res[0]) != 0 {
		return module.Errf[struct{}]("initialization failed: %s - code %d", m.def.Name, int32(res[0]))
	}
	return module.Ok(struct{}{})
}

// write copies data into guest memory obtained from alloc.
func (m *Module) write(ctx context.Context, data []byte) (uint32, error) {
	res, err := m.rt.CallFunction(ctx, m.inst, "alloc", uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("alloc returned no pointer")
	}
	ptr := uint32(res[0])
	if !m.inst.Memory().Write(ptr, data) {
		m.free(ctx, ptr, uint32(len(data)))
		return 0, fmt.Errorf("failed to write %d bytes at %d", len(data), ptr)
	}
	return ptr, nil
}

func (m *Module) free(ctx context.Context, ptr, size uint32) {
	if _, err := m.rt.CallFunction(ctx, m.inst, "dealloc", uint64(ptr), uint64(size)); err != nil {
		m.log.Warn("dealloc failed", "ptr", ptr, "len", size, "error", err)
	}
}

func (m *Module) FunctionCall(ctx context.Context, call module.Call) module.Status[value.Value] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inst == nil {
		return module.NotFound[value.Value]()
	}

	arena := abi.AcquireArena()
	defer abi.ReleaseArena(arena)
	req := arena.EncodeRequest(module.Request(call.Name, module.Assemble(m.def.Convention, call, m.opts)))

	reqPtr, err := m.write(ctx, req)
	if err != nil {
		return module.Errf[value.Value]("wasm call failed: %s.%s - %v", m.def.Name, call.Name, err)
	}
	res, err := m.rt.CallFunction(ctx, m.inst, "rigz_invoke", uint64(reqPtr), uint64(len(req)))
	m.free(ctx, reqPtr, uint32(len(req)))
	if err != nil {
		return module.Errf[value.Value]("wasm call failed: %s.%s - %v", m.def.Name, call.Name, err)
	}
	if len(res) == 0 {
		return module.Errf[value.Value]("wasm call failed: %s.%s - no result", m.def.Name, call.Name)
	}

	outPtr, outLen := uint32(res[0]>>32), uint32(res[0])
	data, ok := m.inst.Memory().Read(outPtr, outLen)
	if !ok {
		return module.Ok(value.Errorf("response out of bounds: %d+%d", outPtr, outLen))
	}
	return module.TakeResponse(abi.NewOwned(data, func() { m.free(ctx, outPtr, outLen) }))
}

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inst == nil {
		return nil
	}
	err := m.rt.UnloadModule(context.Background(), m.inst)
	m.inst = nil
	return err
}
