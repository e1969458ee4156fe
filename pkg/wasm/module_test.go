package wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rigz/pkg/abi"
	"rigz/pkg/module"
	"rigz/pkg/value"
)

// Minimal binary encoder for hand-assembled guests.

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func section(id byte, items ...[]byte) []byte {
	payload := vec(items...)
	return append(append([]byte{id}, uleb(uint64(len(payload)))...), payload...)
}

func name(s string) []byte { return append(uleb(uint64(len(s))), s...) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

const (
	i32 = 0x7f
	i64 = 0x7e
)

func funcType(params, results []byte) []byte {
	return cat([]byte{0x60}, uleb(uint64(len(params))), params, uleb(uint64(len(results))), results)
}

func body(instrs ...byte) []byte {
	b := append([]byte{0x00}, instrs...) // no locals
	return append(uleb(uint64(len(b))), b...)
}

const (
	pongAt     = 16
	notFoundAt = 32
)

// pongGuest answers a call whose name is four bytes long with the string
// "pong" and anything else with not_found. It bump-allocates and never
// frees.
func pongGuest(t *testing.T, invoke []byte) []byte {
	t.Helper()
	pong := abi.AppendResponse(nil, abi.Response{Status: abi.StatusOK, Value: value.String("pong")})
	notFound := abi.AppendResponse(nil, abi.Response{Status: abi.StatusNotFound})

	if invoke == nil {
		invoke = cat(
			[]byte{0x20, 0x00, 0x28, 0x00, 0x02}, // local.get 0; i32.load offset=2 (name length)
			[]byte{0x41, 0x04, 0x46},             // i32.const 4; i32.eq
			[]byte{0x04, i64},                    // if (result i64)
			[]byte{0x42}, sleb(int64(pongAt)<<32|int64(len(pong))),
			[]byte{0x05},
			[]byte{0x42}, sleb(int64(notFoundAt)<<32|int64(len(notFound))),
			[]byte{0x0b}, // end if
		)
	}

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1,
			funcType([]byte{i32}, []byte{i32}),
			funcType([]byte{i32, i32}, nil),
			funcType([]byte{i32, i32}, []byte{i64}),
		),
		section(3, uleb(0), uleb(1), uleb(2)),
		section(5, []byte{0x00, 0x01}),
		section(6, cat([]byte{i32, 0x01, 0x41}, sleb(1024), []byte{0x0b})),
		section(7,
			cat(name("memory"), []byte{0x02, 0x00}),
			cat(name("alloc"), []byte{0x00, 0x00}),
			cat(name("dealloc"), []byte{0x00, 0x01}),
			cat(name("rigz_invoke"), []byte{0x00, 0x02}),
		),
		section(10,
			// alloc: old := heap; heap += len; return old
			body(0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x0b),
			body(0x0b),
			body(append(invoke, 0x0b)...),
		),
		section(11,
			cat([]byte{0x00, 0x41}, sleb(pongAt), []byte{0x0b}, uleb(uint64(len(pong))), pong),
			cat([]byte{0x00, 0x41}, sleb(notFoundAt), []byte{0x0b}, uleb(uint64(len(notFound))), notFound),
		),
	)
}

func newWasmModule(t *testing.T, guest []byte) *Module {
	t.Helper()
	ctx := context.Background()
	rt, err := NewRuntime(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guest.wasm"), guest, 0o644))
	return New(rt, module.Definition{
		Name:    "guest",
		Kind:    module.KindWasm,
		Root:    dir,
		Library: "guest.wasm",
	})
}

func TestGuestCall(t *testing.T) {
	m := newWasmModule(t, pongGuest(t, nil))
	ctx := context.Background()
	require.True(t, m.Initialize(ctx, module.InitArgs{}).IsOk())

	status := m.FunctionCall(ctx, module.Call{Name: "ping", Args: []value.Value{value.Int(1)}})
	require.True(t, status.IsOk(), status.String())
	assert.Equal(t, value.String("pong"), status.Value())

	// Calls are repeatable: request buffers are released each time.
	for i := 0; i < 3; i++ {
		assert.True(t, m.FunctionCall(ctx, module.Call{Name: "ping"}).IsOk())
	}

	assert.True(t, m.FunctionCall(ctx, module.Call{Name: "missing"}).IsNotFound())
	require.NoError(t, m.Close())
	assert.True(t, m.FunctionCall(ctx, module.Call{Name: "ping"}).IsNotFound())
}

func TestGuestTrapIsErr(t *testing.T) {
	m := newWasmModule(t, pongGuest(t, []byte{0x00})) // unreachable
	ctx := context.Background()
	require.True(t, m.Initialize(ctx, module.InitArgs{}).IsOk())

	status := m.FunctionCall(ctx, module.Call{Name: "ping"})
	require.True(t, status.IsErr())
	assert.Contains(t, status.Message(), "guest.ping")
}

func TestGuestResponseOutOfBounds(t *testing.T) {
	// Points the response past the single memory page.
	m := newWasmModule(t, pongGuest(t, cat([]byte{0x42}, sleb(int64(70000)<<32|8))))
	ctx := context.Background()
	require.True(t, m.Initialize(ctx, module.InitArgs{}).IsOk())

	status := m.FunctionCall(ctx, module.Call{Name: "ping"})
	require.True(t, status.IsOk())
	assert.True(t, status.Value().IsError())
}

func TestLoadFailures(t *testing.T) {
	ctx := context.Background()

	m := newWasmModule(t, []byte("not wasm"))
	status := m.Initialize(ctx, module.InitArgs{})
	require.True(t, status.IsErr())
	assert.Contains(t, status.Message(), "guest.wasm")

	// A valid module without the boundary exports.
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	m = newWasmModule(t, empty)
	status = m.Initialize(ctx, module.InitArgs{})
	require.True(t, status.IsErr())
	assert.Contains(t, status.Message(), "memory")
}

func TestRuntimeInstances(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	defer rt.Close(ctx)

	guest := pongGuest(t, nil)
	a, err := rt.Instantiate(ctx, "same", guest)
	require.NoError(t, err)
	b, err := rt.Instantiate(ctx, "same", guest)
	require.NoError(t, err)
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Len(t, rt.ListModules(), 2)

	_, err = rt.CallFunction(ctx, a, "does_not_exist")
	assert.Error(t, err)

	require.NoError(t, rt.UnloadModule(ctx, a))
	assert.Len(t, rt.ListModules(), 1)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "WARN", ParseLevel("warning").String())
	assert.Equal(t, "INFO", ParseLevel("chatty").String())
	assert.Equal(t, "DEBUG", ParseLevel("TRACE").String())
}
