package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newModule(t *testing.T, conv module.Convention, sources map[string]string, order ...string) *Module {
	t.Helper()
	dir := t.TempDir()
	for name, body := range sources {
		writeFile(t, dir, name, body)
	}
	m := New(module.Definition{
		Name:        "std",
		Kind:        module.KindLua,
		Root:        dir,
		SourceFiles: order,
		Convention:  conv,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestInitializeAndCall(t *testing.T) {
	m := newModule(t, module.Args, map[string]string{
		"math.lua": `function add(a, b) return a + b end`,
		"str.lua":  `function who() return __module_name end`,
	}, "math.lua", "str.lua", "README.md")

	require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())

	status := m.FunctionCall(context.Background(), module.Call{
		Name: "add",
		Args: []value.Value{value.Int(2), value.Int(3)},
	})
	require.True(t, status.IsOk(), status.String())
	assert.Equal(t, value.Long(5), status.Value())

	status = m.FunctionCall(context.Background(), module.Call{Name: "who"})
	require.True(t, status.IsOk())
	assert.Equal(t, value.String("std"), status.Value())
}

func TestUnknownSymbolIsNotFound(t *testing.T) {
	m := newModule(t, module.Args, map[string]string{"a.lua": `answer = 42`}, "a.lua")
	require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())

	assert.True(t, m.FunctionCall(context.Background(), module.Call{Name: "missing"}).IsNotFound())
	// A global that is not a function is not callable either.
	assert.True(t, m.FunctionCall(context.Background(), module.Call{Name: "answer"}).IsNotFound())
}

func TestLoadFailureNamesFile(t *testing.T) {
	m := newModule(t, module.Args, map[string]string{"broken.lua": `function (`}, "broken.lua")
	status := m.Initialize(context.Background(), module.InitArgs{})
	require.True(t, status.IsErr())
	assert.Contains(t, status.Message(), "broken.lua")
}

func TestRuntimeErrorIsErr(t *testing.T) {
	m := newModule(t, module.Args, map[string]string{"a.lua": `function boom() error("kaput") end`}, "a.lua")
	require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())

	status := m.FunctionCall(context.Background(), module.Call{Name: "boom"})
	require.True(t, status.IsErr())
	assert.Contains(t, status.Message(), "kaput")
}

func TestConventions(t *testing.T) {
	src := map[string]string{"a.lua": `
function count(...) return select('#', ...) end
function first(x) return x end
function rec(t) return t end
`}

	t.Run("ArgsFunction passes the name first", func(t *testing.T) {
		m := newModule(t, module.ArgsFunction, src, "a.lua")
		require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())
		status := m.FunctionCall(context.Background(), module.Call{Name: "first", Args: []value.Value{value.Int(1)}})
		assert.Equal(t, value.String("first"), status.Value())
	})

	t.Run("ArgsWithPrior appends the prior", func(t *testing.T) {
		m := newModule(t, module.ArgsWithPrior, src, "a.lua")
		require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())
		status := m.FunctionCall(context.Background(), module.Call{
			Name:  "count",
			Args:  []value.Value{value.Int(1)},
			Prior: value.String("before"),
		})
		assert.Equal(t, value.Long(2), status.Value())

		status = m.FunctionCall(context.Background(), module.Call{Name: "count", Args: []value.Value{value.Int(1)}})
		assert.Equal(t, value.Long(1), status.Value())
	})

	t.Run("StructFunction passes one record", func(t *testing.T) {
		m := newModule(t, module.StructFunction, src, "a.lua")
		require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())
		status := m.FunctionCall(context.Background(), module.Call{
			Name:       "rec",
			Args:       []value.Value{value.String("a")},
			Definition: value.One(map[string]value.Value{"k": value.Bool(true)}),
		})
		require.True(t, status.IsOk())
		want := value.Object(map[string]value.Value{
			"name":       value.String("rec"),
			"args":       value.List([]value.Value{value.String("a")}),
			"definition": value.Object(map[string]value.Value{"k": value.Bool(true)}),
		})
		assert.True(t, want.Equal(status.Value()), "got %v", status.Value())
	})
}

func TestTableConversion(t *testing.T) {
	m := newModule(t, module.Args, map[string]string{"a.lua": `
function list() return {1, 2.5, "x"} end
function obj() return {a = 1, b = {true}} end
function empty() return {} end
function cyclic() local t = {} t.self = t return t end
`}, "a.lua")
	require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())

	call := func(name string) value.Value {
		s := m.FunctionCall(context.Background(), module.Call{Name: name})
		require.True(t, s.IsOk(), s.String())
		return s.Value()
	}

	assert.True(t, value.List([]value.Value{value.Long(1), value.Double(2.5), value.String("x")}).Equal(call("list")))
	assert.True(t, value.Object(map[string]value.Value{
		"a": value.Long(1),
		"b": value.List([]value.Value{value.Bool(true)}),
	}).Equal(call("obj")))
	assert.Equal(t, value.KindObject, call("empty").Kind())

	got := call("cyclic")
	assert.Equal(t, value.KindObject, got.Kind())
}

func TestValueRoundTripThroughLua(t *testing.T) {
	m := newModule(t, module.Args, map[string]string{"a.lua": `function id(x) return x end`}, "a.lua")
	require.True(t, m.Initialize(context.Background(), module.InitArgs{}).IsOk())

	in := value.Object(map[string]value.Value{
		"n":    value.Long(-4),
		"s":    value.String("héllo"),
		"list": value.List([]value.Value{value.Bool(false), value.Double(0.5)}),
	})
	status := m.FunctionCall(context.Background(), module.Call{Name: "id", Args: []value.Value{in}})
	require.True(t, status.IsOk())
	assert.True(t, in.Equal(status.Value()), "got %v", status.Value())
}
