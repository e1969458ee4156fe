// Package lua is the embedded Lua interpreter backend. Symbols are global
// Lua functions defined by the module's *.lua source files.
package lua

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

// maxTableDepth stops conversion of self-referencing Lua tables.
const maxTableDepth = 64

type Module struct {
	def  module.Definition
	opts module.AssembleOptions
	log  *slog.Logger

	// LState is not safe for concurrent use.
	mu sync.Mutex
	L  *lua.LState
}

var _ module.Module = (*Module)(nil)

func New(def module.Definition) *Module {
	return &Module{
		def: def,
		log: slog.Default(),
		L:   lua.NewState(),
	}
}

func (m *Module) Name() string { return m.def.Name }

func (m *Module) Root() string { return m.def.Root }

// Initialize runs every *.lua source file in listing order and then sets
// the __module_name global.
func (m *Module) Initialize(ctx context.Context, args module.InitArgs) module.Status[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opts = module.AssembleOptions{IncludeNonePrior: args.IncludeNonePrior}
	m.log = args.Log().With("module", m.def.Name)

	files := m.def.FilterExt(".lua")
	if len(files) == 0 {
		m.log.Warn("No source files configured")
	}

	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	for _, file := range files {
		m.log.Info("Loading source file", "file", file)
		if err := m.L.DoFile(file); err != nil {
			return module.Errf[struct{}]("failed to load file: %s - %s %v", m.def.Name, file, err)
		}
	}
	m.L.SetGlobal("__module_name", lua.LString(m.def.Name))
	return module.Ok(struct{}{})
}

func (m *Module) FunctionCall(ctx context.Context, call module.Call) module.Status[value.Value] {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn, ok := m.L.GetGlobal(call.Name).(*lua.LFunction)
	if !ok {
		return module.NotFound[value.Value]()
	}

	inv := module.Assemble(m.def.Convention, call, m.opts)
	var args []lua.LValue
	if inv.IsRecord() {
		args = []lua.LValue{ToLua(m.L, inv.AsValue())}
	} else {
		args = make([]lua.LValue, len(inv.Positional))
		for i, v := range inv.Positional {
			args[i] = ToLua(m.L, v)
		}
	}

	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return module.Errf[value.Value]("lua execution failed: %s.%s - %v", m.def.Name, call.Name, err)
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)
	return module.Ok(FromLua(ret))
}

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.L.Close()
	return nil
}

// ToLua converts a value into L. Kinds Lua has no notion of become tables:
// function calls {name, args, definition}, errors {error}, files
// {path, format}.
func ToLua(L *lua.LState, v value.Value) lua.LValue {
	switch v.Kind() {
	case value.KindNone:
		return lua.LNil
	case value.KindInt, value.KindLong, value.KindFloat, value.KindDouble:
		n, _ := v.AsNumber()
		return lua.LNumber(n)
	case value.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b)
	case value.KindString:
		s, _ := v.AsString()
		return lua.LString(s)
	case value.KindObject:
		obj, _ := v.AsObject()
		tbl := L.CreateTable(0, len(obj))
		for k, item := range obj {
			tbl.RawSetString(k, ToLua(L, item))
		}
		return tbl
	case value.KindList:
		items, _ := v.AsList()
		tbl := L.CreateTable(len(items), 0)
		for i, item := range items {
			tbl.RawSetInt(i+1, ToLua(L, item))
		}
		return tbl
	case value.KindFunctionCall:
		fc, _ := v.AsFunctionCall()
		tbl := L.CreateTable(0, 3)
		tbl.RawSetString("name", lua.LString(fc.Name))
		tbl.RawSetString("args", ToLua(L, value.List(fc.Args)))
		tbl.RawSetString("definition", ToLua(L, fc.Definition.AsValue()))
		return tbl
	case value.KindDefinition:
		d, _ := v.AsDefinition()
		return ToLua(L, d.AsValue())
	case value.KindError:
		msg, _ := v.AsError()
		tbl := L.CreateTable(0, 1)
		tbl.RawSetString("error", lua.LString(msg))
		return tbl
	case value.KindFile:
		f, _ := v.AsFile()
		tbl := L.CreateTable(0, 2)
		tbl.RawSetString("path", lua.LString(f.Path))
		tbl.RawSetString("format", lua.LString(f.Format))
		return tbl
	}
	return lua.LNil
}

// FromLua converts a Lua result. Integral numbers become Long, others
// Double. A table whose keys are exactly 1..n is a List, anything else an
// Object keyed by the string form of each key.
func FromLua(lv lua.LValue) value.Value {
	return fromLua(lv, 0)
}

func fromLua(lv lua.LValue, depth int) value.Value {
	switch v := lv.(type) {
	case *lua.LNilType:
		return value.None()
	case lua.LBool:
		return value.Bool(bool(v))
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return value.Long(int64(f))
		}
		return value.Double(f)
	case lua.LString:
		return value.String(string(v))
	case *lua.LTable:
		if depth >= maxTableDepth {
			return value.Error("lua table nesting too deep")
		}
		return fromTable(v, depth+1)
	}
	return value.Errorf("unsupported lua type %s", lv.Type())
}

func fromTable(tbl *lua.LTable, depth int) value.Value {
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n := tbl.Len(); n > 0 && n == count {
		items := make([]value.Value, n)
		for i := range items {
			items[i] = fromLua(tbl.RawGetInt(i+1), depth)
		}
		return value.List(items)
	}

	obj := make(map[string]value.Value, count)
	tbl.ForEach(func(k, v lua.LValue) {
		obj[fmt.Sprint(k)] = fromLua(v, depth)
	})
	return value.Object(obj)
}
