// Package exprmod is a backend whose symbols are expr-lang expressions,
// declared in YAML source files as `symbol: expression`.
package exprmod

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

type Module struct {
	def      module.Definition
	opts     module.AssembleOptions
	log      *slog.Logger
	programs map[string]*vm.Program
}

var _ module.Module = (*Module)(nil)

func New(def module.Definition) *Module {
	return &Module{def: def, log: slog.Default(), programs: map[string]*vm.Program{}}
}

func (m *Module) Name() string { return m.def.Name }

func (m *Module) Root() string { return m.def.Root }

// Initialize compiles every expression of every *.yaml / *.yml source in
// listing order. A symbol defined twice keeps its last definition.
func (m *Module) Initialize(_ context.Context, args module.InitArgs) module.Status[struct{}] {
	m.opts = module.AssembleOptions{IncludeNonePrior: args.IncludeNonePrior}
	m.log = args.Log().With("module", m.def.Name)

	files := m.def.FilterExt(".yaml", ".yml")
	if len(files) == 0 {
		m.log.Warn("No source files configured")
	}
	for _, file := range files {
		if err := m.load(file); err != nil {
			return module.Errf[struct{}]("failed to load file: %s - %s %v", m.def.Name, file, err)
		}
	}
	return module.Ok(struct{}{})
}

func (m *Module) load(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var symbols map[string]string
	if err := yaml.Unmarshal(data, &symbols); err != nil {
		return err
	}
	for name, src := range symbols {
		program, err := expr.Compile(src, expr.AllowUndefinedVariables())
		if err != nil {
			return fmt.Errorf("symbol %s: %w", name, err)
		}
		if _, dup := m.programs[name]; dup {
			m.log.Warn("Symbol redefined", "symbol", name, "file", file)
		}
		m.programs[name] = program
	}
	m.log.Info("Loaded source file", "file", file, "symbols", len(symbols))
	return nil
}

// Env is the variable environment an expression runs against. Positional
// conventions expose the assembled list as `args`; struct conventions
// expose each record field.
func (m *Module) Env(call module.Call) map[string]any {
	inv := module.Assemble(m.def.Convention, call, m.opts)
	env := map[string]any{"__module_name": m.def.Name}
	if inv.IsRecord() {
		for k, v := range inv.Record {
			env[k] = v.ToNative()
		}
		return env
	}
	args := make([]any, len(inv.Positional))
	for i, v := range inv.Positional {
		args[i] = v.ToNative()
	}
	env["args"] = args
	return env
}

// FunctionCall programs are compiled once and only read afterwards, so
// calls need no lock.
func (m *Module) FunctionCall(_ context.Context, call module.Call) module.Status[value.Value] {
	program, ok := m.programs[call.Name]
	if !ok {
		return module.NotFound[value.Value]()
	}
	out, err := expr.Run(program, m.Env(call))
	if err != nil {
		return module.Errf[value.Value]("expr execution failed: %s.%s - %v", m.def.Name, call.Name, err)
	}
	return module.Ok(value.FromNative(out))
}
