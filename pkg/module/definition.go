package module

import (
	"fmt"
	"path/filepath"
)

// Kind selects the backend a definition is built with.
type Kind string

const (
	KindLua     Kind = "lua"
	KindExpr    Kind = "expr"
	KindSQL     Kind = "sql"
	KindWasm    Kind = "wasm"
	KindSidecar Kind = "sidecar"
	KindNative  Kind = "native"
)

func (k Kind) Valid() bool {
	switch k {
	case KindLua, KindExpr, KindSQL, KindWasm, KindSidecar, KindNative:
		return true
	}
	return false
}

// Definition is a resolved, ready-to-load module: what acquisition hands
// the runtime. Paths in SourceFiles and Library are relative to Root
// unless absolute.
type Definition struct {
	Name        string         `yaml:"name" json:"name"`
	Kind        Kind           `yaml:"kind" json:"kind"`
	Root        string         `yaml:"-" json:"root,omitempty"`
	SourceFiles []string       `yaml:"source_files" json:"source_files,omitempty"`
	Library     string         `yaml:"library" json:"library,omitempty"`
	Binary      []string       `yaml:"binary" json:"binary,omitempty"`
	Convention  Convention     `yaml:"convention" json:"convention"`
	Config      map[string]any `yaml:"config" json:"config,omitempty"`
}

func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("module definition: missing name")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("module %s: unknown kind %q", d.Name, d.Kind)
	}
	switch d.Kind {
	case KindWasm, KindNative:
		if d.Library == "" {
			return fmt.Errorf("module %s: %s modules need a library", d.Name, d.Kind)
		}
	case KindSidecar:
		if len(d.Binary) == 0 {
			return fmt.Errorf("module %s: sidecar modules need a binary", d.Name)
		}
	}
	return nil
}

// Resolve joins p onto Root when p is relative.
func (d Definition) Resolve(p string) string {
	if filepath.IsAbs(p) || d.Root == "" {
		return p
	}
	return filepath.Join(d.Root, p)
}

// SourcePaths returns SourceFiles resolved against Root, in listing order.
func (d Definition) SourcePaths() []string {
	paths := make([]string, len(d.SourceFiles))
	for i, f := range d.SourceFiles {
		paths[i] = d.Resolve(f)
	}
	return paths
}

// FilterExt returns the source paths with one of the given extensions
// (".lua"), keeping listing order.
func (d Definition) FilterExt(exts ...string) []string {
	var out []string
	for _, p := range d.SourcePaths() {
		ext := filepath.Ext(p)
		for _, want := range exts {
			if ext == want {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
