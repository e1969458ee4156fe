package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rigz/pkg/module"
	"rigz/pkg/parser"
	"rigz/pkg/value"
)

// Manifest file names, in lookup order. module.rigz is a rigz program whose
// first statement is `module { ... }`.
var ManifestFiles = []string{"module.yaml", "module.yml", "module.rigz"}

// defaultSources are used when a manifest lists no source files.
var defaultSources = map[module.Kind][]string{
	module.KindLua:  {"**/*.lua"},
	module.KindExpr: {"**/*.expr.yaml", "**/*.expr.yml"},
	module.KindSQL:  {"**/*.sql"},
}

// LoadManifest reads the manifest in dir and returns the module definition
// it describes, rooted at dir, with source patterns expanded.
func LoadManifest(dir string) (module.Definition, error) {
	for _, name := range ManifestFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return module.Definition{}, err
		}

		var def module.Definition
		if filepath.Ext(name) == ".rigz" {
			def, err = decodeRigzManifest(path, data)
		} else {
			err = yaml.Unmarshal(data, &def)
		}
		if err != nil {
			return module.Definition{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
		return finishDefinition(dir, def)
	}
	return module.Definition{}, fmt.Errorf("module manifest does not exist in %s (looked for %v)", dir, ManifestFiles)
}

func decodeRigzManifest(path string, data []byte) (module.Definition, error) {
	prog, err := parser.Parse(path, string(data), parser.Config{})
	if err != nil {
		return module.Definition{}, err
	}
	if len(prog.Statements) == 0 {
		return module.Definition{}, errors.New("manifest is empty")
	}
	stmt := prog.Statements[0]
	if stmt.Name != "module" {
		return module.Definition{}, fmt.Errorf("invalid identifier %q, expected module", stmt.Name)
	}
	fields, ok := stmt.Definition.Fields()
	if !ok {
		return module.Definition{}, errors.New("definition is missing for module")
	}

	// Same field names as module.yaml: go through yaml so both formats
	// decode identically.
	raw, err := yaml.Marshal(manifestNative(value.Object(fields)))
	if err != nil {
		return module.Definition{}, err
	}
	var def module.Definition
	err = yaml.Unmarshal(raw, &def)
	return def, err
}

func finishDefinition(dir string, def module.Definition) (module.Definition, error) {
	def.Root = dir
	patterns := def.SourceFiles
	if len(patterns) == 0 {
		patterns = defaultSources[def.Kind]
	}
	files, err := ExpandSources(dir, patterns)
	if err != nil {
		return module.Definition{}, err
	}
	def.SourceFiles = files
	return def, def.Validate()
}

// Apply overlays the project-level options of m onto def.
func (m ModuleOptions) Apply(def module.Definition) module.Definition {
	if m.Name != "" {
		def.Name = m.Name
	}
	if m.Kind != "" {
		def.Kind = m.Kind
	}
	if len(m.Config) > 0 {
		merged := make(map[string]any, len(def.Config)+len(m.Config))
		for k, v := range def.Config {
			merged[k] = v
		}
		for k, v := range m.Config {
			merged[k] = v
		}
		def.Config = merged
	}
	return def
}

// manifestNative is ToNative with manifest conveniences: a nested block
// (`config { ... }`) is its fields and a bare identifier (`kind = lua`) is
// its name.
func manifestNative(v value.Value) any {
	switch v.Kind() {
	case value.KindObject:
		fields, _ := v.AsObject()
		m := make(map[string]any, len(fields))
		for k, f := range fields {
			m[k] = manifestNative(f)
		}
		return m
	case value.KindList:
		items, _ := v.AsList()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = manifestNative(item)
		}
		return out
	case value.KindFunctionCall:
		fc, _ := v.AsFunctionCall()
		if len(fc.Args) == 0 {
			if fc.Definition.IsNone() {
				return fc.Name
			}
			return manifestNative(fc.Definition.AsValue())
		}
	}
	return v.ToNative()
}
