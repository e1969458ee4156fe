package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RIGZ_CONFIG", "")

	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheDirectory, opts.CacheDirectory)
	assert.Equal(t, []string{DefaultSourcePattern}, opts.Parse.SourceFiles)
	assert.False(t, opts.DisableStdLib)
	assert.Equal(t, "development", opts.Env)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rigz.json")
	write(t, path, `{
  "cache_directory": "/tmp/rigz-cache",
  "disable_std_lib": true,
  "modules": [
    {"name": "db", "source": "./modules/db", "kind": "sql", "config": {"driver": "sqlite"}}
  ],
  "parse": {"source_files": ["src/**/*.rigz"], "use_64_bit_numbers": true},
  "run": {"all_errors_fatal": true, "require_aliases": true}
}`)

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rigz-cache", opts.CacheDirectory)
	assert.True(t, opts.DisableStdLib)
	require.Len(t, opts.Modules, 1)
	assert.Equal(t, module.KindSQL, opts.Modules[0].Kind)
	assert.Equal(t, "sqlite", opts.Modules[0].Config["driver"])
	assert.True(t, opts.Parse.Parser().Use64BitNumbers)
	assert.Equal(t, []string{"src/**/*.rigz"}, opts.Parse.SourceFiles)
	assert.True(t, opts.Run.AllErrorsFatal)
	assert.True(t, opts.Run.RequireAliases)
	assert.False(t, opts.Run.IgnoreSymbolNotFound)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err, "an explicit path must exist")

	t.Setenv("RIGZ_CONFIG", filepath.Join(dir, "also-missing.json"))
	_, err = Load("")
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	write(t, bad, `{"modules": 5}`)
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rigz.json")
	write(t, path, `{"cache_directory": "from-file"}`)

	t.Setenv("RIGZ_CONFIG", path)
	t.Setenv("RIGZ_CACHE_DIR", "from-env")
	t.Setenv("RIGZ_ENV", "production")
	t.Setenv("RIGZ_VERBOSE", "2")

	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", opts.CacheDirectory)
	assert.Equal(t, "production", opts.Env)
	assert.Equal(t, 2, opts.Verbosity)

	t.Setenv("RIGZ_VERBOSE", "loud")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	write(t, envFile, "RIGZ_TEST_VALUE=hello\n")
	t.Setenv("RIGZ_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("RIGZ_TEST_VALUE"))

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "hello", os.Getenv("RIGZ_TEST_VALUE"))
}

func TestAllModules(t *testing.T) {
	opts := Default()
	opts.Modules = []ModuleOptions{{Name: "mine", Source: "./mine"}}

	mods := opts.AllModules()
	require.Len(t, mods, 2)
	assert.Equal(t, "mine", mods[0].Name)
	assert.Equal(t, StdLib(), mods[1])

	opts.DisableStdLib = true
	assert.Len(t, opts.AllModules(), 1)

	opts.DisableStdLib = false
	opts.Modules = append(opts.Modules, ModuleOptions{Name: StdLibName, Source: "./std"})
	mods = opts.AllModules()
	require.Len(t, mods, 2)
	assert.Equal(t, "./std", mods[1].Source)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigz.json")
	opts := Default()
	opts.DisableStdLib = true
	opts.Run.PreferNoneOverPriorResult = true
	require.NoError(t, Save(path, opts))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.DisableStdLib)
	assert.True(t, loaded.Run.PreferNoneOverPriorResult)
	assert.Equal(t, opts.Parse.SourceFiles, loaded.Parse.SourceFiles)
}

func TestLoadManifestYAML(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "module.yaml"), `
name: hello
kind: lua
convention: ArgsWithPrior
config:
  greeting: hi
`)
	write(t, filepath.Join(dir, "b.lua"), "")
	write(t, filepath.Join(dir, "a.lua"), "")
	write(t, filepath.Join(dir, "lib", "c.lua"), "")
	write(t, filepath.Join(dir, "notes.txt"), "")

	def, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "hello", def.Name)
	assert.Equal(t, module.KindLua, def.Kind)
	assert.Equal(t, module.ArgsWithPrior, def.Convention)
	assert.Equal(t, dir, def.Root)
	assert.Equal(t, []string{"a.lua", "b.lua", filepath.Join("lib", "c.lua")}, def.SourceFiles)
	assert.Equal(t, "hi", def.Config["greeting"])
}

func TestLoadManifestExplicitSources(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "module.yml"), `
name: q
kind: sql
source_files: [queries/main.sql, "extra/*.sql", queries/main.sql]
`)
	write(t, filepath.Join(dir, "extra", "x.sql"), "")

	def, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("queries", "main.sql"), filepath.Join("extra", "x.sql")}, def.SourceFiles)
}

func TestLoadManifestRigz(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "module.rigz"), `module {
	name = 'std'
	kind = lua
	convention = 'StructFunction'
	source_files = ['std.lua']
	config {
		level = 2
	}
}
`)

	def, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "std", def.Name)
	assert.Equal(t, module.KindLua, def.Kind)
	assert.Equal(t, module.StructFunction, def.Convention)
	assert.Equal(t, []string{"std.lua"}, def.SourceFiles)
	assert.EqualValues(t, 2, def.Config["level"])
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		msg     string
	}{
		{"missing", "", "", "does not exist"},
		{"bad yaml", "module.yaml", "name: [", "failed to parse manifest"},
		{"wrong statement", "module.rigz", "package { name = 'x' }", "expected module"},
		{"no block", "module.rigz", "module 'x'", "definition is missing"},
		{"invalid kind", "module.yaml", "name: x\nkind: cobol\n", "unknown kind"},
		{"wasm without library", "module.yaml", "name: x\nkind: wasm\n", "need a library"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				write(t, filepath.Join(dir, tt.file), tt.content)
			}
			_, err := LoadManifest(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestApply(t *testing.T) {
	def := module.Definition{Name: "orig", Kind: module.KindLua, Config: map[string]any{"a": 1, "b": 2}}
	got := ModuleOptions{Name: "renamed", Kind: module.KindExpr, Config: map[string]any{"b": 3}}.Apply(def)

	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, module.KindExpr, got.Kind)
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, got.Config)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, def.Config, "the manifest config is not modified")
}

func TestExpandSourcesAndParse(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.rigz"), "puts 'b'\n")
	write(t, filepath.Join(dir, "a.rigz"), "puts 'a'\n")
	write(t, filepath.Join(dir, "sub", "c.rigz"), "puts 1.5\n")

	files, err := ExpandSources(dir, []string{"*.rigz"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rigz", "b.rigz"}, files)

	files, err = ExpandSources(dir, []string{"b.rigz", "**/*.rigz"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.rigz", "a.rigz", filepath.Join("sub", "c.rigz")}, files)

	abs, err := ExpandSources("", []string{filepath.Join(dir, "sub", "*.rigz")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "sub", "c.rigz")}, abs)

	_, err = ExpandSources(dir, []string{"[.rigz"})
	assert.Error(t, err)

	progs, err := ParsePrograms([]string{filepath.Join(dir, "a.rigz"), filepath.Join(dir, "sub", "c.rigz")}, ParseOptions{Use64BitNumbers: true}.Parser())
	require.NoError(t, err)
	require.Len(t, progs, 2)
	assert.Equal(t, filepath.Join(dir, "a.rigz"), progs[0].Name)
	assert.True(t, value.Double(1.5).Equal(progs[1].Statements[0].Args[0]))

	write(t, filepath.Join(dir, "bad.rigz"), "puts 'oops")
	_, err = ParsePrograms([]string{filepath.Join(dir, "bad.rigz")}, ParseOptions{}.Parser())
	assert.Error(t, err)
}

// chdir changes the working directory to dir for the duration of the test,
// like testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	if filepath.IsAbs(dir) {
		t.Setenv("PWD", dir)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			panic("chdir: restoring working directory: " + err.Error())
		}
	})
}
