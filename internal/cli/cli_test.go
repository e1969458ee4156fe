package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rigz/pkg/config"
	"rigz/pkg/runtime"
	"rigz/pkg/value"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setupProject lays out a runnable project with a local lua module and makes it
// the working directory.
func setupProject(t *testing.T, programs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("RIGZ_CONFIG", "")
	t.Setenv("RIGZ_CACHE_DIR", "")

	write(t, filepath.Join(dir, "rigz.json"), `{
  "disable_std_lib": true,
  "modules": [{"name": "greet", "source": "./greet"}]
}`)
	write(t, filepath.Join(dir, "greet", "module.yaml"), "name: greet\nkind: lua\n")
	write(t, filepath.Join(dir, "greet", "greet.lua"), `
function hello(name)
  return "hi " .. name
end

function add(a, b)
  return a + b
end
`)
	for name, src := range programs {
		write(t, filepath.Join(dir, name), src)
	}
	return dir
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in   string
		want OutputFormat
		err  bool
	}{
		{"", OutputPrint, false},
		{"print", OutputPrint, false},
		{" JSON ", OutputJSON, false},
		{"log", OutputLog, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestWriteResult(t *testing.T) {
	res := runtime.Result{Values: map[string]value.Value{
		"b.rigz": value.Int(3),
		"a.rigz": value.String("done"),
	}}
	names := []string{"b.rigz", "a.rigz", "c.rigz"}

	t.Run("print", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteResult(&out, nil, OutputPrint, names, res))
		assert.Equal(t, "Results:\n\tb.rigz: 3\n\ta.rigz: done\n\tc.rigz: none\n", out.String())
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteResult(&out, nil, OutputJSON, names, res))
		var got map[string]any
		require.NoError(t, gojson.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, map[string]any{"a.rigz": "done", "b.rigz": float64(3)}, got)
	})

	t.Run("log", func(t *testing.T) {
		var out, logs bytes.Buffer
		log := slog.New(slog.NewTextHandler(&logs, nil))
		require.NoError(t, WriteResult(&out, log, OutputLog, names, res))
		assert.Empty(t, out.String())
		assert.Contains(t, logs.String(), "program=b.rigz value=3")
		assert.Contains(t, logs.String(), "program=c.rigz value=none")
	})
}

func TestRun(t *testing.T) {
	setupProject(t, map[string]string{
		"main.rigz": "hello 'bob'\n",
		"math.rigz": "add 1, 2\n",
	})

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), []string{"-output", "json", "-parallel", "2"}, &out, io.Discard))

	var got map[string]any
	require.NoError(t, gojson.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "hi bob", got["main.rigz"])
	assert.EqualValues(t, 3, got["math.rigz"])

	out.Reset()
	require.NoError(t, Run(context.Background(), []string{"main.rigz"}, &out, io.Discard))
	assert.Equal(t, "Results:\n\tmain.rigz: hi bob\n", out.String())
}

func TestRunPolicyFlags(t *testing.T) {
	setupProject(t, map[string]string{"main.rigz": "hello 'bob'\nmissing_symbol\n"})

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), nil, &out, io.Discard))
	assert.Contains(t, out.String(), "main.rigz: error: symbol not found: missing_symbol")

	out.Reset()
	require.NoError(t, Run(context.Background(), []string{"-ignore-not-found"}, &out, io.Discard))
	assert.Contains(t, out.String(), "main.rigz: hi bob", "none keeps the prior result")

	out.Reset()
	require.NoError(t, Run(context.Background(), []string{"-ignore-not-found", "-prefer-none"}, &out, io.Discard))
	assert.Contains(t, out.String(), "main.rigz: none")

	err := Run(context.Background(), []string{"-fatal"}, &out, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol not found")
}

func TestRunErrors(t *testing.T) {
	setupProject(t, map[string]string{"bad.rigz": "puts 'unterminated\n"})

	err := Run(context.Background(), []string{"-output", "xml"}, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "invalid output format")

	err = Run(context.Background(), []string{"nothing-*.rigz"}, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "no source files match")

	err = Run(context.Background(), []string{"bad.rigz"}, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "unterminated string")

	err = Run(context.Background(), []string{"-config", "missing.json"}, io.Discard, io.Discard)
	assert.Error(t, err)

	err = Run(context.Background(), []string{"-no-such-flag"}, io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestRunMetricsListener(t *testing.T) {
	setupProject(t, map[string]string{"main.rigz": "hello 'bob'\n"})

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), []string{"-metrics-addr", "127.0.0.1:0"}, &out, io.Discard))
	assert.Contains(t, out.String(), "hi bob")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("RIGZ_CONFIG", "")
	write(t, filepath.Join(dir, "ok.rigz"), "puts 'fine'\n")
	write(t, filepath.Join(dir, "bad.rigz"), "puts 1\nlet a 2\n")

	var out bytes.Buffer
	require.NoError(t, Check([]string{"ok.rigz"}, &out, io.Discard))
	assert.Equal(t, "✅ 1 file(s) valid\n", out.String())

	out.Reset()
	err := Check(nil, &out, io.Discard)
	require.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out.String(), "Found 1 syntax error(s)")
	assert.Contains(t, out.String(), "[bad.rigz:2:7] expected COMMA")

	out.Reset()
	require.Error(t, Check([]string{"-json"}, &out, io.Discard))
	var report CheckReport
	require.NoError(t, gojson.Unmarshal(out.Bytes(), &report))
	assert.False(t, report.Success)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, Diagnostic{Filename: "bad.rigz", Line: 2, Col: 7, Message: `expected COMMA, got NUMBER "2"`}, report.Errors[0])
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, Init(dir, nil, &out, io.Discard))
	assert.Contains(t, out.String(), "rigz.json")

	opts, err := config.Load(filepath.Join(dir, "rigz.json"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCacheDirectory, opts.CacheDirectory)

	hello, err := os.ReadFile(filepath.Join(dir, "hello.rigz"))
	require.NoError(t, err)
	assert.Equal(t, "puts 'Hello World'\n", string(hello))
	assert.FileExists(t, filepath.Join(dir, ".env.example"))

	err = Init(dir, nil, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "already exists")

	other := t.TempDir()
	require.NoError(t, Init(other, []string{"-samples=false"}, io.Discard, io.Discard))
	assert.NoFileExists(t, filepath.Join(other, "hello.rigz"))
	assert.FileExists(t, filepath.Join(other, "rigz.json"))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	HandleVersion(&out)
	assert.Equal(t, "rigz dev\n", out.String())
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
