package wasm

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

const (
	helperEnv     = "RIGZ_SIDECAR_HELPER"
	helperExitEnv = "RIGZ_SIDECAR_EXIT"
)

// TestMain doubles as the sidecar process when helperEnv is set.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "1":
		serveSidecar()
		os.Exit(cast.ToInt(os.Getenv(helperExitEnv)))
	case "hang":
		serveSidecar()
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func serveSidecar() {
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		var req SidecarRequest
		resp := SidecarResponse{Status: "ok"}
		if err := gojson.Unmarshal(in.Bytes(), &req); err != nil {
			resp = SidecarResponse{Status: "error", Error: err.Error()}
		} else if req.Method == "invoke" {
			switch req.Name {
			case "echo":
				resp.Value = *req.Invocation
			case "fail":
				resp = SidecarResponse{Status: "error", Error: "boom"}
			default:
				resp = SidecarResponse{Status: "not_found"}
			}
		}
		line, _ := gojson.Marshal(resp)
		fmt.Println(string(line))
	}
}

func newSidecar(t *testing.T, conv module.Convention) *Sidecar {
	t.Helper()
	p := helperSidecar(t, conv, map[string]any{helperEnv: "1"})
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func helperSidecar(t *testing.T, conv module.Convention, env map[string]any) *Sidecar {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return NewSidecar(module.Definition{
		Name:       "side",
		Kind:       module.KindSidecar,
		Binary:     []string{exe},
		Convention: conv,
		Config:     map[string]any{"env": env},
	})
}

func TestSidecarCalls(t *testing.T) {
	p := newSidecar(t, module.ArgsWithPrior)
	ctx := context.Background()
	require.True(t, p.Initialize(ctx, module.InitArgs{}).IsOk())

	status := p.FunctionCall(ctx, module.Call{
		Name:  "echo",
		Args:  []value.Value{value.Int(1), value.Float(0.5)},
		Prior: value.Long(9),
	})
	require.True(t, status.IsOk(), status.String())
	want := value.List([]value.Value{value.Int(1), value.Float(0.5), value.Long(9)})
	assert.True(t, want.Equal(status.Value()), "got %v", status.Value())

	status = p.FunctionCall(ctx, module.Call{Name: "fail"})
	require.True(t, status.IsErr())
	assert.Equal(t, "boom", status.Message())

	assert.True(t, p.FunctionCall(ctx, module.Call{Name: "other"}).IsNotFound())
}

func TestSidecarStruct(t *testing.T) {
	p := newSidecar(t, module.StructFunction)
	ctx := context.Background()
	require.True(t, p.Initialize(ctx, module.InitArgs{}).IsOk())

	status := p.FunctionCall(ctx, module.Call{Name: "echo", Args: []value.Value{value.String("x")}})
	require.True(t, status.IsOk())
	rec, ok := status.Value().AsObject()
	require.True(t, ok)
	assert.Equal(t, value.String("echo"), rec["name"])
}

func TestSidecarNotStarted(t *testing.T) {
	p := NewSidecar(module.Definition{Name: "idle", Kind: module.KindSidecar})
	assert.True(t, p.FunctionCall(context.Background(), module.Call{Name: "echo"}).IsNotFound())
	assert.True(t, p.Initialize(context.Background(), module.InitArgs{}).IsErr())
	assert.NoError(t, p.Close())
}

func TestSidecarMissingBinary(t *testing.T) {
	p := NewSidecar(module.Definition{
		Name:   "ghost",
		Kind:   module.KindSidecar,
		Binary: []string{"/nonexistent/rigz-sidecar"},
	})
	status := p.Initialize(context.Background(), module.InitArgs{})
	require.True(t, status.IsErr())
	assert.Contains(t, status.Message(), "ghost")
}

func TestSidecarClose(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]any
		err  string
	}{
		{"clean exit", map[string]any{helperEnv: "1"}, ""},
		{"non-zero exit", map[string]any{helperEnv: "1", helperExitEnv: "3"}, "sidecar side exited: exit status 3"},
		{"killed", map[string]any{helperEnv: "hang"}, "did not exit within 100ms and was killed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := helperSidecar(t, module.Args, tt.env)
			p.stopTimeout = 100 * time.Millisecond
			require.True(t, p.Initialize(context.Background(), module.InitArgs{}).IsOk())

			err := p.Close()
			if tt.err == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.err)
			}
			assert.NoError(t, p.Close(), "second close is a no-op")
		})
	}
}
