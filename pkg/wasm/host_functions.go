package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostFunctions is the `env` module guests may import.
type HostFunctions struct {
	OnLog func(ctx context.Context, module, level, message string)
}

func NewHostFunctions(logger *slog.Logger) *HostFunctions {
	return &HostFunctions{
		OnLog: func(ctx context.Context, module, level, message string) {
			logger.Log(ctx, ParseLevel(level), message, "module", module)
		},
	}
}

// Register instantiates the host module in r.
func (hf *HostFunctions) Register(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(hf.hostLog).
		Export("host_log").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to instantiate host module: %w", err)
	}
	return nil
}

// hostLog handles log calls from WASM
// Signature: host_log(level_ptr: i32, level_len: i32, msg_ptr: i32, msg_len: i32)
func (hf *HostFunctions) hostLog(ctx context.Context, m api.Module, levelPtr, levelLen, msgPtr, msgLen uint32) {
	level, ok := m.Memory().Read(levelPtr, levelLen)
	if !ok {
		slog.Error("Failed to read log level from WASM memory", "module", m.Name())
		return
	}
	msg, ok := m.Memory().Read(msgPtr, msgLen)
	if !ok {
		slog.Error("Failed to read log message from WASM memory", "module", m.Name())
		return
	}
	if hf.OnLog != nil {
		hf.OnLog(ctx, m.Name(), string(level), string(msg))
	}
}

// ParseLevel maps a guest level name to slog. Unknown names log at info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
