package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"rigz/pkg/module"
	"rigz/pkg/module/exprmod"
	"rigz/pkg/module/lua"
	"rigz/pkg/module/sqlmod"
	"rigz/pkg/native"
	"rigz/pkg/wasm"
)

// Factory builds the (uninitialized) module for a definition.
type Factory func(ctx context.Context, def module.Definition) (module.Module, error)

// backends is the default Factory. wasm modules share one wazero runtime,
// created on first use.
type backends struct {
	log      *slog.Logger
	cacheDir string
	wasm     *wasm.Runtime
}

func (b *backends) build(ctx context.Context, def module.Definition) (module.Module, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	switch def.Kind {
	case module.KindLua:
		return lua.New(def), nil
	case module.KindExpr:
		return exprmod.New(def), nil
	case module.KindSQL:
		return sqlmod.New(def), nil
	case module.KindSidecar:
		return wasm.NewSidecar(def), nil
	case module.KindNative:
		return native.New(def), nil
	case module.KindWasm:
		if b.wasm == nil {
			opts := []wasm.RuntimeOption{wasm.WithLogger(b.log)}
			if b.cacheDir != "" {
				opts = append(opts, wasm.WithCacheDir(b.cacheDir))
			}
			rt, err := wasm.NewRuntime(ctx, opts...)
			if err != nil {
				return nil, err
			}
			b.wasm = rt
		}
		return wasm.New(b.wasm, def), nil
	}
	return nil, fmt.Errorf("module %s: unknown kind %q", def.Name, def.Kind)
}

func (b *backends) close(ctx context.Context) error {
	if b.wasm == nil {
		return nil
	}
	err := b.wasm.Close(ctx)
	b.wasm = nil
	return err
}
