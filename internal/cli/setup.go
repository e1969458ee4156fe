package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

func HandleSetup(args []string) {
	ctx, stop := signalContext()
	defer stop()
	if err := Setup(ctx, args, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "❌ Setup failed: %v\n", err)
		os.Exit(1)
	}
}

// Setup acquires every configured module into the cache directory without
// running anything, so later runs can work offline.
func Setup(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("setup", flag.ContinueOnError)
	fset.SetOutput(stderr)
	cfgPath := fset.String("config", "", "config file (default $RIGZ_CONFIG or rigz.json)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	p, err := loadProject(*cfgPath, stderr, nil)
	if err != nil {
		return err
	}
	defs, err := p.modules(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		fmt.Fprintf(stdout, "📦 %s (%s) %s\n", def.Name, def.Kind, def.Root)
	}
	fmt.Fprintf(stdout, "✅ %d module(s) ready\n", len(defs))
	return nil
}
