package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"

	"rigz/pkg/config"
	"rigz/pkg/module"
)

// HandleModule handles `rigz module <list|validate>`.
func HandleModule(args []string) {
	if len(args) == 0 {
		printModuleHelp(os.Stdout)
		return
	}
	sub, subargs := args[0], args[1:]

	switch sub {
	case "list":
		ctx, stop := signalContext()
		defer stop()
		if err := ModuleList(ctx, subargs, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
	case "validate":
		if len(subargs) == 0 {
			fmt.Println("Usage: rigz module validate <dir>")
			os.Exit(1)
		}
		if errs, _ := ValidateModule(subargs[0], os.Stdout); errs > 0 {
			os.Exit(1)
		}
	case "help", "--help", "-h":
		printModuleHelp(os.Stdout)
	default:
		fmt.Printf("Unknown module subcommand: %s\n", sub)
		printModuleHelp(os.Stdout)
		os.Exit(1)
	}
}

func printModuleHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: rigz module <command> [arguments]

Commands:
  list [-json]      acquire the configured modules and list their definitions
  validate <dir>    check the module manifest in dir and the files it names
`)
}

// ModuleList prints the definitions of the configured modules in dispatch
// order.
func ModuleList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	asJSON := len(args) > 0 && args[0] == "-json"
	p, err := loadProject("", stderr, nil)
	if err != nil {
		return err
	}
	defs, err := p.modules(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := gojson.MarshalIndent(defs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	for i, def := range defs {
		fmt.Fprintf(stdout, "%d. 📦 %s (%s, %s)\n", i+1, def.Name, def.Kind, def.Convention)
		fmt.Fprintf(stdout, "     Location: %s\n", def.Root)
		if len(def.SourceFiles) > 0 {
			fmt.Fprintf(stdout, "     Sources:  %s\n", strings.Join(def.SourceFiles, ", "))
		}
		if def.Library != "" {
			fmt.Fprintf(stdout, "     Library:  %s\n", def.Library)
		}
		if len(def.Binary) > 0 {
			fmt.Fprintf(stdout, "     Binary:   %s\n", strings.Join(def.Binary, " "))
		}
	}
	return nil
}

// ValidateModule checks the manifest in dir and that every file it refers
// to exists. It returns the number of errors and warnings written to w.
func ValidateModule(dir string, w io.Writer) (errs, warnings int) {
	fmt.Fprintf(w, "Validating module at: %s\n", dir)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	defer func() {
		fmt.Fprintln(w, strings.Repeat("=", 60))
		switch {
		case errs > 0:
			fmt.Fprintf(w, "❌ Validation failed with %d error(s) and %d warning(s)\n", errs, warnings)
		case warnings > 0:
			fmt.Fprintf(w, "⚠️  Validation passed with %d warning(s)\n", warnings)
		default:
			fmt.Fprintln(w, "✅ Validation passed!")
		}
	}()

	def, err := config.LoadManifest(dir)
	if err != nil {
		fmt.Fprintf(w, "❌ Manifest invalid: %v\n", err)
		return 1, 0
	}
	fmt.Fprintf(w, "✅ Manifest valid: %s (%s)\n", def.Name, def.Kind)

	missing := func(label, p string) bool {
		if _, err := os.Stat(def.Resolve(p)); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(w, "❌ %s not found: %s\n", label, p)
			return true
		}
		return false
	}

	switch def.Kind {
	case module.KindLua, module.KindExpr, module.KindSQL:
		if len(def.SourceFiles) == 0 {
			fmt.Fprintln(w, "⚠️  No source files: the module defines no symbols")
			warnings++
		}
		for _, f := range def.SourceFiles {
			if missing("Source file", f) {
				errs++
			}
		}
	case module.KindWasm:
		if missing("Library", def.Library) {
			errs++
		} else if filepath.Ext(def.Library) != ".wasm" {
			fmt.Fprintln(w, "⚠️  Library doesn't have .wasm extension")
			warnings++
		}
	case module.KindNative:
		if missing("Library", def.Library) {
			errs++
		}
	case module.KindSidecar:
		// Bare command names are looked up on PATH when the module starts.
		if strings.ContainsRune(def.Binary[0], filepath.Separator) && missing("Binary", def.Binary[0]) {
			errs++
		}
	}
	return errs, warnings
}
