package cli

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"rigz/pkg/config"
)

//go:embed templates
var templatesFS embed.FS

// scaffold maps embedded templates to the file names they are written as.
var scaffold = []struct{ template, target string }{
	{"templates/hello.rigz", "hello.rigz"},
	{"templates/env.example", ".env.example"},
}

func HandleInit(args []string) {
	if err := Init(".", args, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// Init creates a project in dir. Existing files are never overwritten.
func Init(dir string, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("init", flag.ContinueOnError)
	fset.SetOutput(stderr)
	createConfig := fset.Bool("config", true, "create "+config.DefaultConfigFile)
	createSamples := fset.Bool("samples", true, "create hello.rigz and .env.example")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if *createConfig {
		path := filepath.Join(dir, config.DefaultConfigFile)
		if err := mustNotExist(path); err != nil {
			return err
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "✅ Created %s\n", path)
	}

	if *createSamples {
		for _, f := range scaffold {
			path := filepath.Join(dir, f.target)
			if err := mustNotExist(path); err != nil {
				return err
			}
			content, err := templatesFS.ReadFile(f.template)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, content, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "✅ Created %s\n", path)
		}
	}
	return nil
}

func mustNotExist(path string) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return err
	}
}
