package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"rigz/internal/acquire"
	"rigz/pkg/config"
	"rigz/pkg/logger"
	"rigz/pkg/module"
	"rigz/pkg/parser"
)

// project is the loaded configuration shared by the commands that need
// modules or programs.
type project struct {
	opts config.Options
	log  *slog.Logger
}

// loadProject reads the config at path, lets adjust layer flags over it
// and sets up logging to stderr.
func loadProject(path string, stderr io.Writer, adjust func(*config.Options)) (project, error) {
	opts, err := config.Load(path)
	if err != nil {
		return project{}, err
	}
	if adjust != nil {
		adjust(&opts)
	}
	return project{opts: opts, log: logger.SetupWriter(stderr, opts.Env, opts.Verbosity)}, nil
}

func (p project) modules(ctx context.Context) ([]module.Definition, error) {
	return acquire.New(p.opts.CacheDirectory, p.log).All(ctx, p.opts.AllModules())
}

// programs parses the files matching patterns, or the configured source
// files when patterns is empty.
func (p project) programs(patterns []string) ([]parser.Program, error) {
	if len(patterns) == 0 {
		patterns = p.opts.Parse.SourceFiles
	}
	paths, err := config.ExpandSources("", patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no source files match %v", patterns)
	}
	return config.ParsePrograms(paths, p.opts.Parse.Parser())
}
