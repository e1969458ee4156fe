// Package config loads rigz options: the rigz.json project file, .env and
// RIGZ_* environment overrides, module manifests and source discovery.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"rigz/pkg/module"
	"rigz/pkg/parser"
	"rigz/pkg/runtime"
)

const (
	DefaultConfigFile     = "rigz.json"
	DefaultCacheDirectory = ".rigz/cache/modules"
	DefaultSourcePattern  = "*.rigz"

	StdLibName      = "std"
	StdLibSource    = "https://gitlab.com/inapinch_rigz/rigz.git"
	StdLibSubFolder = "modules/std_lib"
)

// ModuleOptions names a module to acquire. Source is a git URL or a local
// directory.
type ModuleOptions struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Version   string `json:"version,omitempty"`
	SubFolder string `json:"sub_folder,omitempty"`
	// Kind and Config override what the module's manifest says.
	Kind   module.Kind    `json:"kind,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

type ParseOptions struct {
	SourceFiles     []string `json:"source_files"`
	Use64BitNumbers bool     `json:"use_64_bit_numbers"`
}

func (p ParseOptions) Parser() parser.Config {
	return parser.Config{Use64BitNumbers: p.Use64BitNumbers}
}

type Options struct {
	CacheDirectory string          `json:"cache_directory"`
	DisableStdLib  bool            `json:"disable_std_lib"`
	Modules        []ModuleOptions `json:"modules"`
	Parse          ParseOptions    `json:"parse"`
	Run            runtime.RunArgs `json:"run"`

	// From the environment only.
	Env       string `json:"-"`
	Verbosity int    `json:"-"`
}

func Default() Options {
	return Options{
		CacheDirectory: DefaultCacheDirectory,
		Parse:          ParseOptions{SourceFiles: []string{DefaultSourcePattern}},
		Env:            "development",
	}
}

// StdLib is the module added unless DisableStdLib is set.
func StdLib() ModuleOptions {
	return ModuleOptions{Name: StdLibName, Source: StdLibSource, SubFolder: StdLibSubFolder}
}

// AllModules returns the configured modules in order, followed by the
// standard library when it is enabled and not configured explicitly.
func (o Options) AllModules() []ModuleOptions {
	mods := append([]ModuleOptions(nil), o.Modules...)
	if o.DisableStdLib {
		return mods
	}
	for _, m := range mods {
		if m.Name == StdLibName {
			return mods
		}
	}
	return append(mods, StdLib())
}

// LoadEnv loads .env files into the process environment. Missing files
// are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the options file at path. An empty path means RIGZ_CONFIG,
// then rigz.json; a missing default file yields the defaults. RIGZ_*
// environment variables are applied last.
func Load(path string) (Options, error) {
	opts := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("RIGZ_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := gojson.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		slog.Debug("No config file, using defaults", "path", path)
	default:
		return opts, fmt.Errorf("read config: %w", err)
	}

	if err := opts.applyEnv(); err != nil {
		return opts, err
	}
	if opts.CacheDirectory == "" {
		opts.CacheDirectory = DefaultCacheDirectory
	}
	if len(opts.Parse.SourceFiles) == 0 {
		opts.Parse.SourceFiles = []string{DefaultSourcePattern}
	}
	return opts, nil
}

func (o *Options) applyEnv() error {
	if dir := os.Getenv("RIGZ_CACHE_DIR"); dir != "" {
		o.CacheDirectory = dir
	}
	if env := os.Getenv("RIGZ_ENV"); env != "" {
		o.Env = env
	}
	if v := os.Getenv("RIGZ_VERBOSE"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("RIGZ_VERBOSE: %w", err)
		}
		o.Verbosity = n
	}
	return nil
}

// Save writes o as indented JSON.
func Save(path string, o Options) error {
	data, err := gojson.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
