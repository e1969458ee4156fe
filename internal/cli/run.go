package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"rigz/pkg/config"
	"rigz/pkg/metrics"
	"rigz/pkg/module"
	"rigz/pkg/parser"
	"rigz/pkg/runtime"
)

type runFlags struct {
	config      string
	output      string
	parallel    int
	verbose     int
	metricsAddr string
	noStd       bool

	fatal            bool
	ignoreNotFound   bool
	preferNone       bool
	requireAliases   bool
	includeNonePrior bool

	files []string
}

func parseRunFlags(args []string, stderr io.Writer) (runFlags, error) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: rigz run [flags] [files...]")
		fs.PrintDefaults()
	}
	fs.StringVar(&f.config, "config", "", "config file (default $RIGZ_CONFIG or rigz.json)")
	fs.StringVar(&f.output, "output", string(OutputPrint), "result format: print, json or log")
	fs.IntVar(&f.parallel, "parallel", 1, "programs evaluated at once")
	fs.IntVar(&f.verbose, "v", 0, "extra log verbosity")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.BoolVar(&f.noStd, "no-std", false, "do not load the standard library module")
	fs.BoolVar(&f.fatal, "fatal", false, "stop at the first failing statement")
	fs.BoolVar(&f.ignoreNotFound, "ignore-not-found", false, "unresolved symbols evaluate to none")
	fs.BoolVar(&f.preferNone, "prefer-none", false, "a none result replaces the prior result")
	fs.BoolVar(&f.requireAliases, "require-aliases", false, "treat dotted names as pre-resolved symbols")
	fs.BoolVar(&f.includeNonePrior, "include-none-prior", false, "pass a none prior result to modules")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.files = fs.Args()
	return f, nil
}

// apply layers the command line over the configured policy. Flags can only
// switch options on.
func (f runFlags) apply(opts *config.Options) {
	opts.Run.AllErrorsFatal = opts.Run.AllErrorsFatal || f.fatal
	opts.Run.IgnoreSymbolNotFound = opts.Run.IgnoreSymbolNotFound || f.ignoreNotFound
	opts.Run.PreferNoneOverPriorResult = opts.Run.PreferNoneOverPriorResult || f.preferNone
	opts.Run.RequireAliases = opts.Run.RequireAliases || f.requireAliases
	opts.Run.IncludeNonePrior = opts.Run.IncludeNonePrior || f.includeNonePrior
	opts.DisableStdLib = opts.DisableStdLib || f.noStd
	opts.Verbosity += f.verbose
}

func HandleRun(args []string) {
	ctx, stop := signalContext()
	defer stop()
	if err := Run(ctx, args, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// Run loads the project, acquires its modules and evaluates every program,
// writing the results to stdout.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseRunFlags(args, stderr)
	if err != nil {
		return err
	}
	format, err := ParseOutputFormat(f.output)
	if err != nil {
		return err
	}

	p, err := loadProject(f.config, stderr, f.apply)
	if err != nil {
		return err
	}
	programs, err := p.programs(f.files)
	if err != nil {
		return err
	}
	defs, err := p.modules(ctx)
	if err != nil {
		return err
	}

	var m *metrics.Dispatch
	if f.metricsAddr != "" {
		m = metrics.New()
		shutdown, err := serveMetrics(f.metricsAddr, m, p.log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	res, err := p.execute(ctx, defs, programs, f.parallel, m)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(programs))
	for _, prog := range programs {
		names = append(names, prog.Name)
	}
	return WriteResult(stdout, p.log, format, names, res)
}

// execute initializes the modules, evaluates programs and closes the
// modules again.
func (p project) execute(ctx context.Context, defs []module.Definition, programs []parser.Program, parallel int, m *metrics.Dispatch) (runtime.Result, error) {
	rt, err := runtime.Initialize(ctx, defs, programs,
		runtime.WithRunArgs(p.opts.Run),
		runtime.WithLogger(p.log),
		runtime.WithParallelUnits(parallel),
		runtime.WithMetrics(m),
		runtime.WithWasmCacheDir(filepath.Join(p.opts.CacheDirectory, "wasm")),
	)
	if err != nil {
		return runtime.Result{}, err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			p.log.Warn("Failed to close modules", "error", err)
		}
	}()
	return runtime.Run(ctx, rt, p.opts.Run)
}

func serveMetrics(addr string, m *metrics.Dispatch, log *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("Serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
