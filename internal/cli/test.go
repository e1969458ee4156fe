package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rigz/pkg/config"
	"rigz/pkg/module"
	"rigz/pkg/parser"
)

// TestPattern selects test programs below the test directory.
const TestPattern = "**/*.test.rigz"

var errTestsFailed = errors.New("tests failed")

func HandleTest(args []string) {
	ctx, stop := signalContext()
	defer stop()
	if err := Test(ctx, args, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		}
		os.Exit(1)
	}
}

// Test runs every *.test.rigz file below the target directory (default
// tests/) in its own runtime. A file passes when no statement fails and its
// last value is not an error. Modules are acquired once for all files.
func Test(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	fset.SetOutput(stderr)
	cfgPath := fset.String("config", "", "config file (default $RIGZ_CONFIG or rigz.json)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	target := "tests"
	if fset.NArg() > 0 {
		target = fset.Arg(0)
	}

	files, err := testFiles(target)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(stdout, "⚠️  No test files found in %s (looking for %s)\n", target, TestPattern)
		return nil
	}

	p, err := loadProject(*cfgPath, stderr, func(o *config.Options) {
		o.Run.AllErrorsFatal = true
	})
	if err != nil {
		return err
	}
	defs, err := p.modules(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	fmt.Fprintf(stdout, "🔍 Found %d test file(s)\n\n", len(files))
	passed, failed := 0, 0
	for _, file := range files {
		if err := p.runTestFile(ctx, defs, file); err != nil {
			fmt.Fprintf(stdout, "❌ FAIL: %s\n   Error: %v\n", file, err)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "✅ PASS: %s\n", file)
		passed++
	}

	fmt.Fprintln(stdout, "\n"+strings.Repeat("-", 40))
	if failed > 0 {
		fmt.Fprintf(stdout, "💥 %d passed, %d failed. (%s)\n", passed, failed, time.Since(start).Round(time.Millisecond))
		return errTestsFailed
	}
	fmt.Fprintf(stdout, "🎉 All tests passed! (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func testFiles(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("test target %s: %w", target, err)
	}
	if !info.IsDir() {
		return []string{target}, nil
	}
	rel, err := config.ExpandSources(target, []string{TestPattern})
	if err != nil {
		return nil, err
	}
	files := make([]string, len(rel))
	for i, f := range rel {
		files[i] = filepath.Join(target, f)
	}
	return files, nil
}

func (p project) runTestFile(ctx context.Context, defs []module.Definition, path string) error {
	progs, err := config.ParsePrograms([]string{path}, p.opts.Parse.Parser())
	if err != nil {
		return err
	}
	res, err := p.execute(ctx, defs, []parser.Program{progs[0]}, 1, nil)
	if err != nil {
		return err
	}
	if msg, ok := res.Values[path].AsError(); ok {
		return errors.New(msg)
	}
	return nil
}
