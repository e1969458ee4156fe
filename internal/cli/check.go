package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	gojson "github.com/goccy/go-json"

	"rigz/pkg/config"
	"rigz/pkg/parser"
)

// Diagnostic is one syntax error as reported by `rigz check -json`.
type Diagnostic struct {
	Filename string `json:"filename"`
	Line     int    `json:"line,omitempty"`
	Col      int    `json:"col,omitempty"`
	Message  string `json:"message"`
}

type CheckReport struct {
	Success bool         `json:"success"`
	Checked int          `json:"checked"`
	Errors  []Diagnostic `json:"errors"`
}

// errCheckFailed is returned after the report has been written.
var errCheckFailed = errors.New("check failed")

func HandleCheck(args []string) {
	if err := Check(args, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if !errors.Is(err, errCheckFailed) {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		}
		os.Exit(1)
	}
}

// Check parses every matching file and reports all syntax errors, not just
// the first.
func Check(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	isJSON := fs.Bool("json", false, "write the report as JSON")
	cfgPath := fs.String("config", "", "config file (default $RIGZ_CONFIG or rigz.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	patterns := opts.Parse.SourceFiles
	if fs.NArg() > 0 {
		patterns = fs.Args()
	}
	paths, err := config.ExpandSources("", patterns)
	if err != nil {
		return err
	}

	report := CheckReport{Errors: []Diagnostic{}}
	for _, p := range paths {
		report.Checked++
		if _, err := parser.ParseFile(p, opts.Parse.Parser()); err != nil {
			report.Errors = append(report.Errors, diagnosticOf(p, err))
		}
	}
	report.Success = len(report.Errors) == 0

	if *isJSON {
		data, err := gojson.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	} else if report.Success {
		fmt.Fprintf(stdout, "✅ %d file(s) valid\n", report.Checked)
	} else {
		fmt.Fprintf(stdout, "❌ Found %d syntax error(s):\n", len(report.Errors))
		for _, d := range report.Errors {
			fmt.Fprintf(stdout, "  - [%s:%d:%d] %s\n", d.Filename, d.Line, d.Col, d.Message)
		}
	}

	if !report.Success {
		return errCheckFailed
	}
	return nil
}

func diagnosticOf(path string, err error) Diagnostic {
	var perr *parser.Error
	if errors.As(err, &perr) {
		return Diagnostic{Filename: path, Line: perr.Line, Col: perr.Col, Message: perr.Message}
	}
	return Diagnostic{Filename: path, Message: err.Error()}
}
