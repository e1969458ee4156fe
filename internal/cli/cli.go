// Package cli implements the rigz subcommands. Each HandleX function is the
// os.Args entry point and exits on failure; the error-returning variants
// behind them are what tests drive.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version is overridden at link time: -ldflags "-X rigz/internal/cli.Version=v1.2.3".
var Version = "dev"

func Usage(w io.Writer) {
	fmt.Fprint(w, `Usage: rigz <command> [flags]

Commands:
  run [files...]     evaluate programs (default: parse.source_files from rigz.json)
  check [files...]   parse programs and report syntax errors
  test [dir]         run *.test.rigz files below dir (default tests/)
  setup              acquire the configured modules into the cache
  module <cmd>       list configured modules or validate a module directory
  init               create rigz.json and hello.rigz in the current directory
  version            print the rigz version
`)
}

func HandleVersion(w io.Writer) {
	fmt.Fprintf(w, "rigz %s\n", Version)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
