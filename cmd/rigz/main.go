package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"rigz/internal/cli"
	"rigz/pkg/config"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		slog.Warn("Failed to load .env", "error", err)
	}

	if len(os.Args) < 2 {
		cli.Usage(os.Stderr)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		cli.HandleRun(args)
	case "check":
		cli.HandleCheck(args)
	case "init":
		cli.HandleInit(args)
	case "setup":
		cli.HandleSetup(args)
	case "test":
		cli.HandleTest(args)
	case "module":
		cli.HandleModule(args)
	case "version", "--version", "-v":
		cli.HandleVersion(os.Stdout)
	case "help", "--help", "-h":
		cli.Usage(os.Stdout)
	default:
		// A bare source file runs it.
		if strings.HasSuffix(cmd, ".rigz") {
			cli.HandleRun(os.Args[1:])
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		cli.Usage(os.Stderr)
		os.Exit(2)
	}
}
