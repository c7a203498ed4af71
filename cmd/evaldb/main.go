// Command evaldb manages evaluation databases across storage backends:
// enumerating their contents and migrating them between local JSON trees,
// object storage and remote file trees.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	// Registered backends.
	_ "github.com/evalkit/evaldb/backend/file"
	_ "github.com/evalkit/evaldb/backend/memory"
	_ "github.com/evalkit/evaldb/backend/s3"
	_ "github.com/evalkit/evaldb/backend/sftp"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitConfig = 2
)

// GlobalFlags are recognized before the subcommand.
type GlobalFlags struct {
	LogLevel   string
	ConfigPath string
	Quiet      bool
}

func main() {
	fs := flag.NewFlagSet("evaldb", flag.ExitOnError)
	var globals GlobalFlags
	fs.StringVar(&globals.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&globals.ConfigPath, "config", "", "Path to config file (default: ~/.evaldb/config.yaml)")
	fs.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress non-error output")
	fs.SetInterspersed(false)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: evaldb [global options] <command> [options]

Commands:
  copy <src> <dst>   Copy every resource from one database to another
  list <db>          List the URIs of every resource in a database
  backends           List registered storage backends

Databases are addressed by backend descriptor, e.g.:
  json_files:/data/eval
  s3:bucket=eval-data,region=eu-north-1
  sftp:host=archive.example.com,user=eval,root=/data/eval
A bare path is shorthand for json_files. Aliases from the config file may
be used in place of descriptors.

Global options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(ExitConfig)
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(ExitConfig)
	}

	cfg, err := LoadConfig(globals.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}

	logger := newLogger(globals, cfg)

	switch args[0] {
	case "copy":
		runCopy(args[1:], cfg, globals, logger)
	case "list":
		runList(args[1:], cfg, globals, logger)
	case "backends":
		runBackends(globals)
	case "help", "-h", "--help":
		fs.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		fs.Usage()
		os.Exit(ExitConfig)
	}
}

// newLogger builds the process logger. The flag wins over the config file.
func newLogger(globals GlobalFlags, cfg *Config) *slog.Logger {
	level := globals.LogLevel
	if level == "info" && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if globals.Quiet {
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
