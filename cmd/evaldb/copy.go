package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/evalkit/evaldb"
)

// runCopy copies every resource from one database into another.
func runCopy(args []string, cfg *Config, globals GlobalFlags, logger *slog.Logger) {
	fs := flag.NewFlagSet("copy", flag.ExitOnError)
	verify := fs.Bool("verify", false, "Re-read each resource from the destination and compare hashes")
	dryRun := fs.Bool("dry-run", false, "Enumerate what would be copied without writing")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: evaldb copy [options] <src> <dst>

Description:
  Copy every resource of the source database into the destination. Data is
  transferred as stored, so the destination is a faithful replica. Failed
  resources are reported and skipped; the copy continues.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  evaldb copy /data/eval s3:bucket=eval-data,region=eu-north-1
  evaldb copy --verify prod /backup/eval
  evaldb copy --dry-run json_files:/data/eval memory:

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(ExitConfig)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(ExitConfig)
	}

	opts := []evaldb.Option{evaldb.WithLogger(logger)}
	if cfg.CacheSize > 0 {
		opts = append(opts, evaldb.WithCacheSize(cfg.CacheSize))
	}

	src, err := evaldb.Open(cfg.Resolve(fs.Arg(0)), opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening source: %v\n", err)
		os.Exit(ExitConfig)
	}
	defer func() { _ = src.Close() }()

	dst, err := evaldb.Open(cfg.Resolve(fs.Arg(1)), opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening destination: %v\n", err)
		os.Exit(ExitConfig)
	}
	defer func() { _ = dst.Close() }()

	var copyOpts []evaldb.CopyOption
	if *verify {
		copyOpts = append(copyOpts, evaldb.WithVerify())
	}
	if *dryRun {
		copyOpts = append(copyOpts, evaldb.DryRun())
	}
	copyOpts = append(copyOpts, evaldb.WithCopyLogger(logger))

	result, err := evaldb.CopyAll(context.Background(), src, dst, copyOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	if !globals.Quiet {
		fmt.Printf("Copied %d resources", result.Copied)
		if len(result.Errors) > 0 {
			fmt.Printf(", %d failed", len(result.Errors))
		}
		fmt.Println()
	}
	for _, ce := range result.Errors {
		fmt.Fprintf(os.Stderr, "failed: %s\n", ce.Error())
	}
	if len(result.Errors) > 0 {
		os.Exit(ExitError)
	}
}
