package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/evalkit/evaldb"
)

// runList prints the canonical URI of every resource in a database.
func runList(args []string, cfg *Config, globals GlobalFlags, logger *slog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	route := fs.String("route", "", "Restrict the listing to one resource kind")
	project := fs.String("project", "", "Restrict the listing to one project")
	experiment := fs.String("experiment", "", "Restrict the listing to one experiment")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: evaldb list [options] <db>

Description:
  Enumerate the canonical URI of every resource in the database, one per
  line, sorted.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  evaldb list /data/eval
  evaldb list --route heatmap --project aero /data/eval

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(ExitConfig)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(ExitConfig)
	}

	db, err := evaldb.Open(cfg.Resolve(fs.Arg(0)), evaldb.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	var uris []string
	if *route != "" {
		partial := map[string]string{}
		if *project != "" {
			partial["project"] = *project
		}
		if *experiment != "" {
			partial["experiment"] = *experiment
		}
		uris, err = db.List(ctx, *route, partial)
	} else {
		uris, err = db.ListAll(ctx)
		if *project != "" || *experiment != "" {
			uris = filterByArgs(uris, *project, *experiment)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	for _, u := range uris {
		fmt.Println(u)
	}
	if !globals.Quiet {
		fmt.Fprintf(os.Stderr, "%d resources\n", len(uris))
	}
}

func filterByArgs(uris []string, project, experiment string) []string {
	var out []string
	for _, s := range uris {
		u, err := evaldb.Decode(s)
		if err != nil {
			continue
		}
		if project != "" && u.Args["project"] != project {
			continue
		}
		if experiment != "" && u.Args["experiment"] != experiment {
			continue
		}
		out = append(out, s)
	}
	return out
}

// runBackends prints the registered backend identifiers.
func runBackends(globals GlobalFlags) {
	for _, name := range evaldb.Backends() {
		fmt.Println(name)
	}
}
