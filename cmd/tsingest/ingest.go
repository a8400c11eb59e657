package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/rickgao/tsingest/internal/ingest"
	"github.com/rickgao/tsingest/internal/render"
)

// ingestCmd runs the pipeline once per source file.
type ingestCmd struct {
	full bool
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "load new observations from CSV files" }
func (*ingestCmd) Usage() string {
	return `tsingest [-config <file>] ingest [-full] [<file.csv> ...]

  Appends observations newer than the latest stored day. Without arguments
  the files listed under source.files are ingested.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.full, "full", false, "Ignore the watermark and load every row; existing rows are skipped.")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	sources := f.Args()
	if len(sources) == 0 {
		sources = a.cfg.Source.Files
	}
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no source files given and source.files is empty")
		return subcommands.ExitUsageError
	}

	ctx, cancel := withSignals(ctx, a.logger)
	defer cancel()

	var req ingest.Request
	if c.full {
		req.ForceFullReload = &c.full
	}

	p := a.pipeline()
	var summaries []*ingest.Summary
	status := subcommands.ExitSuccess
	for _, src := range sources {
		req.Source = src
		s, err := p.Run(ctx, req)
		summaries = append(summaries, s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = subcommands.ExitFailure
		}
		if ctx.Err() != nil {
			break
		}
	}

	render.Summaries(os.Stdout, summaries...)
	return status
}
