package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/rickgao/tsingest/internal/analytics"
	"github.com/rickgao/tsingest/internal/render"
)

// queryCmd runs one analytics command.
type queryCmd struct {
	args analytics.Args
}

func (*queryCmd) Name() string     { return "query" }
func (*queryCmd) Synopsis() string { return "run an analytics query over stored observations" }
func (*queryCmd) Usage() string {
	var b strings.Builder
	b.WriteString("tsingest [-config <file>] query [flags] <command>\n\nCommands:\n")
	for _, c := range analytics.Commands() {
		fmt.Fprintf(&b, "  %-18s %s\n", c, c.Title())
	}
	return b.String()
}

func (c *queryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.args.Symbol, "symbol", "", "Symbol for filter-symbol and moving-average (default BTC_USD for moving-average).")
	f.IntVar(&c.args.Window, "window", 0, "Window size for moving-average (7) and volatility (20).")
	f.StringVar(&c.args.Interval, "since", "", "Trailing range for volume-since, as a Postgres interval (3 months).")
	f.StringVar(&c.args.Bucket, "bucket", "", "Bucket width for volume-per-bucket (1 hour) and gapfill (1 day).")
}

func (c *queryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	cmd, err := analytics.ParseCommand(f.Arg(0))
	if err == nil && cmd == analytics.CmdExit {
		err = fmt.Errorf("%w: %s", analytics.ErrUnknownCommand, cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	tbl, err := a.reader().Run(ctx, cmd, c.args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, analytics.ErrUnknownCommand) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}

	render.Table(os.Stdout, tbl)
	return subcommands.ExitSuccess
}
