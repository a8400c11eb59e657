package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/rickgao/tsingest/internal/analytics"
	"github.com/rickgao/tsingest/internal/render"
)

// menuCmd offers the analytics commands as a numbered menu.
type menuCmd struct{}

func (*menuCmd) Name() string     { return "menu" }
func (*menuCmd) Synopsis() string { return "interactive analytics menu" }
func (*menuCmd) Usage() string {
	return `tsingest [-config <file>] menu

  Prompts for an analytics command by number until 0 is entered.
`
}

func (*menuCmd) SetFlags(_ *flag.FlagSet) {}

func (*menuCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	r := a.reader()
	if err := runMenu(ctx, os.Stdin, os.Stdout, r.Run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type runFunc func(ctx context.Context, cmd analytics.Command, args analytics.Args) (*analytics.Table, error)

// runMenu reads choices from in until exit or EOF. Query errors are printed
// and the menu continues.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, run runFunc) error {
	scanner := bufio.NewScanner(in)
	prompt := func(msg string) (string, bool) {
		fmt.Fprint(out, msg)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintln(out, "Select an option:")
		fmt.Fprintf(out, "  %d. %s\n", analytics.CmdExit, analytics.CmdExit.Title())
		for _, c := range analytics.Commands() {
			fmt.Fprintf(out, "  %d. %s\n", c, c.Title())
		}

		choice, ok := prompt("> ")
		if !ok {
			return scanner.Err()
		}
		if choice == "" {
			continue
		}

		cmd, err := analytics.ParseCommand(choice)
		if err != nil {
			fmt.Fprintf(out, "%v\n\n", err)
			continue
		}
		if cmd == analytics.CmdExit {
			return nil
		}

		var args analytics.Args
		if cmd.NeedsSymbol() {
			if args.Symbol, ok = prompt("Enter the symbol: "); !ok {
				return scanner.Err()
			}
		}

		tbl, err := run(ctx, cmd, args)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n\n", err)
			continue
		}
		if tbl.Len() == 0 && cmd == analytics.CmdFilterSymbol {
			fmt.Fprintln(out, "No data found for that symbol")
			fmt.Fprintln(out)
			continue
		}
		render.Table(out, tbl)
		fmt.Fprintln(out)
	}
}
