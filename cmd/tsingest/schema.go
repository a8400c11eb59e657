package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// schemaCmd provisions the observations table.
type schemaCmd struct {
	hypertable bool
}

func (*schemaCmd) Name() string     { return "schema" }
func (*schemaCmd) Synopsis() string { return "create the observations schema and table if absent" }
func (*schemaCmd) Usage() string {
	return `tsingest [-config <file>] schema [-hypertable]

  Creates the configured schema and table. Existing objects are left as is.
`
}

func (c *schemaCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.hypertable, "hypertable", false, "Also convert the table to a hypertable (overrides store.hypertable).")
}

func (c *schemaCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if c.hypertable {
		a.cfg.Store.Hypertable = true
	}

	store := a.store()
	if err := store.CreateSchemaIfAbsent(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Table %s is ready\n", store.Table())
	return subcommands.ExitSuccess
}
