// Command tsingest loads market observations from CSV files into
// TimescaleDB and runs analytics over the stored series.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "configs/tsingest.yaml", "path to config file")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// register adds every subcommand to c.
func register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")
	c.Register(&versionCmd{}, "")

	c.Register(&ingestCmd{}, "ingest")
	c.Register(&scheduleCmd{}, "ingest")
	c.Register(&schemaCmd{}, "ingest")

	c.Register(&queryCmd{}, "analytics")
	c.Register(&menuCmd{}, "analytics")
}
