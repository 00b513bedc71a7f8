// Command unifysql converts text-to-SQL datasets into one unified layout
// and reports statistics over the result.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/darianmavgo/unifysql/config"
	_ "github.com/darianmavgo/unifysql/converters/all"
	"github.com/urfave/cli/v3"
)

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "unifysql",
		Usage: "Convert text-to-SQL datasets into a unified format",
		Description: `unifysql reads each dataset from its original layout, normalizes table and column
names, rebuilds the databases as SQLite stores and writes tables.json plus JSON lines
example files under the unified directory.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "HCL configuration file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log per-table and per-query detail",
			},
		},
		Commands: []*cli.Command{
			convertCommand(),
			listCommand(),
			dumpSchemaCommand(),
			statsCommand(),
			configCommand(),
		},
	}
}

// loadConfig reads the --config file when given, then applies environment
// overrides and the --verbose flag.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if cmd.Bool("verbose") {
		cfg.Verbose = true
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
