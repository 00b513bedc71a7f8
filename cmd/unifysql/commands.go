package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/darianmavgo/unifysql/config"
	"github.com/darianmavgo/unifysql/converters"
	"github.com/darianmavgo/unifysql/stats"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the registered datasets and where they are read from and written to",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return listDatasets(os.Stdout, cfg)
		},
	}
}

func listDatasets(w io.Writer, cfg *config.Config) error {
	for _, name := range converters.Adapters() {
		d := cfg.Dataset(name)
		skip := ""
		if d.Skip {
			skip = " (skip)"
		}
		if _, err := fmt.Fprintf(w, "%-28s %s -> %s%s\n", name, d.OriginalDir, d.OutDir, skip); err != nil {
			return err
		}
	}
	return nil
}

func dumpSchemaCommand() *cli.Command {
	return &cli.Command{
		Name:        "dump-schema",
		Usage:       "Describe an existing SQLite database as a tables.json entry",
		ArgsUsage:   " <database_path> <db_id>",
		Description: `Read the catalog of a SQLite database and print its schema descriptor, or write it as a one-entry tables.json with --out.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "write a tables.json file instead of printing",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return fmt.Errorf("expected exactly 2 arguments, got %d", args.Len())
			}
			return dumpSchema(ctx, os.Stdout, args.Get(0), args.Get(1), cmd.String("out"))
		},
	}
}

func dumpSchema(ctx context.Context, w io.Writer, dbPath, dbID, out string) error {
	schema, err := converters.DumpSchema(ctx, dbPath, dbID)
	if err != nil {
		return err
	}
	if out != "" {
		return converters.WriteTables(out, []*converters.SchemaDescriptor{schema})
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Compute schema, query and redundancy statistics over the unified datasets",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			summary, err := stats.Collect(ctx, cfg.UnifiedDir, cfg.StatsDir, cfg.Verbose)
			if err != nil {
				return err
			}
			log.Printf("[STATS] %d datasets, %d queries, %d parsing errors, %d distinct patterns written to %s",
				summary.Datasets, summary.Queries, summary.ParsingErrors, summary.Patterns, cfg.StatsDir)
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the configuration",
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Write the effective configuration as HCL",
				ArgsUsage: " <path>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("expected exactly 1 argument, got %d", cmd.Args().Len())
					}
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return config.Export(cmd.Args().First(), cfg)
				},
			},
		},
	}
}
