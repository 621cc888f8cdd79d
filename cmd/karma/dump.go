package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/pkg/karma"
)

func dumpCmd() *cli.Command {
	var (
		comments   bool
		schemaOnly bool
		packet     string
	)

	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the schema and data of a multi-array as text",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "comments",
				Aliases:     []string{"c"},
				Usage:       "print element paths and array headers",
				Destination: &comments,
			},
			&cli.BoolFlag{
				Name:        "schema",
				Usage:       "print descriptors only",
				Destination: &schemaOnly,
			},
			&cli.StringFlag{
				Name:        "packet",
				Aliases:     []string{"p"},
				Usage:       "dump a single named packet",
				Destination: &packet,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyDumpConfig(cmd, appConfig, &comments)

			ma, err := readInput(cmd, cmd.Args().First())
			if err != nil {
				return err
			}
			w := stdout(cmd)

			if packet != "" {
				p, ok := ma.Get(packet)
				if !ok {
					return cli.Exit(fmt.Sprintf("error: no packet named %q", packet), 1)
				}
				if schemaOnly {
					return karma.DumpDesc(w, p.Desc, comments)
				}
				return karma.Dump(w, p.Desc, p.Data, comments)
			}
			if !schemaOnly {
				return karma.DumpMultiArray(w, ma, comments)
			}
			for i, p := range ma.Packets {
				if _, err := fmt.Fprintf(w, "packet %q\n", ma.Names[i]); err != nil {
					return err
				}
				if err := karma.DumpDesc(w, p.Desc, comments); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
