package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/internal/export"
	"github.com/samcharles93/karma/internal/schema"
	"github.com/samcharles93/karma/pkg/karma"
)

func convertCmd() *cli.Command {
	var (
		to      string
		outPath string
	)

	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a multi-array to JSON, a YAML schema, or a fresh Karma stream",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "to",
				Usage:       "output format (json, schema, karma)",
				Value:       "json",
				Destination: &to,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path, or - for stdout",
				Value:       "-",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ma, err := readInput(cmd, cmd.Args().First())
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			switch to {
			case "json":
				err = export.Write(&buf, ma)
			case "schema", "yaml":
				var b []byte
				b, err = schema.FromMultiArray(ma).Marshal()
				buf.Write(b)
			case "karma":
				err = karma.WriteMultiArray(&buf, ma)
			default:
				return cli.Exit(fmt.Sprintf("error: unknown output format %q", to), 1)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd, outPath, buf.Bytes())
		},
	}
}

func writeOutput(cmd *cli.Command, path string, b []byte) error {
	if path == "" || path == "-" {
		_, err := io.Copy(stdout(cmd), bytes.NewReader(b))
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
