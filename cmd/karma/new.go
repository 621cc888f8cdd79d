package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/internal/schema"
	"github.com/samcharles93/karma/pkg/karma"
)

func newCmd() *cli.Command {
	var (
		schemaPath string
		outPath    string
		note       string
	)

	return &cli.Command{
		Name:  "new",
		Usage: "Create a zero-filled multi-array file from a YAML schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "schema",
				Aliases:     []string{"s"},
				Usage:       "YAML schema describing the packets",
				Required:    true,
				Destination: &schemaPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .karma file",
				Required:    true,
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "note",
				Usage:       "history line to append",
				Destination: &note,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			f, err := schema.Load(schemaPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ma, err := f.MultiArray()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if note != "" {
				ma.AppendHistory(note)
			}
			if err := karma.WriteFile(outPath, ma); err != nil {
				return err
			}
			log.Info("wrote multi-array", "path", outPath, "packets", ma.Len())
			return nil
		},
	}
}
