package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/pkg/karma"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "karma",
		Usage:  "Read, write, dump and serve Karma multi-array files",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			dumpCmd(),
			inspectCmd(),
			newCmd(),
			convertCmd(),
			serveCmd(),
			sendCmd(),
			receiveCmd(),
			versionCmd(),
		},
	}
}

// setup loads the config file and installs the logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if path == "" {
		path = configPath()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	appConfig = cfg
	applyGlobalConfig(cmd, cfg)
	if debug {
		logLevel = "debug"
	}

	log, err := logger.NewFromFormat(stderr(cmd), logFormat, logLevel)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// readInput decodes the multi-array at path, or from stdin when path is "-".
func readInput(cmd *cli.Command, path string) (*karma.MultiArray, error) {
	if path == "" {
		return nil, cli.Exit("error: missing input file", 1)
	}
	if path == "-" {
		r := cmd.Root().Reader
		if r == nil {
			r = os.Stdin
		}
		return karma.NewReader(r, readerOptions()).ReadMultiArray()
	}
	return karma.ReadFileOptions(path, readerOptions())
}
