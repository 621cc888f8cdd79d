package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/pkg/karma"
)

var (
	configFile   string
	logLevel     string
	logFormat    string
	debug        bool
	maxReadBytes int64

	// appConfig is loaded once by the root command's Before hook.
	appConfig Config
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: user config dir)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.Int64Flag{
			Name:        "max-read-bytes",
			Usage:       "largest packet accepted from a stream",
			Value:       karma.DefaultMaxBytes,
			Destination: &maxReadBytes,
		},
	}
}

func readerOptions() karma.ReaderOptions {
	return karma.ReaderOptions{MaxBytes: maxReadBytes}
}
