package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/internal/transfer"
	"github.com/samcharles93/karma/pkg/karma"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		maxBody     int64
		readTimeout time.Duration
		preload     []string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve an in-memory multi-array store over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "largest request body accepted",
				Value:       karma.DefaultMaxBytes,
				Destination: &maxBody,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.StringSliceFlag{
				Name:        "preload",
				Usage:       "karma file to load into the store at startup (repeatable)",
				Destination: &preload,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, appConfig, &addr)
			log := logger.FromContext(ctx)

			store := transfer.NewStore(readerOptions())
			for _, path := range preload {
				if err := preloadFile(store, path, readerOptions()); err != nil {
					return cli.Exit(fmt.Sprintf("error: preload %s: %v", path, err), 1)
				}
				log.Info("preloaded multi-array", "path", path)
			}

			server := transfer.NewServer(store, log, maxBody)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// preloadFile stores the file at path under its base name without extension.
func preloadFile(store *transfer.Store, path string, opts karma.ReaderOptions) error {
	ma, err := karma.ReadFileOptions(path, opts)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, err = store.Put(name, ma)
	return err
}
