package main

import (
	"context"
	"fmt"
	"net"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/pkg/channel"
	"github.com/samcharles93/karma/pkg/karma"
)

func sendCmd() *cli.Command {
	var addr string

	return &cli.Command{
		Name:      "send",
		Usage:     "Stream a multi-array file to a TCP receiver",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "receiver address",
				Required:    true,
				Destination: &addr,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ma, err := readInput(cmd, cmd.Args().First())
			if err != nil {
				return err
			}
			if err := sendMultiArray(ctx, addr, ma); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("sent multi-array", "address", addr, "packets", ma.Len())
			return nil
		},
	}
}

func receiveCmd() *cli.Command {
	var (
		listen  string
		outPath string
	)

	return &cli.Command{
		Name:  "receive",
		Usage: "Accept one TCP connection and write the multi-array it carries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "listen address",
				Value:       "127.0.0.1:9090",
				Destination: &listen,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .karma file",
				Required:    true,
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			log.Info("waiting for sender", "address", ln.Addr().String())
			ma, err := receiveOne(ctx, ln, readerOptions())
			if err != nil {
				return err
			}
			if err := karma.WriteFile(outPath, ma); err != nil {
				return err
			}
			log.Info("received multi-array", "path", outPath, "packets", ma.Len())
			return nil
		},
	}
}

func sendMultiArray(ctx context.Context, addr string, ma *karma.MultiArray) error {
	ch, err := channel.Dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if err := karma.WriteMultiArray(ch, ma); err != nil {
		_ = ch.Close()
		return err
	}
	return ch.Close()
}

// receiveOne accepts a single connection from ln, reads one multi-array from
// it and closes both. Cancelling ctx closes the listener.
func receiveOne(ctx context.Context, ln net.Listener, opts karma.ReaderOptions) (*karma.MultiArray, error) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	defer conn.Close()
	return karma.NewReader(conn, opts).ReadMultiArray()
}
