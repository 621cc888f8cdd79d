package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/pkg/iarray"
	"github.com/samcharles93/karma/pkg/karma"
)

func inspectCmd() *cli.Command {
	var (
		packet string
		array  string
		field  string
		index  string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarise packet layouts, or the values of one array field",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "packet", Aliases: []string{"p"}, Usage: "packet holding --array (default: first packet)", Destination: &packet},
			&cli.StringFlag{Name: "array", Aliases: []string{"a"}, Usage: "array element to inspect", Destination: &array},
			&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Usage: "field of the array's cells (default: first numeric)", Destination: &field},
			&cli.StringFlag{Name: "index", Aliases: []string{"i"}, Usage: "comma-separated index tuple to print, e.g. 1,0", Destination: &index},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ma, err := readInput(cmd, cmd.Args().First())
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if array == "" {
				return writeSummary(w, ma)
			}
			if packet == "" {
				packet = ma.Names[0]
			}

			v, err := iarray.Get(ma, packet, array, field)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log := logger.FromContext(ctx)
			_, _ = v.OnDestroy(func(*iarray.View) {
				log.Debug("released array view", "packet", packet, "array", array)
			})
			defer func() { _ = v.Destroy() }()

			if index != "" {
				idx, err := parseIndex(index)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				val, err := v.Float64(idx...)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				_, err = fmt.Fprintln(w, strconv.FormatFloat(val, 'g', -1, 64))
				return err
			}
			return writeViewStats(w, v)
		},
	}
}

func writeSummary(w io.Writer, ma *karma.MultiArray) error {
	for i, p := range ma.Packets {
		l, err := karma.LayoutOf(p.Desc)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "packet %q: %d elements, %d bytes\n", ma.Names[i], len(p.Desc.Elements), l.Size)
		for j, e := range p.Desc.Elements {
			shape := ""
			if e.Type == karma.TypeArray {
				shape = " " + shapeOf(e.Array)
			}
			fmt.Fprintf(w, "  %-12s %-8s offset %-8d size %d%s\n", e.Name, e.Type, l.Offsets[j], l.Sizes[j], shape)
		}
	}
	_, err := fmt.Fprintf(w, "history: %d lines\n", len(ma.History))
	return err
}

func shapeOf(a *karma.ArrayDesc) string {
	var sb strings.Builder
	for _, n := range a.Lengths() {
		fmt.Fprintf(&sb, "[%d]", n)
	}
	return sb.String()
}

func parseIndex(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	idx := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad index %q: %w", s, err)
		}
		idx[i] = n
	}
	return idx, nil
}

// writeViewStats prints the view's shape and the count, min, max and mean of
// its values, visiting every index in row-major order.
func writeViewStats(w io.Writer, v *iarray.View) error {
	dims, err := v.Dims()
	if err != nil {
		return err
	}
	typ, err := v.Type()
	if err != nil {
		return err
	}
	var shape []string
	for d, dim := range dims {
		contig, err := v.Contiguous(d)
		if err != nil {
			return err
		}
		name := dim.Name
		if name == "" {
			name = "d" + strconv.Itoa(d)
		}
		s := fmt.Sprintf("%s=%d", name, dim.Length)
		if contig {
			s += " (contiguous)"
		}
		shape = append(shape, s)
	}
	fmt.Fprintf(w, "type: %s\ndims: %s\n", typ, strings.Join(shape, ", "))
	if !typ.Numeric() {
		return nil
	}

	var (
		n      uint64
		sum    float64
		lo, hi = math.Inf(1), math.Inf(-1)
	)
	idx := make([]int, len(dims))
	err = eachIndex(dims, idx, 0, func() error {
		val, err := v.Float64(idx...)
		if err != nil {
			return err
		}
		n++
		sum += val
		lo = math.Min(lo, val)
		hi = math.Max(hi, val)
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = fmt.Fprintln(w, "count: 0")
		return err
	}
	_, err = fmt.Fprintf(w, "count: %d\nmin: %g\nmax: %g\nmean: %g\n", n, lo, hi, sum/float64(n))
	return err
}

func eachIndex(dims []karma.DimDesc, idx []int, d int, fn func() error) error {
	if d == 0 && slices.ContainsFunc(dims, func(dim karma.DimDesc) bool { return dim.Length == 0 }) {
		return nil
	}
	if d == len(dims) {
		return fn()
	}
	for i := range int(dims[d].Length) {
		idx[d] = i
		if err := eachIndex(dims, idx, d+1, fn); err != nil {
			return err
		}
	}
	return nil
}
