package karma

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Dump renders one packet's data as text, one leaf per line, in the same
// depth-first, row-major order the writer uses.
//
// With comments, each line is "path: value" (for example "grid[1][0].v: 3.0") and
// every array is preceded by a "# " header naming its dimensions. Without
// comments, only the bare values are printed.
func Dump(w io.Writer, desc *PacketDesc, data []byte, comments bool) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := checkData(desc, data); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := dumpData(bw, desc, data, comments); err != nil {
		return err
	}
	return flushDump(bw)
}

// DumpDesc renders a packet descriptor as text, one element per line, with
// array sub-packets indented below their array.
func DumpDesc(w io.Writer, desc *PacketDesc, comments bool) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	dumpDesc(bw, desc, comments, 0)
	return flushDump(bw)
}

// DumpMultiArray renders every packet of ma, schema first and then data,
// followed by the history lines.
func DumpMultiArray(w io.Writer, ma *MultiArray, comments bool) error {
	if err := ma.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for i, p := range ma.Packets {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "packet %q\n", ma.Names[i])
		dumpDesc(bw, p.Desc, comments, 1)
		if comments {
			bw.WriteString("# data\n")
		}
		if err := dumpData(bw, p.Desc, p.Data, comments); err != nil {
			return err
		}
	}
	for _, h := range ma.History {
		fmt.Fprintf(bw, "history: %s\n", h)
	}
	return flushDump(bw)
}

func flushDump(bw *bufio.Writer) error {
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	return nil
}

func dumpData(bw *bufio.Writer, desc *PacketDesc, data []byte, comments bool) error {
	w := walker{
		paths: comments,
		leaf: func(path string, e *ElemDesc, b []byte) error {
			v := FormatValue(e, b)
			if comments {
				bw.WriteString(path)
				bw.WriteString(": ")
			}
			bw.WriteString(v)
			bw.WriteByte('\n')
			return nil
		},
	}
	if comments {
		w.array = func(path string, e *ElemDesc, count uint64) error {
			fmt.Fprintf(bw, "# %s: array %s of %d-element packet, %d cells (dims: %s)\n",
				path, shapeString(e.Array), len(e.Array.Packet.Elements), count, dimList(e.Array))
			return nil
		}
	}
	return w.packet(desc, data, "")
}

func dumpDesc(bw *bufio.Writer, p *PacketDesc, comments bool, depth int) {
	indent := strings.Repeat("  ", depth)
	if comments {
		size, _ := PacketSize(p)
		fmt.Fprintf(bw, "%s# packet: %d elements, %d bytes\n", indent, len(p.Elements), size)
	}
	for i := range p.Elements {
		e := &p.Elements[i]
		name := displayName(e.Name, i)
		switch e.Type {
		case TypeFString:
			fmt.Fprintf(bw, "%s%s[%d] %s\n", indent, e.Type, e.Length, name)
		case TypeArray:
			fmt.Fprintf(bw, "%s%s %s %s\n", indent, e.Type, name, shapeString(e.Array))
			if comments {
				for d, dim := range e.Array.Dims {
					fmt.Fprintf(bw, "%s  # dim %d %s: length %d%s\n", indent, d, dimName(dim, d), dim.Length, coordRange(dim))
				}
			}
			dumpDesc(bw, e.Array.Packet, comments, depth+1)
		default:
			fmt.Fprintf(bw, "%s%s %s\n", indent, e.Type, name)
		}
	}
}

// FormatValue renders one leaf in its natural decimal form. Floats always carry
// a decimal point or an exponent; fixed strings are quoted with trailing NULs
// removed.
func FormatValue(e *ElemDesc, b []byte) string {
	switch {
	case e.Type == TypeFString:
		return strconv.Quote(GetFString(b))
	case e.Type.Float():
		v, _ := GetFloat64(b, e.Type)
		bits := 64
		if e.Type == TypeFloat {
			bits = 32
		}
		return formatFloat(v, bits)
	case e.Type.Signed():
		v, _ := GetInt64(b, e.Type)
		return strconv.FormatInt(v, 10)
	default:
		v, _ := GetUint64(b, e.Type)
		return strconv.FormatUint(v, 10)
	}
}

func formatFloat(v float64, bits int) string {
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}

func shapeString(a *ArrayDesc) string {
	var sb strings.Builder
	for _, d := range a.Dims {
		sb.WriteByte('[')
		sb.WriteString(strconv.FormatUint(d.Length, 10))
		sb.WriteByte(']')
	}
	return sb.String()
}

func dimList(a *ArrayDesc) string {
	parts := make([]string, len(a.Dims))
	for i, d := range a.Dims {
		parts[i] = dimName(d, i) + "=" + strconv.FormatUint(d.Length, 10)
	}
	return strings.Join(parts, ", ")
}

func dimName(d DimDesc, i int) string {
	if d.Name == "" {
		return "d" + strconv.Itoa(i)
	}
	return d.Name
}

func coordRange(d DimDesc) string {
	if len(d.Coords) == 0 {
		return ""
	}
	return fmt.Sprintf(", coords %s .. %s", formatFloat(d.Coords[0], 64), formatFloat(d.Coords[len(d.Coords)-1], 64))
}
