// Package export renders Karma multi-arrays as JSON.
//
// Each packet becomes an object holding its schema and its data. Data objects
// keep element order. Arrays become nested JSON arrays, outermost dimension
// first, whose innermost items are cell objects. NaN and infinities, which JSON
// cannot carry as numbers, are rendered as the strings "NaN", "+Inf" and "-Inf".
package export

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/samcharles93/karma/internal/schema"
	"github.com/samcharles93/karma/pkg/karma"
)

// maxEmptyCells bounds the JSON values produced for array cells that carry no
// bytes.
const maxEmptyCells = 1 << 20

// Document is the JSON form of a multi-array.
type Document struct {
	Packets []Packet `json:"packets"`
	History []string `json:"history,omitempty"`
}

// Packet is the JSON form of one named packet.
type Packet struct {
	Name   string           `json:"name"`
	Schema []schema.Element `json:"schema"`
	Data   Object           `json:"data"`
}

// Field is one key of an Object.
type Field struct {
	Key   string
	Value any
}

// Object is a JSON object that keeps its keys in order.
type Object []Field

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Build converts ma to its JSON document form.
func Build(ma *karma.MultiArray) (*Document, error) {
	if err := ma.Validate(); err != nil {
		return nil, err
	}
	doc := &Document{History: ma.History}
	for i, p := range ma.Packets {
		data, err := PacketData(p.Desc, p.Data)
		if err != nil {
			return nil, fmt.Errorf("packet %q: %w", ma.Names[i], err)
		}
		doc.Packets = append(doc.Packets, Packet{
			Name:   ma.Names[i],
			Schema: schema.FromDesc(ma.Names[i], p.Desc).Elements,
			Data:   data,
		})
	}
	return doc, nil
}

// Marshal renders ma as JSON, indented when indent is set.
func Marshal(ma *karma.MultiArray, indent bool) ([]byte, error) {
	doc, err := Build(ma)
	if err != nil {
		return nil, err
	}
	if indent {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// Write renders ma as indented JSON to w.
func Write(w io.Writer, ma *karma.MultiArray) error {
	doc, err := Build(ma)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// PacketData converts one packet's data to an ordered object keyed by element
// name. Unnamed elements are keyed "#i" by position.
func PacketData(desc *karma.PacketDesc, data []byte) (Object, error) {
	l, err := karma.LayoutOf(desc)
	if err != nil {
		return nil, err
	}
	if len(data) != l.Size {
		return nil, fmt.Errorf("%w: data is %d bytes, descriptor needs %d", karma.ErrStructure, len(data), l.Size)
	}
	obj := make(Object, 0, len(desc.Elements))
	for i := range desc.Elements {
		e := &desc.Elements[i]
		b := data[l.Offsets[i] : l.Offsets[i]+l.Sizes[i]]
		key := e.Name
		if key == "" {
			key = "#" + strconv.Itoa(i)
		}
		var v any
		if e.Type == karma.TypeArray {
			v, err = arrayValue(e.Array, b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		} else {
			v = leafValue(e, b)
		}
		obj = append(obj, Field{Key: key, Value: v})
	}
	return obj, nil
}

func leafValue(e *karma.ElemDesc, b []byte) any {
	switch {
	case e.Type == karma.TypeFString:
		return karma.GetFString(b)
	case e.Type.Float():
		f, _ := karma.GetFloat64(b, e.Type)
		bits := 64
		if e.Type == karma.TypeFloat {
			bits = 32
		}
		return floatValue(f, bits)
	case e.Type.Signed():
		v, _ := karma.GetInt64(b, e.Type)
		return v
	default:
		v, _ := karma.GetUint64(b, e.Type)
		return v
	}
}

func floatValue(f float64, bits int) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, bits))
}

func arrayValue(a *karma.ArrayDesc, b []byte) (any, error) {
	count, err := a.Count()
	if err != nil {
		return nil, err
	}
	stride, err := karma.PacketSize(a.Packet)
	if err != nil {
		return nil, err
	}
	// Cells backed by data are bounded by len(b). Empty cells and the empty
	// arrays of a zero-length dimension are not, so cap them.
	if stride == 0 && count > maxEmptyCells {
		return nil, fmt.Errorf("%w: %d empty cells exceed export limit %d", karma.ErrStructure, count, maxEmptyCells)
	}
	if count == 0 {
		if n := shellSize(a.Lengths()); n > maxEmptyCells {
			return nil, fmt.Errorf("%w: %d empty arrays exceed export limit %d", karma.ErrStructure, n, maxEmptyCells)
		}
	}
	cells := make([]any, count)
	for c := range cells {
		obj, err := PacketData(a.Packet, b[c*stride:(c+1)*stride])
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", c, err)
		}
		cells[c] = obj
	}
	return nest(cells, a.Lengths()), nil
}

// shellSize counts the JSON arrays nest builds for lengths that contain a zero.
func shellSize(lengths []uint64) uint64 {
	n, total := uint64(1), uint64(0)
	for _, l := range lengths {
		if l == 0 {
			break
		}
		if n > maxEmptyCells/l {
			return maxEmptyCells + 1
		}
		n *= l
		total += n
	}
	return total
}

// nest folds a row-major cell list into one JSON array level per dimension.
func nest(cells []any, lengths []uint64) []any {
	if len(lengths) == 1 {
		return cells
	}
	n := int(lengths[0])
	chunk := 0
	if n > 0 {
		chunk = len(cells) / n
	}
	out := make([]any, n)
	for i := range out {
		out[i] = nest(cells[i*chunk:(i+1)*chunk], lengths[1:])
	}
	return out
}
