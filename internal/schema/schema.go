// Package schema reads and writes YAML descriptions of Karma multi-arrays.
//
// A schema file lists packets by name, each with its elements:
//
//	packets:
//	  - name: image
//	    elements:
//	      - {name: x, type: int}
//	      - {name: label, type: fstring, length: 16}
//	      - name: grid
//	        type: array
//	        dims:
//	          - {name: y, length: 2}
//	          - {name: x, coords: [0.0, 0.5, 1.0]}
//	        elements:
//	          - {name: v, type: double}
//	history:
//	  - created from schema
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/karma/pkg/karma"
)

// ErrSchema reports a schema file that does not describe valid packets.
var ErrSchema = errors.New("schema: invalid schema")

// File is the YAML form of a multi-array's structure.
type File struct {
	Packets []Packet `yaml:"packets" json:"packets"`
	History []string `yaml:"history,omitempty" json:"history,omitempty"`
}

// Packet is one named packet.
type Packet struct {
	Name     string    `yaml:"name" json:"name"`
	Elements []Element `yaml:"elements" json:"elements"`
}

// Element is one packet element. Dims and Elements are used by arrays only and
// Length by fixed strings only.
type Element struct {
	Name     string    `yaml:"name" json:"name"`
	Type     string    `yaml:"type" json:"type"`
	Length   int       `yaml:"length,omitempty" json:"length,omitempty"`
	Dims     []Dim     `yaml:"dims,omitempty" json:"dims,omitempty"`
	Elements []Element `yaml:"elements,omitempty" json:"elements,omitempty"`
}

// Dim is one array dimension. When Coords is given, Length may be omitted.
type Dim struct {
	Name   string    `yaml:"name,omitempty" json:"name,omitempty"`
	Length uint64    `yaml:"length,omitempty" json:"length"`
	Coords []float64 `yaml:"coords,omitempty,flow" json:"coords,omitempty"`
}

// Parse decodes a schema document. Unknown keys are rejected.
func Parse(b []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if len(f.Packets) == 0 {
		return nil, fmt.Errorf("%w: no packets", ErrSchema)
	}
	return &f, nil
}

// Load reads and parses the schema file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Marshal encodes f as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Desc converts one packet to a validated descriptor.
func (p *Packet) Desc() (*karma.PacketDesc, error) {
	desc, err := packetDesc(p.Elements, p.Name)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("packet %q: %w", p.Name, err)
	}
	return desc, nil
}

func packetDesc(elems []Element, path string) (*karma.PacketDesc, error) {
	desc := &karma.PacketDesc{Elements: make([]karma.ElemDesc, 0, len(elems))}
	for _, e := range elems {
		epath := path + "." + e.Name
		typ, ok := karma.ParseElemType(e.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown type %q", ErrSchema, epath, e.Type)
		}
		if typ != karma.TypeArray && (len(e.Dims) > 0 || len(e.Elements) > 0) {
			return nil, fmt.Errorf("%w: %s: only arrays have dims and elements", ErrSchema, epath)
		}
		switch typ {
		case karma.TypeFString:
			desc.Elements = append(desc.Elements, karma.FString(e.Name, e.Length))
		case karma.TypeArray:
			if len(e.Dims) == 0 {
				return nil, fmt.Errorf("%w: %s: array without dims", ErrSchema, epath)
			}
			dims := make([]karma.DimDesc, len(e.Dims))
			for i, d := range e.Dims {
				dim, err := d.desc()
				if err != nil {
					return nil, fmt.Errorf("%s: dim %d: %w", epath, i, err)
				}
				dims[i] = dim
			}
			sub, err := packetDesc(e.Elements, epath)
			if err != nil {
				return nil, err
			}
			desc.Elements = append(desc.Elements, karma.ArrayOf(e.Name, sub, dims...))
		default:
			if e.Length != 0 {
				return nil, fmt.Errorf("%w: %s: length is only valid for fstring", ErrSchema, epath)
			}
			desc.Elements = append(desc.Elements, karma.Scalar(typ, e.Name))
		}
	}
	return desc, nil
}

func (d Dim) desc() (karma.DimDesc, error) {
	if d.Coords == nil {
		return karma.Dim(d.Name, d.Length), nil
	}
	if d.Length != 0 && d.Length != uint64(len(d.Coords)) {
		return karma.DimDesc{}, fmt.Errorf("%w: length %d with %d coords", ErrSchema, d.Length, len(d.Coords))
	}
	return karma.DimWithCoords(d.Name, d.Coords), nil
}

// MultiArray builds a zero-filled multi-array with every packet of f.
func (f *File) MultiArray() (*karma.MultiArray, error) {
	ma := karma.NewMultiArray()
	for i := range f.Packets {
		p := &f.Packets[i]
		desc, err := p.Desc()
		if err != nil {
			return nil, err
		}
		data, err := karma.NewData(desc)
		if err != nil {
			return nil, fmt.Errorf("packet %q: %w", p.Name, err)
		}
		if err := ma.Add(p.Name, desc, data); err != nil {
			return nil, err
		}
	}
	for _, h := range f.History {
		ma.AppendHistory(h)
	}
	return ma, nil
}

// FromMultiArray describes the structure of ma. Data is not included.
func FromMultiArray(ma *karma.MultiArray) *File {
	f := &File{History: append([]string(nil), ma.History...)}
	for i, p := range ma.Packets {
		f.Packets = append(f.Packets, Packet{Name: ma.Names[i], Elements: elements(p.Desc)})
	}
	return f
}

// FromDesc describes a single packet.
func FromDesc(name string, desc *karma.PacketDesc) Packet {
	return Packet{Name: name, Elements: elements(desc)}
}

func elements(desc *karma.PacketDesc) []Element {
	out := make([]Element, 0, len(desc.Elements))
	for _, e := range desc.Elements {
		el := Element{Name: e.Name, Type: e.Type.String(), Length: e.Length}
		if e.Type == karma.TypeArray && e.Array != nil {
			for _, d := range e.Array.Dims {
				el.Dims = append(el.Dims, Dim{Name: d.Name, Length: d.Length, Coords: append([]float64(nil), d.Coords...)})
			}
			el.Elements = elements(e.Array.Packet)
		}
		out = append(out, el)
	}
	return out
}
