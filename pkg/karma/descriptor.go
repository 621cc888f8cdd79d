package karma

import (
	"fmt"
	"math"
	"math/bits"
	"slices"
)

// PacketDesc describes one packet (record) as an ordered list of elements.
// Element order defines both the in-memory and the on-wire layout.
type PacketDesc struct {
	Elements []ElemDesc
}

// ElemDesc describes one element of a packet.
type ElemDesc struct {
	Type ElemType
	Name string

	// Length is the declared byte length of a TypeFString element.
	Length int

	// Array is set exactly when Type is TypeArray.
	Array *ArrayDesc
}

// ArrayDesc describes an N-dimensional array of packets sharing one descriptor.
// The first dimension varies slowest.
type ArrayDesc struct {
	Dims   []DimDesc
	Packet *PacketDesc
}

// DimDesc describes one array dimension. Coords, when present, holds one
// coordinate per index; ordering and uniqueness are not checked.
type DimDesc struct {
	Length uint64
	Name   string
	Coords []float64
}

// NewPacketDesc builds a packet descriptor from elements in order.
func NewPacketDesc(elems ...ElemDesc) *PacketDesc {
	return &PacketDesc{Elements: elems}
}

// Scalar describes a numeric element.
func Scalar(t ElemType, name string) ElemDesc {
	return ElemDesc{Type: t, Name: name}
}

// FString describes a fixed-length string element of length bytes.
func FString(name string, length int) ElemDesc {
	return ElemDesc{Type: TypeFString, Name: name, Length: length}
}

// ArrayOf describes an array element whose cells are packets described by packet.
func ArrayOf(name string, packet *PacketDesc, dims ...DimDesc) ElemDesc {
	return ElemDesc{
		Type:  TypeArray,
		Name:  name,
		Array: &ArrayDesc{Dims: dims, Packet: packet},
	}
}

// Dim describes a dimension without coordinates.
func Dim(name string, length uint64) DimDesc {
	return DimDesc{Length: length, Name: name}
}

// DimWithCoords describes a dimension with one coordinate per index.
func DimWithCoords(name string, coords []float64) DimDesc {
	return DimDesc{Length: uint64(len(coords)), Name: name, Coords: coords}
}

// Find returns the index of the named element, or -1.
func (p *PacketDesc) Find(name string) int {
	if p == nil {
		return -1
	}
	for i := range p.Elements {
		if p.Elements[i].Name == name {
			return i
		}
	}
	return -1
}

// Count returns the number of cells in the array, the product of all dimension lengths.
func (a *ArrayDesc) Count() (uint64, error) {
	if a == nil || len(a.Dims) == 0 {
		return 0, fmt.Errorf("%w: array has no dimensions", ErrStructure)
	}
	n := uint64(1)
	for i, d := range a.Dims {
		hi, lo := bits.Mul64(n, d.Length)
		if hi != 0 || lo > math.MaxInt {
			return 0, fmt.Errorf("%w: dimension %d overflows element count", ErrStructure, i)
		}
		n = lo
	}
	return n, nil
}

// Lengths returns the dimension lengths in order.
func (a *ArrayDesc) Lengths() []uint64 {
	out := make([]uint64, len(a.Dims))
	for i, d := range a.Dims {
		out[i] = d.Length
	}
	return out
}

// Validate checks the descriptor tree: known type tags, array descriptors present
// exactly on array elements, at least one dimension per array, coordinate lists
// matching their dimension, positive fixed-string lengths, no overflowing sizes
// and no packet that contains itself.
func (p *PacketDesc) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil packet descriptor", ErrStructure)
	}
	if err := validatePacket(p, make(map[*PacketDesc]bool), ""); err != nil {
		return err
	}
	if _, err := PacketSize(p); err != nil {
		return err
	}
	return nil
}

func validatePacket(p *PacketDesc, onPath map[*PacketDesc]bool, path string) error {
	if onPath[p] {
		return fmt.Errorf("%w: packet %q contains itself", ErrStructure, pathOrRoot(path))
	}
	onPath[p] = true
	defer delete(onPath, p)

	for i := range p.Elements {
		e := &p.Elements[i]
		epath := joinPath(path, e.Name, i)
		if err := checkName("element", e.Name); err != nil {
			return err
		}
		if !e.Type.Valid() {
			return fmt.Errorf("%w: element %q has invalid type %s", ErrStructure, epath, e.Type)
		}
		if e.Type != TypeArray && e.Array != nil {
			return fmt.Errorf("%w: element %q of type %s carries an array descriptor", ErrStructure, epath, e.Type)
		}
		if e.Type == TypeFString {
			if e.Length <= 0 {
				return fmt.Errorf("%w: element %q has fixed string length %d", ErrStructure, epath, e.Length)
			}
		} else if e.Length != 0 {
			return fmt.Errorf("%w: element %q of type %s declares a length", ErrStructure, epath, e.Type)
		}
		if e.Type != TypeArray {
			continue
		}
		a := e.Array
		if a == nil {
			return fmt.Errorf("%w: array element %q has no array descriptor", ErrStructure, epath)
		}
		if len(a.Dims) == 0 {
			return fmt.Errorf("%w: array element %q has no dimensions", ErrStructure, epath)
		}
		for d, dim := range a.Dims {
			if err := checkName("dimension", dim.Name); err != nil {
				return fmt.Errorf("array element %q: %w", epath, err)
			}
			if dim.Coords != nil && uint64(len(dim.Coords)) != dim.Length {
				return fmt.Errorf("%w: array element %q dimension %d has %d coordinates for length %d",
					ErrStructure, epath, d, len(dim.Coords), dim.Length)
			}
		}
		count, err := a.Count()
		if err != nil {
			return fmt.Errorf("array element %q: %w", epath, err)
		}
		if count > maxCells {
			return fmt.Errorf("%w: array element %q has %d cells, limit is %d", ErrStructure, epath, count, uint64(maxCells))
		}
		if a.Packet == nil {
			return fmt.Errorf("%w: array element %q has no packet descriptor", ErrStructure, epath)
		}
		if err := validatePacket(a.Packet, onPath, epath); err != nil {
			return err
		}
	}
	return nil
}

// checkName rejects strings the reader would refuse on the wire.
func checkName(what, s string) error {
	if len(s) > maxNameLen {
		return fmt.Errorf("%w: %s name of %d bytes exceeds %d", ErrStructure, what, len(s), maxNameLen)
	}
	return nil
}

// Compatible reports whether a and b describe the same layout: equal element
// counts, equal type tags in order, equal fixed-string lengths, and arrays with
// the same dimension lengths over compatible packets. Names and coordinates are
// ignored.
func Compatible(a, b *PacketDesc) bool {
	return compareDesc(a, b, false)
}

// Equal reports whether a and b are Compatible and also agree on every element
// name, dimension name and coordinate.
func Equal(a, b *PacketDesc) bool {
	return compareDesc(a, b, true)
}

func compareDesc(a, b *PacketDesc, strict bool) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.Elements) != len(b.Elements) {
		return false
	}
	for i := range a.Elements {
		ea, eb := &a.Elements[i], &b.Elements[i]
		if ea.Type != eb.Type || ea.Length != eb.Length {
			return false
		}
		if strict && ea.Name != eb.Name {
			return false
		}
		if ea.Type != TypeArray {
			continue
		}
		if ea.Array == nil || eb.Array == nil {
			if ea.Array != eb.Array {
				return false
			}
			continue
		}
		if len(ea.Array.Dims) != len(eb.Array.Dims) {
			return false
		}
		for d := range ea.Array.Dims {
			da, db := ea.Array.Dims[d], eb.Array.Dims[d]
			if da.Length != db.Length {
				return false
			}
			if strict && (da.Name != db.Name || !slices.Equal(da.Coords, db.Coords)) {
				return false
			}
		}
		if !compareDesc(ea.Array.Packet, eb.Array.Packet, strict) {
			return false
		}
	}
	return true
}

// mismatch describes the first difference that makes a and b incompatible.
func mismatch(a, b *PacketDesc, path string) string {
	if len(a.Elements) != len(b.Elements) {
		return fmt.Sprintf("packet %q has %d elements, expected %d", pathOrRoot(path), len(a.Elements), len(b.Elements))
	}
	for i := range a.Elements {
		ea, eb := &a.Elements[i], &b.Elements[i]
		epath := joinPath(path, ea.Name, i)
		switch {
		case ea.Type != eb.Type:
			return fmt.Sprintf("element %q is %s, expected %s", epath, ea.Type, eb.Type)
		case ea.Length != eb.Length:
			return fmt.Sprintf("element %q has length %d, expected %d", epath, ea.Length, eb.Length)
		case ea.Type != TypeArray:
			continue
		case len(ea.Array.Dims) != len(eb.Array.Dims):
			return fmt.Sprintf("array %q has %d dimensions, expected %d", epath, len(ea.Array.Dims), len(eb.Array.Dims))
		}
		for d := range ea.Array.Dims {
			if ea.Array.Dims[d].Length != eb.Array.Dims[d].Length {
				return fmt.Sprintf("array %q dimension %d has length %d, expected %d",
					epath, d, ea.Array.Dims[d].Length, eb.Array.Dims[d].Length)
			}
		}
		if s := mismatch(ea.Array.Packet, eb.Array.Packet, epath); s != "" {
			return s
		}
	}
	return ""
}

func joinPath(path, name string, index int) string {
	if name == "" {
		name = fmt.Sprintf("#%d", index)
	}
	if path == "" {
		return name
	}
	return path + "." + name
}

func pathOrRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
