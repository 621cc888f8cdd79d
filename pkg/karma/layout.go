package karma

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxDescDepth stops size computations on descriptors that were never validated.
const maxDescDepth = 1024

// ElemSize returns the number of bytes e occupies inside its packet.
func ElemSize(e *ElemDesc) (int, error) {
	return elemSize(e, 0)
}

// PacketSize returns the number of bytes one packet instance occupies. Arrays are
// stored inline, so nested packets are re-walked to size them.
func PacketSize(p *PacketDesc) (int, error) {
	return packetSize(p, 0)
}

func packetSize(p *PacketDesc, depth int) (int, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: nil packet descriptor", ErrStructure)
	}
	if depth > maxDescDepth {
		return 0, fmt.Errorf("%w: descriptor nesting exceeds %d", ErrStructure, maxDescDepth)
	}
	total := 0
	for i := range p.Elements {
		n, err := elemSize(&p.Elements[i], depth)
		if err != nil {
			return 0, err
		}
		if total > math.MaxInt-n {
			return 0, fmt.Errorf("%w: packet size overflow", ErrStructure)
		}
		total += n
	}
	return total, nil
}

func elemSize(e *ElemDesc, depth int) (int, error) {
	switch {
	case e.Type.Numeric():
		return e.Type.Size(), nil
	case e.Type == TypeFString:
		if e.Length <= 0 {
			return 0, fmt.Errorf("%w: fixed string %q has length %d", ErrStructure, e.Name, e.Length)
		}
		return e.Length, nil
	case e.Type == TypeArray:
		if e.Array == nil {
			return 0, fmt.Errorf("%w: array element %q has no array descriptor", ErrStructure, e.Name)
		}
		count, err := e.Array.Count()
		if err != nil {
			return 0, err
		}
		stride, err := packetSize(e.Array.Packet, depth+1)
		if err != nil {
			return 0, err
		}
		if stride != 0 && count > uint64(math.MaxInt/stride) {
			return 0, fmt.Errorf("%w: array %q size overflow", ErrStructure, e.Name)
		}
		return int(count) * stride, nil
	default:
		return 0, fmt.Errorf("%w: element %q has invalid type %s", ErrStructure, e.Name, e.Type)
	}
}

// Layout holds the byte offsets of a packet's elements.
type Layout struct {
	Offsets []int
	Sizes   []int
	Size    int

	// Flat is set when the packet holds no arrays, so every instance is a
	// fixed run of leaf values.
	Flat bool
}

// LayoutOf computes the element offsets of p.
func LayoutOf(p *PacketDesc) (*Layout, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil packet descriptor", ErrStructure)
	}
	l := &Layout{
		Offsets: make([]int, len(p.Elements)),
		Sizes:   make([]int, len(p.Elements)),
		Flat:    true,
	}
	for i := range p.Elements {
		n, err := ElemSize(&p.Elements[i])
		if err != nil {
			return nil, err
		}
		if p.Elements[i].Type == TypeArray {
			l.Flat = false
		}
		if l.Size > math.MaxInt-n {
			return nil, fmt.Errorf("%w: packet size overflow", ErrStructure)
		}
		l.Offsets[i] = l.Size
		l.Sizes[i] = n
		l.Size += n
	}
	return l, nil
}

// NewData allocates a zeroed blob for one instance of p.
func NewData(p *PacketDesc) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n, err := PacketSize(p)
	if err != nil {
		return nil, err
	}
	return make([]byte, n), nil
}

// leafFunc is called for every leaf element in traversal order. b is exactly the
// element's bytes within the blob. path is only built when requested.
type leafFunc func(path string, e *ElemDesc, b []byte) error

// arrayFunc is called before the cells of an array are visited.
type arrayFunc func(path string, e *ElemDesc, count uint64) error

// walker performs the depth-first, pre-order, row-major traversal shared by the
// writer, the reader and the dump formatter.
type walker struct {
	leaf  leafFunc
	array arrayFunc
	paths bool
}

func (w *walker) packet(p *PacketDesc, data []byte, prefix string) error {
	off := 0
	for i := range p.Elements {
		e := &p.Elements[i]
		n, err := ElemSize(e)
		if err != nil {
			return err
		}
		if off+n > len(data) {
			return fmt.Errorf("%w: data too short for element %q", ErrStructure, e.Name)
		}
		b := data[off : off+n]
		off += n

		var path string
		if w.paths {
			path = prefix + displayName(e.Name, i)
		}
		if e.Type != TypeArray {
			if err := w.leaf(path, e, b); err != nil {
				return err
			}
			continue
		}
		if err := w.arrayCells(e, b, path); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) arrayCells(e *ElemDesc, b []byte, path string) error {
	count, err := e.Array.Count()
	if err != nil {
		return err
	}
	if w.array != nil {
		if err := w.array(path, e, count); err != nil {
			return err
		}
	}
	// Cells of zero bytes hold no leaves.
	if count == 0 || len(b) == 0 {
		return nil
	}
	stride := len(b) / int(count)
	lengths := e.Array.Lengths()
	idx := make([]uint64, len(lengths))
	for c := uint64(0); c < count; c++ {
		var prefix string
		if w.paths {
			prefix = path + indexSuffix(idx) + "."
		}
		cell := b[int(c)*stride : int(c+1)*stride]
		if err := w.packet(e.Array.Packet, cell, prefix); err != nil {
			return err
		}
		nextIndex(idx, lengths)
	}
	return nil
}

// nextIndex advances idx in row-major order: the last dimension varies fastest.
func nextIndex(idx, lengths []uint64) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < lengths[d] {
			return
		}
		idx[d] = 0
	}
}

func indexSuffix(idx []uint64) string {
	var sb strings.Builder
	for _, i := range idx {
		sb.WriteByte('[')
		sb.WriteString(strconv.FormatUint(i, 10))
		sb.WriteByte(']')
	}
	return sb.String()
}

func displayName(name string, index int) string {
	if name == "" {
		return "#" + strconv.Itoa(index)
	}
	return name
}

func checkData(p *PacketDesc, data []byte) error {
	n, err := PacketSize(p)
	if err != nil {
		return err
	}
	if len(data) != n {
		return fmt.Errorf("%w: data is %d bytes, descriptor needs %d", ErrStructure, len(data), n)
	}
	return nil
}
