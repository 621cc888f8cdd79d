package karma

import (
	"errors"
	"fmt"
	"io"
	"math"
)

const maxDims = 64

// decoder reads the canonical wire form straight from the stream. It never reads
// past the structure it decodes, so consecutive calls on one stream line up.
type decoder struct {
	r        io.Reader
	buf      [8]byte
	maxBytes int64
	maxDepth int
}

func (d *decoder) readFull(p []byte) error {
	if _, err := io.ReadFull(d.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	return nil
}

func (d *decoder) u8() (uint8, error) {
	if err := d.readFull(d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.readFull(d.buf[:4]); err != nil {
		return 0, err
	}
	return wire.Uint32(d.buf[:4]), nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.readFull(d.buf[:8]); err != nil {
		return 0, err
	}
	return wire.Uint64(d.buf[:8]), nil
}

func (d *decoder) f64() (float64, error) {
	v, err := d.u64()
	return math.Float64frombits(v), err
}

func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > maxNameLen {
		return "", fmt.Errorf("%w: string length %d exceeds %d", ErrFormat, n, maxNameLen)
	}
	b := make([]byte, n)
	if err := d.readFull(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) packetDesc(depth int) (*PacketDesc, error) {
	if depth > d.maxDepth {
		return nil, fmt.Errorf("%w: array nesting exceeds %d", ErrFormat, d.maxDepth)
	}
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n > maxElements {
		return nil, fmt.Errorf("%w: element count %d exceeds %d", ErrFormat, n, maxElements)
	}
	p := &PacketDesc{Elements: make([]ElemDesc, 0, min(n, 64))}
	for i := range int(n) {
		p.Elements = append(p.Elements, ElemDesc{})
		el := &p.Elements[i]
		tag, err := d.u32()
		if err != nil {
			return nil, err
		}
		el.Type = ElemType(tag)
		if el.Type >= NumTypes {
			return nil, fmt.Errorf("%w: element %d has ui-only type %s", ErrFormat, i, el.Type)
		}
		if !el.Type.Valid() {
			return nil, fmt.Errorf("%w: element %d has unknown type tag %d", ErrFormat, i, tag)
		}
		if el.Name, err = d.str(); err != nil {
			return nil, err
		}
		switch el.Type {
		case TypeFString:
			length, err := d.u32()
			if err != nil {
				return nil, err
			}
			if length == 0 || int64(length) > d.maxBytes {
				return nil, fmt.Errorf("%w: fixed string %q has length %d", ErrFormat, el.Name, length)
			}
			el.Length = int(length)
		case TypeArray:
			if el.Array, err = d.arrayDesc(depth); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (d *decoder) arrayDesc(depth int) (*ArrayDesc, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxDims {
		return nil, fmt.Errorf("%w: dimension count %d", ErrFormat, n)
	}
	a := &ArrayDesc{Dims: make([]DimDesc, n)}
	for i := range a.Dims {
		dim := &a.Dims[i]
		if dim.Length, err = d.u64(); err != nil {
			return nil, err
		}
		if dim.Name, err = d.str(); err != nil {
			return nil, err
		}
		flag, err := d.u8()
		if err != nil {
			return nil, err
		}
		switch flag {
		case 0:
		case 1:
			if dim.Length > uint64(d.maxBytes/8) {
				return nil, fmt.Errorf("%w: %d coordinates for dimension %q", ErrFormat, dim.Length, dim.Name)
			}
			dim.Coords = make([]float64, 0, min(dim.Length, 4096))
			for range dim.Length {
				c, err := d.f64()
				if err != nil {
					return nil, err
				}
				dim.Coords = append(dim.Coords, c)
			}
		default:
			return nil, fmt.Errorf("%w: coordinate flag %d for dimension %q", ErrFormat, flag, dim.Name)
		}
	}
	count, err := a.Count()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if count > maxCells || int64(count) > d.maxBytes {
		return nil, fmt.Errorf("%w: array of %d cells exceeds limit %d", ErrFormat, count, min(d.maxBytes, maxCells))
	}
	if a.Packet, err = d.packetDesc(depth + 1); err != nil {
		return nil, err
	}
	return a, nil
}

// sizeOf converts structural size failures on a decoded descriptor into format
// errors and applies the byte limit.
func (d *decoder) sizeOf(p *PacketDesc) (int, error) {
	n, err := PacketSize(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if int64(n) > d.maxBytes {
		return 0, fmt.Errorf("%w: packet data of %d bytes exceeds limit %d", ErrFormat, n, d.maxBytes)
	}
	return n, nil
}

// packetData reads the whole data region in one call and then converts every
// leaf from wire order to host order in place.
func (d *decoder) packetData(p *PacketDesc) ([]byte, error) {
	n, err := d.sizeOf(p)
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if err := d.readFull(data); err != nil {
		return nil, err
	}
	w := walker{leaf: toHost}
	if err := w.packet(p, data, ""); err != nil {
		return nil, err
	}
	return data, nil
}

func toHost(_ string, el *ElemDesc, b []byte) error {
	switch el.Type.Size() {
	case 2:
		host.PutUint16(b, wire.Uint16(b))
	case 4:
		host.PutUint32(b, wire.Uint32(b))
	case 8:
		host.PutUint64(b, wire.Uint64(b))
	}
	return nil
}
