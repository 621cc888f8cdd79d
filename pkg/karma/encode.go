package karma

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

var wire = binary.BigEndian

// encoder writes the canonical big-endian wire form. The first error is kept and
// every later call becomes a no-op.
type encoder struct {
	w   *bufio.Writer
	err error
	buf [8]byte
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriter(w)}
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	if _, err := e.w.Write(p); err != nil {
		e.err = fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.write(e.buf[:1])
}

func (e *encoder) u16(v uint16) {
	wire.PutUint16(e.buf[:2], v)
	e.write(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	wire.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	wire.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

func (e *encoder) f64(v float64) {
	e.u64(math.Float64bits(v))
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.err != nil || len(s) == 0 {
		return
	}
	if _, err := e.w.WriteString(s); err != nil {
		e.err = fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
}

func (e *encoder) flush() error {
	if e.err != nil {
		return e.err
	}
	if err := e.w.Flush(); err != nil {
		e.err = fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	return e.err
}

func (e *encoder) packetDesc(p *PacketDesc) {
	e.u32(uint32(len(p.Elements)))
	for i := range p.Elements {
		el := &p.Elements[i]
		e.u32(uint32(el.Type))
		e.str(el.Name)
		switch el.Type {
		case TypeFString:
			e.u32(uint32(el.Length))
		case TypeArray:
			e.arrayDesc(el.Array)
		}
	}
}

func (e *encoder) arrayDesc(a *ArrayDesc) {
	e.u32(uint32(len(a.Dims)))
	for _, d := range a.Dims {
		e.u64(d.Length)
		e.str(d.Name)
		if d.Coords == nil {
			e.u8(0)
			continue
		}
		e.u8(1)
		for _, c := range d.Coords {
			e.f64(c)
		}
	}
	e.packetDesc(a.Packet)
}

// leaf converts one element from host order to wire order.
func (e *encoder) leaf(_ string, el *ElemDesc, b []byte) error {
	switch len(b) {
	case 0:
	case 1:
		e.write(b)
	default:
		switch el.Type.Size() {
		case 2:
			e.u16(host.Uint16(b))
		case 4:
			e.u32(host.Uint32(b))
		case 8:
			e.u64(host.Uint64(b))
		default:
			e.write(b)
		}
	}
	return e.err
}

func (e *encoder) packetData(p *PacketDesc, data []byte) error {
	w := walker{leaf: e.leaf}
	return w.packet(p, data, "")
}
