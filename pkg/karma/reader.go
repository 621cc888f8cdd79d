package karma

import (
	"bytes"
	"fmt"
	"io"
)

// ReaderOptions bounds what a Reader accepts from an untrusted stream.
// Zero values select DefaultMaxBytes and DefaultMaxDepth.
type ReaderOptions struct {
	MaxBytes int64
	MaxDepth int
}

// Reader decodes descriptors and data from a stream. It reads exactly the bytes
// of each structure, so several calls may be made on one stream in sequence.
//
// On any error the Reader returns no descriptor and no data. After ErrFormat or
// ErrStreamIO the stream position is undefined and the stream should be closed.
type Reader struct {
	dec decoder
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Reader{dec: decoder{r: r, maxBytes: opts.MaxBytes, maxDepth: opts.MaxDepth}}
}

// ReadDesc reads a packet descriptor.
func (r *Reader) ReadDesc() (*PacketDesc, error) {
	p, err := r.dec.packetDesc(0)
	if err != nil {
		return nil, err
	}
	if _, err := r.dec.sizeOf(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadData reads the data of one packet described by desc.
func (r *Reader) ReadData(desc *PacketDesc) ([]byte, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return r.dec.packetData(desc)
}

// ReadPacket reads a descriptor and the data that follows it.
func (r *Reader) ReadPacket() (*PacketDesc, []byte, error) {
	desc, err := r.ReadDesc()
	if err != nil {
		return nil, nil, err
	}
	data, err := r.dec.packetData(desc)
	if err != nil {
		return nil, nil, err
	}
	return desc, data, nil
}

// ReadPacketExpect reads a descriptor, checks it against expected and reads the
// data. A descriptor that is not Compatible with expected yields ErrSchemaMismatch
// and the data is not read.
func (r *Reader) ReadPacketExpect(expected *PacketDesc) ([]byte, error) {
	if err := expected.Validate(); err != nil {
		return nil, err
	}
	desc, err := r.ReadDesc()
	if err != nil {
		return nil, err
	}
	if !Compatible(desc, expected) {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, mismatch(desc, expected, ""))
	}
	return r.dec.packetData(expected)
}

// ReadMultiArray reads a complete multi-array: magic, version, packets and history.
func (r *Reader) ReadMultiArray() (*MultiArray, error) {
	// A stream that ends cleanly before the magic wraps io.EOF rather than
	// io.ErrUnexpectedEOF, so callers can tell end-of-session from truncation.
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r.dec.r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	if string(magic[:]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, magic[:])
	}
	version, err := r.dec.u32()
	if err != nil {
		return nil, err
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}
	n, err := r.dec.u32()
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxElements {
		return nil, fmt.Errorf("%w: packet count %d", ErrFormat, n)
	}

	ma := &MultiArray{
		Names:   make([]string, 0, min(n, 64)),
		Packets: make([]Packet, 0, min(n, 64)),
	}
	for range n {
		name, err := r.dec.str()
		if err != nil {
			return nil, err
		}
		desc, data, err := r.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("packet %q: %w", name, err)
		}
		if _, dup := ma.Get(name); dup {
			return nil, fmt.Errorf("%w: duplicate packet name %q", ErrFormat, name)
		}
		ma.Names = append(ma.Names, name)
		ma.Packets = append(ma.Packets, Packet{Desc: desc, Data: data})
	}

	hn, err := r.dec.u32()
	if err != nil {
		return nil, err
	}
	if hn > maxElements {
		return nil, fmt.Errorf("%w: history count %d", ErrFormat, hn)
	}
	for range hn {
		line, err := r.dec.str()
		if err != nil {
			return nil, err
		}
		ma.History = append(ma.History, line)
	}
	return ma, nil
}

// ReadDesc reads a packet descriptor from r with default limits.
func ReadDesc(r io.Reader) (*PacketDesc, error) {
	return NewReader(r, ReaderOptions{}).ReadDesc()
}

// ReadData reads one packet's data described by desc from r with default limits.
func ReadData(r io.Reader, desc *PacketDesc) ([]byte, error) {
	return NewReader(r, ReaderOptions{}).ReadData(desc)
}

// ReadPacket reads a descriptor and its data from r with default limits.
func ReadPacket(r io.Reader) (*PacketDesc, []byte, error) {
	return NewReader(r, ReaderOptions{}).ReadPacket()
}

// ReadPacketExpect reads a packet from r that must be Compatible with expected.
func ReadPacketExpect(r io.Reader, expected *PacketDesc) ([]byte, error) {
	return NewReader(r, ReaderOptions{}).ReadPacketExpect(expected)
}

// ReadMultiArray reads a multi-array from r with default limits.
func ReadMultiArray(r io.Reader) (*MultiArray, error) {
	return NewReader(r, ReaderOptions{}).ReadMultiArray()
}

// Decode parses the wire form of a multi-array held in memory. Bytes left over
// after the multi-array are a format error.
func Decode(b []byte) (*MultiArray, error) {
	return decode(b, ReaderOptions{})
}

func decode(b []byte, opts ReaderOptions) (*MultiArray, error) {
	br := bytes.NewReader(b)
	ma, err := NewReader(br, opts).ReadMultiArray()
	if err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, br.Len())
	}
	return ma, nil
}
