package karma

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// WriteDesc writes a packet descriptor.
func WriteDesc(w io.Writer, desc *PacketDesc) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	enc := newEncoder(w)
	enc.packetDesc(desc)
	return enc.flush()
}

// WriteData writes the data of one packet. The peer must already know desc.
// data is never modified.
func WriteData(w io.Writer, desc *PacketDesc, data []byte) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := checkData(desc, data); err != nil {
		return err
	}
	enc := newEncoder(w)
	if err := enc.packetData(desc, data); err != nil {
		return err
	}
	return enc.flush()
}

// WritePacket writes a packet descriptor followed by its data.
func WritePacket(w io.Writer, desc *PacketDesc, data []byte) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := checkData(desc, data); err != nil {
		return err
	}
	enc := newEncoder(w)
	enc.packetDesc(desc)
	if err := enc.packetData(desc, data); err != nil {
		return err
	}
	return enc.flush()
}

// WriteMultiArray writes the magic, version, every named packet and the history.
// Every packet is checked before the first byte is written.
func WriteMultiArray(w io.Writer, ma *MultiArray) error {
	if err := ma.Validate(); err != nil {
		return err
	}
	enc := newEncoder(w)
	enc.write([]byte(Magic))
	enc.u32(CurrentVersion)
	enc.u32(uint32(len(ma.Packets)))
	for i, p := range ma.Packets {
		enc.str(ma.Names[i])
		enc.packetDesc(p.Desc)
		if err := enc.packetData(p.Desc, p.Data); err != nil {
			return fmt.Errorf("packet %q: %w", ma.Names[i], err)
		}
	}
	enc.u32(uint32(len(ma.History)))
	for _, h := range ma.History {
		enc.str(h)
	}
	return enc.flush()
}

// Encode returns the wire form of ma.
func Encode(ma *MultiArray) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteMultiArray(&buf, ma); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsStreamError reports whether err came from the underlying stream rather than
// from the data itself.
func IsStreamError(err error) bool {
	return errors.Is(err, ErrStreamIO)
}
