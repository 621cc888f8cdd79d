package karma

import (
	"fmt"
	"slices"
)

// MultiArray is the top-level transfer unit: one or more named packets plus
// free-text history lines.
type MultiArray struct {
	Names   []string
	Packets []Packet
	History []string
}

// NewMultiArray returns an empty multi-array.
func NewMultiArray() *MultiArray {
	return &MultiArray{}
}

// Add appends a named packet. Names must be unique within the multi-array.
func (ma *MultiArray) Add(name string, desc *PacketDesc, data []byte) error {
	if err := checkName("packet", name); err != nil {
		return err
	}
	if slices.Contains(ma.Names, name) {
		return fmt.Errorf("%w: duplicate packet name %q", ErrStructure, name)
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("packet %q: %w", name, err)
	}
	if err := checkData(desc, data); err != nil {
		return fmt.Errorf("packet %q: %w", name, err)
	}
	ma.Names = append(ma.Names, name)
	ma.Packets = append(ma.Packets, Packet{Desc: desc, Data: data})
	return nil
}

// Get returns the named packet.
func (ma *MultiArray) Get(name string) (Packet, bool) {
	i := slices.Index(ma.Names, name)
	if i < 0 {
		return Packet{}, false
	}
	return ma.Packets[i], true
}

// Len returns the number of packets.
func (ma *MultiArray) Len() int { return len(ma.Packets) }

// AppendHistory records a history line.
func (ma *MultiArray) AppendHistory(line string) {
	ma.History = append(ma.History, line)
}

// Validate checks every packet descriptor and data size.
func (ma *MultiArray) Validate() error {
	if ma == nil {
		return fmt.Errorf("%w: nil multi-array", ErrStructure)
	}
	if len(ma.Names) != len(ma.Packets) {
		return fmt.Errorf("%w: %d names for %d packets", ErrStructure, len(ma.Names), len(ma.Packets))
	}
	if len(ma.Packets) == 0 {
		return fmt.Errorf("%w: multi-array has no packets", ErrStructure)
	}
	if len(ma.Packets) > maxElements || len(ma.History) > maxElements {
		return fmt.Errorf("%w: %d packets and %d history lines, limit is %d each", ErrStructure, len(ma.Packets), len(ma.History), maxElements)
	}
	for i, p := range ma.Packets {
		if err := checkName("packet", ma.Names[i]); err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
		if slices.Index(ma.Names, ma.Names[i]) != i {
			return fmt.Errorf("%w: duplicate packet name %q", ErrStructure, ma.Names[i])
		}
		if err := p.Desc.Validate(); err != nil {
			return fmt.Errorf("packet %q: %w", ma.Names[i], err)
		}
		if err := checkData(p.Desc, p.Data); err != nil {
			return fmt.Errorf("packet %q: %w", ma.Names[i], err)
		}
	}
	for i, h := range ma.History {
		if len(h) > maxNameLen {
			return fmt.Errorf("%w: history line %d is %d bytes, limit is %d", ErrStructure, i, len(h), maxNameLen)
		}
	}
	return nil
}
