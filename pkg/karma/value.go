package karma

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// host is the in-memory byte order of packet data.
var host = binary.NativeEndian

// GetFloat64 reads a numeric value of type t from b and converts it to float64.
func GetFloat64(b []byte, t ElemType) (float64, error) {
	switch t {
	case TypeFloat:
		return float64(math.Float32frombits(host.Uint32(b))), nil
	case TypeDouble:
		return math.Float64frombits(host.Uint64(b)), nil
	case TypeULong, TypeUInt, TypeUShort, TypeUByte:
		v, err := GetUint64(b, t)
		return float64(v), err
	default:
		v, err := GetInt64(b, t)
		return float64(v), err
	}
}

// PutFloat64 stores v into b as type t, converting as a Go conversion would.
func PutFloat64(b []byte, t ElemType, v float64) error {
	switch t {
	case TypeFloat:
		host.PutUint32(b, math.Float32bits(float32(v)))
		return nil
	case TypeDouble:
		host.PutUint64(b, math.Float64bits(v))
		return nil
	case TypeULong, TypeUInt, TypeUShort, TypeUByte:
		return PutUint64(b, t, uint64(v))
	default:
		return PutInt64(b, t, int64(v))
	}
}

// GetInt64 reads an integer value of type t from b, sign-extending signed types.
func GetInt64(b []byte, t ElemType) (int64, error) {
	switch t {
	case TypeByte:
		return int64(int8(b[0])), nil
	case TypeShort:
		return int64(int16(host.Uint16(b))), nil
	case TypeInt:
		return int64(int32(host.Uint32(b))), nil
	case TypeLong:
		return int64(host.Uint64(b)), nil
	case TypeUByte, TypeUShort, TypeUInt, TypeULong:
		v, err := GetUint64(b, t)
		return int64(v), err
	case TypeFloat, TypeDouble:
		v, err := GetFloat64(b, t)
		return int64(v), err
	default:
		return 0, fmt.Errorf("%w: %s is not numeric", ErrStructure, t)
	}
}

// PutInt64 stores v into b as type t, truncating to the type's width.
func PutInt64(b []byte, t ElemType, v int64) error {
	switch t {
	case TypeByte, TypeShort, TypeInt, TypeLong, TypeUByte, TypeUShort, TypeUInt, TypeULong:
		return PutUint64(b, t, uint64(v))
	case TypeFloat, TypeDouble:
		return PutFloat64(b, t, float64(v))
	default:
		return fmt.Errorf("%w: %s is not numeric", ErrStructure, t)
	}
}

// GetUint64 reads an integer value of type t from b without sign extension.
func GetUint64(b []byte, t ElemType) (uint64, error) {
	switch t.Size() {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(host.Uint16(b)), nil
	case 4:
		if t == TypeFloat {
			return uint64(math.Float32frombits(host.Uint32(b))), nil
		}
		return uint64(host.Uint32(b)), nil
	case 8:
		if t == TypeDouble {
			return uint64(math.Float64frombits(host.Uint64(b))), nil
		}
		return host.Uint64(b), nil
	default:
		return 0, fmt.Errorf("%w: %s is not numeric", ErrStructure, t)
	}
}

// PutUint64 stores v into b as type t, truncating to the type's width.
func PutUint64(b []byte, t ElemType, v uint64) error {
	switch t {
	case TypeFloat, TypeDouble:
		return PutFloat64(b, t, float64(v))
	}
	switch t.Size() {
	case 1:
		b[0] = byte(v)
	case 2:
		host.PutUint16(b, uint16(v))
	case 4:
		host.PutUint32(b, uint32(v))
	case 8:
		host.PutUint64(b, v)
	default:
		return fmt.Errorf("%w: %s is not numeric", ErrStructure, t)
	}
	return nil
}

// GetFString returns the contents of a fixed string with trailing NULs removed.
func GetFString(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// PutFString copies s into b, zero-padding or truncating it to len(b).
// No terminator is added.
func PutFString(b []byte, s string) {
	n := copy(b, s)
	clear(b[n:])
}

// Packet binds a descriptor to one instance of its data.
type Packet struct {
	Desc *PacketDesc
	Data []byte
}

// NewPacket allocates a zeroed packet for desc.
func NewPacket(desc *PacketDesc) (Packet, error) {
	data, err := NewData(desc)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Desc: desc, Data: data}, nil
}

// Field returns the named element and the slice of Data it occupies.
func (p Packet) Field(name string) (ElemDesc, []byte, error) {
	i := p.Desc.Find(name)
	if i < 0 {
		return ElemDesc{}, nil, fmt.Errorf("%w: no element %q", ErrStructure, name)
	}
	l, err := LayoutOf(p.Desc)
	if err != nil {
		return ElemDesc{}, nil, err
	}
	if l.Size > len(p.Data) {
		return ElemDesc{}, nil, fmt.Errorf("%w: data is %d bytes, descriptor needs %d", ErrStructure, len(p.Data), l.Size)
	}
	off := l.Offsets[i]
	return p.Desc.Elements[i], p.Data[off : off+l.Sizes[i]], nil
}

func (p Packet) numeric(name string) (ElemDesc, []byte, error) {
	e, b, err := p.Field(name)
	if err != nil {
		return e, nil, err
	}
	if !e.Type.Numeric() {
		return e, nil, fmt.Errorf("%w: element %q is %s, not numeric", ErrStructure, name, e.Type)
	}
	return e, b, nil
}

// Float64 returns the named numeric element converted to float64.
func (p Packet) Float64(name string) (float64, error) {
	e, b, err := p.numeric(name)
	if err != nil {
		return 0, err
	}
	return GetFloat64(b, e.Type)
}

// SetFloat64 stores v into the named numeric element.
func (p Packet) SetFloat64(name string, v float64) error {
	e, b, err := p.numeric(name)
	if err != nil {
		return err
	}
	return PutFloat64(b, e.Type, v)
}

// Int64 returns the named numeric element converted to int64.
func (p Packet) Int64(name string) (int64, error) {
	e, b, err := p.numeric(name)
	if err != nil {
		return 0, err
	}
	return GetInt64(b, e.Type)
}

// SetInt64 stores v into the named numeric element.
func (p Packet) SetInt64(name string, v int64) error {
	e, b, err := p.numeric(name)
	if err != nil {
		return err
	}
	return PutInt64(b, e.Type, v)
}

// FString returns the named fixed string element.
func (p Packet) FString(name string) (string, error) {
	e, b, err := p.Field(name)
	if err != nil {
		return "", err
	}
	if e.Type != TypeFString {
		return "", fmt.Errorf("%w: element %q is %s, not fstring", ErrStructure, name, e.Type)
	}
	return GetFString(b), nil
}

// SetFString stores s into the named fixed string element.
func (p Packet) SetFString(name, s string) error {
	e, b, err := p.Field(name)
	if err != nil {
		return err
	}
	if e.Type != TypeFString {
		return fmt.Errorf("%w: element %q is %s, not fstring", ErrStructure, name, e.Type)
	}
	PutFString(b, s)
	return nil
}

// ArrayRef is the inline region of one array element.
type ArrayRef struct {
	Desc   *ArrayDesc
	Data   []byte
	Count  uint64
	Stride int
}

// Array returns the named array element.
func (p Packet) Array(name string) (ArrayRef, error) {
	e, b, err := p.Field(name)
	if err != nil {
		return ArrayRef{}, err
	}
	if e.Type != TypeArray {
		return ArrayRef{}, fmt.Errorf("%w: element %q is %s, not array", ErrStructure, name, e.Type)
	}
	count, err := e.Array.Count()
	if err != nil {
		return ArrayRef{}, err
	}
	stride, err := PacketSize(e.Array.Packet)
	if err != nil {
		return ArrayRef{}, err
	}
	return ArrayRef{Desc: e.Array, Data: b, Count: count, Stride: stride}, nil
}

// At returns cell i in row-major order.
func (a ArrayRef) At(i uint64) (Packet, error) {
	if i >= a.Count {
		return Packet{}, fmt.Errorf("%w: cell %d out of range [0,%d)", ErrStructure, i, a.Count)
	}
	off := int(i) * a.Stride
	return Packet{Desc: a.Desc.Packet, Data: a.Data[off : off+a.Stride]}, nil
}

// Index converts per-dimension indices to a row-major cell number.
func (a ArrayRef) Index(idx ...uint64) (uint64, error) {
	if len(idx) != len(a.Desc.Dims) {
		return 0, fmt.Errorf("%w: %d indices for %d dimensions", ErrStructure, len(idx), len(a.Desc.Dims))
	}
	var cell uint64
	for d, i := range idx {
		n := a.Desc.Dims[d].Length
		if i >= n {
			return 0, fmt.Errorf("%w: index %d out of range [0,%d) in dimension %d", ErrStructure, i, n, d)
		}
		cell = cell*n + i
	}
	return cell, nil
}
