package karma

import "fmt"

// ElemType is the type tag of a packet element.
type ElemType uint32

const (
	TypeNone    ElemType = 0
	TypeFloat   ElemType = 1
	TypeDouble  ElemType = 2
	TypeByte    ElemType = 3
	TypeInt     ElemType = 4
	TypeShort   ElemType = 5
	TypeArray   ElemType = 6
	TypeLong    ElemType = 13
	TypeUByte   ElemType = 15
	TypeUInt    ElemType = 16
	TypeUShort  ElemType = 19
	TypeULong   ElemType = 20
	TypeFString ElemType = 25
)

// NumTypes is the first tag reserved for UI-only pseudo types. Tags at or above it
// never appear in a descriptor or on the wire.
const NumTypes ElemType = 30000

const (
	TypeUIString   ElemType = NumTypes
	TypeUIFunction ElemType = NumTypes + 1
	TypeUIChoice   ElemType = NumTypes + 2
)

func (t ElemType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeByte:
		return "byte"
	case TypeInt:
		return "int"
	case TypeShort:
		return "short"
	case TypeArray:
		return "array"
	case TypeLong:
		return "long"
	case TypeUByte:
		return "ubyte"
	case TypeUInt:
		return "uint"
	case TypeUShort:
		return "ushort"
	case TypeULong:
		return "ulong"
	case TypeFString:
		return "fstring"
	case TypeUIString:
		return "ui-string"
	case TypeUIFunction:
		return "ui-function"
	case TypeUIChoice:
		return "ui-choice"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// ParseElemType maps a type name as printed by String back to its tag.
func ParseElemType(name string) (ElemType, bool) {
	for _, t := range wireTypes {
		if t.String() == name {
			return t, true
		}
	}
	return TypeNone, false
}

var wireTypes = []ElemType{
	TypeFloat, TypeDouble, TypeByte, TypeInt, TypeShort, TypeArray,
	TypeLong, TypeUByte, TypeUInt, TypeUShort, TypeULong, TypeFString,
}

// Valid reports whether t may appear in a descriptor.
func (t ElemType) Valid() bool {
	switch t {
	case TypeFloat, TypeDouble, TypeByte, TypeInt, TypeShort, TypeArray,
		TypeLong, TypeUByte, TypeUInt, TypeUShort, TypeULong, TypeFString:
		return true
	}
	return false
}

// Size returns the natural width of a numeric type. It is 0 for arrays, fixed
// strings (whose width is declared per element) and unknown tags.
func (t ElemType) Size() int {
	switch t {
	case TypeByte, TypeUByte:
		return 1
	case TypeShort, TypeUShort:
		return 2
	case TypeFloat, TypeInt, TypeUInt:
		return 4
	case TypeDouble, TypeLong, TypeULong:
		return 8
	default:
		return 0
	}
}

// Numeric reports whether t is a fixed-width number.
func (t ElemType) Numeric() bool { return t.Size() > 0 }

// Float reports whether t is an IEEE-754 type.
func (t ElemType) Float() bool { return t == TypeFloat || t == TypeDouble }

// Signed reports whether t is a signed integer type.
func (t ElemType) Signed() bool {
	switch t {
	case TypeByte, TypeShort, TypeInt, TypeLong:
		return true
	}
	return false
}
