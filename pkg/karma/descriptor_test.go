package karma

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateRejectsCycles(t *testing.T) {
	t.Parallel()

	loop := NewPacketDesc(Scalar(TypeInt, "n"))
	loop.Elements = append(loop.Elements, ArrayOf("self", loop, Dim("i", 1)))

	err := loop.Validate()
	if !errors.Is(err, ErrStructure) {
		t.Fatalf("expected ErrStructure for cyclic descriptor, got %v", err)
	}
	if _, err := NewData(loop); !errors.Is(err, ErrStructure) {
		t.Fatalf("NewData on cyclic descriptor: expected ErrStructure, got %v", err)
	}

	// The same packet may appear twice without forming a cycle.
	shared := NewPacketDesc(Scalar(TypeFloat, "v"))
	dag := NewPacketDesc(
		ArrayOf("a", shared, Dim("i", 2)),
		ArrayOf("b", shared, Dim("j", 3)),
	)
	if err := dag.Validate(); err != nil {
		t.Fatalf("shared sub-packet rejected: %v", err)
	}
}

func TestValidateStructuralErrors(t *testing.T) {
	t.Parallel()

	cell := NewPacketDesc(Scalar(TypeFloat, "v"))
	tests := []struct {
		name string
		desc *PacketDesc
	}{
		{"unknown type", NewPacketDesc(Scalar(ElemType(99), "x"))},
		{"ui type", NewPacketDesc(Scalar(TypeUIChoice, "x"))},
		{"array without descriptor", NewPacketDesc(ElemDesc{Type: TypeArray, Name: "a"})},
		{"scalar with array", NewPacketDesc(ElemDesc{Type: TypeInt, Name: "a", Array: &ArrayDesc{Dims: []DimDesc{Dim("i", 1)}, Packet: cell}})},
		{"no dimensions", NewPacketDesc(ArrayOf("a", cell))},
		{"nil packet", NewPacketDesc(ElemDesc{Type: TypeArray, Name: "a", Array: &ArrayDesc{Dims: []DimDesc{Dim("i", 1)}}})},
		{"coords mismatch", NewPacketDesc(ArrayOf("a", cell, DimDesc{Length: 3, Name: "i", Coords: []float64{1, 2}}))},
		{"zero fstring", NewPacketDesc(FString("s", 0))},
		{"length on scalar", NewPacketDesc(ElemDesc{Type: TypeInt, Name: "a", Length: 4})},
		{"count overflow", NewPacketDesc(ArrayOf("a", cell, Dim("i", math.MaxUint32), Dim("j", math.MaxUint32), Dim("k", 4)))},
		{"size overflow", NewPacketDesc(ArrayOf("a", cell, Dim("i", math.MaxInt/2)))},
		{"too many empty cells", NewPacketDesc(ArrayOf("a", NewPacketDesc(), Dim("n", 1<<40)))},
		{"long element name", NewPacketDesc(Scalar(TypeInt, strings.Repeat("x", maxNameLen+1)))},
		{"long dimension name", NewPacketDesc(ArrayOf("a", cell, Dim(strings.Repeat("d", maxNameLen+1), 1)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.desc.Validate(); !errors.Is(err, ErrStructure) {
				t.Fatalf("expected ErrStructure, got %v", err)
			}
		})
	}
}

func TestCompatibleAndEqual(t *testing.T) {
	t.Parallel()

	mk := func(elemName, dimName string, length uint64, t ElemType) *PacketDesc {
		cell := NewPacketDesc(Scalar(t, "v"))
		return NewPacketDesc(Scalar(TypeInt, elemName), ArrayOf("g", cell, Dim(dimName, length)))
	}

	base := mk("x", "i", 4, TypeDouble)
	renamed := mk("y", "j", 4, TypeDouble)
	resized := mk("x", "i", 5, TypeDouble)
	retyped := mk("x", "i", 4, TypeFloat)

	if !Compatible(base, renamed) {
		t.Fatalf("renamed descriptor should be compatible")
	}
	if Equal(base, renamed) {
		t.Fatalf("renamed descriptor should not be equal")
	}
	if Compatible(base, resized) {
		t.Fatalf("resized array should not be compatible")
	}
	if Compatible(base, retyped) {
		t.Fatalf("retyped nested element should not be compatible")
	}
	if !Equal(base, mk("x", "i", 4, TypeDouble)) {
		t.Fatalf("identical descriptors should be equal")
	}
	if Compatible(base, NewPacketDesc(Scalar(TypeInt, "x"))) {
		t.Fatalf("different element counts should not be compatible")
	}
}

func TestLayoutOffsets(t *testing.T) {
	t.Parallel()

	cell := NewPacketDesc(Scalar(TypeShort, "a"), Scalar(TypeShort, "b"))
	desc := NewPacketDesc(
		Scalar(TypeByte, "flag"),
		ArrayOf("pairs", cell, Dim("n", 3)),
		FString("label", 5),
		Scalar(TypeDouble, "d"),
	)
	l, err := LayoutOf(desc)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	want := &Layout{
		Offsets: []int{0, 1, 13, 18},
		Sizes:   []int{1, 12, 5, 8},
		Size:    26,
		Flat:    false,
	}
	if diff := cmp.Diff(want, l); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	flat, err := LayoutOf(cell)
	if err != nil {
		t.Fatalf("layout cell: %v", err)
	}
	if !flat.Flat || flat.Size != 4 {
		t.Fatalf("flat layout: got flat=%v size=%d", flat.Flat, flat.Size)
	}
}

func TestParseElemType(t *testing.T) {
	t.Parallel()

	for _, typ := range wireTypes {
		got, ok := ParseElemType(typ.String())
		if !ok || got != typ {
			t.Fatalf("parse %q: got %v %v", typ.String(), got, ok)
		}
	}
	if _, ok := ParseElemType("ui-choice"); ok {
		t.Fatalf("ui-only type should not parse")
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	desc, data := examplePacket(t)
	ma := NewMultiArray()
	if err := ma.Add("image", desc, data); err != nil {
		t.Fatalf("add: %v", err)
	}
	path := filepath.Join(t.TempDir(), "image.kf")
	if err := WriteFile(path, ma); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if diff := cmp.Diff(ma, got); diff != "" {
		t.Fatalf("file round-trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

func TestMultiArrayRejectsDuplicates(t *testing.T) {
	t.Parallel()

	desc := NewPacketDesc(Scalar(TypeInt, "a"))
	data, _ := NewData(desc)
	ma := NewMultiArray()
	if err := ma.Add("p", desc, data); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ma.Add("p", desc, data); !errors.Is(err, ErrStructure) {
		t.Fatalf("duplicate add: expected ErrStructure, got %v", err)
	}
	if _, ok := ma.Get("p"); !ok {
		t.Fatalf("get p: missing")
	}
}
