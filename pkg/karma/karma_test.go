package karma

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// examplePacket builds: int x; array grid[2][2] of { double v }.
func examplePacket(t *testing.T) (*PacketDesc, []byte) {
	t.Helper()

	cell := NewPacketDesc(Scalar(TypeDouble, "v"))
	desc := NewPacketDesc(
		Scalar(TypeInt, "x"),
		ArrayOf("grid", cell, Dim("y", 2), Dim("x", 2)),
	)
	p, err := NewPacket(desc)
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	if err := p.SetInt64("x", 7); err != nil {
		t.Fatalf("set x: %v", err)
	}
	grid, err := p.Array("grid")
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	for i := range grid.Count {
		c, err := grid.At(i)
		if err != nil {
			t.Fatalf("cell %d: %v", i, err)
		}
		if err := c.SetFloat64("v", float64(i+1)); err != nil {
			t.Fatalf("set v: %v", err)
		}
	}
	return desc, p.Data
}

func TestExampleRoundTripAndDump(t *testing.T) {
	t.Parallel()

	desc, data := examplePacket(t)

	var buf bytes.Buffer
	if err := WritePacket(&buf, desc, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	gotDesc, gotData, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(desc, gotDesc); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(gotData, data) {
		t.Fatalf("data mismatch: got %x want %x", gotData, data)
	}
	if buf.Len() != 0 {
		t.Fatalf("reader left %d bytes unread", buf.Len())
	}

	p := Packet{Desc: gotDesc, Data: gotData}
	x, err := p.Int64("x")
	if err != nil || x != 7 {
		t.Fatalf("x: got %d (%v) want 7", x, err)
	}
	grid, err := p.Array("grid")
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	for i, want := range []float64{1, 2, 3, 4} {
		c, _ := grid.At(uint64(i))
		v, err := c.Float64("v")
		if err != nil || v != want {
			t.Fatalf("grid cell %d: got %v (%v) want %v", i, v, err, want)
		}
	}

	var out bytes.Buffer
	if err := Dump(&out, gotDesc, gotData, true); err != nil {
		t.Fatalf("dump: %v", err)
	}
	var leaves []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if !strings.HasPrefix(line, "#") {
			leaves = append(leaves, line)
		}
	}
	want := []string{
		"x: 7",
		"grid[0][0].v: 1.0",
		"grid[0][1].v: 2.0",
		"grid[1][0].v: 3.0",
		"grid[1][1].v: 4.0",
	}
	if diff := cmp.Diff(want, leaves); diff != "" {
		t.Fatalf("dump lines mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpIdempotentAndTerse(t *testing.T) {
	t.Parallel()

	desc, data := examplePacket(t)
	var a, b, terse bytes.Buffer
	if err := Dump(&a, desc, data, true); err != nil {
		t.Fatalf("dump a: %v", err)
	}
	if err := Dump(&b, desc, data, true); err != nil {
		t.Fatalf("dump b: %v", err)
	}
	if a.String() != b.String() {
		t.Fatalf("dump not idempotent:\n%s\n---\n%s", a.String(), b.String())
	}
	if err := Dump(&terse, desc, data, false); err != nil {
		t.Fatalf("dump terse: %v", err)
	}
	if got, want := terse.String(), "7\n1.0\n2.0\n3.0\n4.0\n"; got != want {
		t.Fatalf("terse dump: got %q want %q", got, want)
	}
}

func TestDumpDesc(t *testing.T) {
	t.Parallel()

	desc, _ := examplePacket(t)
	var out bytes.Buffer
	if err := DumpDesc(&out, desc, false); err != nil {
		t.Fatalf("dump desc: %v", err)
	}
	want := "int x\narray grid [2][2]\n  double v\n"
	if out.String() != want {
		t.Fatalf("desc dump: got %q want %q", out.String(), want)
	}
}

func TestWireIsBigEndian(t *testing.T) {
	t.Parallel()

	desc := NewPacketDesc(
		Scalar(TypeInt, "i"),
		Scalar(TypeDouble, "d"),
		Scalar(TypeShort, "s"),
	)
	p, err := NewPacket(desc)
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	_ = p.SetInt64("i", 0x01020304)
	_ = p.SetFloat64("d", 1.0)
	_ = p.SetInt64("s", -2)

	var buf bytes.Buffer
	if err := WriteData(&buf, desc, p.Data); err != nil {
		t.Fatalf("write data: %v", err)
	}
	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x3f, 0xf0, 0, 0, 0, 0, 0, 0,
		0xff, 0xfe,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wire bytes: got %x want %x", buf.Bytes(), want)
	}
}

func TestDecodeKnownBitPatterns(t *testing.T) {
	t.Parallel()

	desc := NewPacketDesc(
		Scalar(TypeUInt, "u"),
		Scalar(TypeFloat, "f"),
		Scalar(TypeLong, "l"),
	)
	raw := []byte{
		0xde, 0xad, 0xbe, 0xef,
		0x40, 0x49, 0x0f, 0xdb, // float32 pi
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfd,
	}
	data, err := ReadData(bytes.NewReader(raw), desc)
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	p := Packet{Desc: desc, Data: data}
	u, _ := p.Int64("u")
	if u != 0xdeadbeef {
		t.Fatalf("u: got %#x want 0xdeadbeef", u)
	}
	f, _ := p.Float64("f")
	if float32(f) != float32(math.Pi) {
		t.Fatalf("f: got %v want %v", f, float32(math.Pi))
	}
	l, _ := p.Int64("l")
	if l != -3 {
		t.Fatalf("l: got %d want -3", l)
	}
}

func TestZeroLengthArray(t *testing.T) {
	t.Parallel()

	cell := NewPacketDesc(Scalar(TypeFloat, "v"))
	desc := NewPacketDesc(
		ArrayOf("empty", cell, Dim("n", 0)),
		Scalar(TypeUByte, "tail"),
	)
	p, err := NewPacket(desc)
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	if len(p.Data) != 1 {
		t.Fatalf("packet size: got %d want 1", len(p.Data))
	}
	_ = p.SetInt64("tail", 9)

	var data bytes.Buffer
	if err := WriteData(&data, desc, p.Data); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if data.Len() != 1 {
		t.Fatalf("payload: got %d bytes want 1", data.Len())
	}

	var buf bytes.Buffer
	if err := WritePacket(&buf, desc, p.Data); err != nil {
		t.Fatalf("write: %v", err)
	}
	gotDesc, gotData, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	arr, err := Packet{Desc: gotDesc, Data: gotData}.Array("empty")
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if arr.Count != 0 || len(arr.Data) != 0 {
		t.Fatalf("empty array: got count %d and %d bytes", arr.Count, len(arr.Data))
	}
}

func TestSchemaMismatch(t *testing.T) {
	t.Parallel()

	a := NewPacketDesc(Scalar(TypeInt, "a"), Scalar(TypeFloat, "b"))
	b := NewPacketDesc(Scalar(TypeInt, "a"), Scalar(TypeDouble, "b"))
	data, err := NewData(a)
	if err != nil {
		t.Fatalf("new data: %v", err)
	}
	var buf bytes.Buffer
	if err := WritePacket(&buf, a, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadPacketExpect(&buf, b)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if errors.Is(err, ErrStreamIO) {
		t.Fatalf("schema mismatch reported as stream error: %v", err)
	}
	if got != nil {
		t.Fatalf("mismatch returned data")
	}
}

func TestReadPacketExpectIgnoresNames(t *testing.T) {
	t.Parallel()

	a := NewPacketDesc(Scalar(TypeInt, "a"))
	b := NewPacketDesc(Scalar(TypeInt, "renamed"))
	data, _ := NewData(a)
	host.PutUint32(data, 42)

	var buf bytes.Buffer
	if err := WritePacket(&buf, a, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadPacketExpect(&buf, b)
	if err != nil {
		t.Fatalf("read expect: %v", err)
	}
	v, _ := Packet{Desc: b, Data: got}.Int64("renamed")
	if v != 42 {
		t.Fatalf("value: got %d want 42", v)
	}
}

func TestTruncatedStream(t *testing.T) {
	t.Parallel()

	desc, data := examplePacket(t)
	var buf bytes.Buffer
	if err := WritePacket(&buf, desc, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	for _, n := range []int{0, 3, 10, len(raw) - 1} {
		gotDesc, gotData, err := ReadPacket(bytes.NewReader(raw[:n]))
		if !errors.Is(err, ErrStreamIO) {
			t.Fatalf("cut at %d: expected ErrStreamIO, got %v", n, err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("cut at %d: expected io.ErrUnexpectedEOF, got %v", n, err)
		}
		if gotDesc != nil || gotData != nil {
			t.Fatalf("cut at %d: partial result returned", n)
		}
	}
}

func TestUnknownTypeTagIsFormatError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
	}{
		{"unknown", []byte{0, 0, 0, 1, 0, 0, 0, 99, 0, 0, 0, 0}},
		{"ui-only", []byte{0, 0, 0, 1, 0, 0, 0x75, 0x30, 0, 0, 0, 0}},
		{"zero dims", []byte{0, 0, 0, 1, 0, 0, 0, 6, 0, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadDesc(bytes.NewReader(tt.raw))
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestReaderLimits(t *testing.T) {
	t.Parallel()

	cell := NewPacketDesc(Scalar(TypeDouble, "v"))
	desc := NewPacketDesc(ArrayOf("big", cell, Dim("n", 1024)))
	var buf bytes.Buffer
	if err := WriteDesc(&buf, desc); err != nil {
		t.Fatalf("write desc: %v", err)
	}
	_, err := NewReader(bytes.NewReader(buf.Bytes()), ReaderOptions{MaxBytes: 1024}).ReadDesc()
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat over byte limit, got %v", err)
	}
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, errors.New("disk full")
	}
	if len(p) > w.n {
		n := w.n
		w.n = 0
		return n, errors.New("disk full")
	}
	w.n -= len(p)
	return len(p), nil
}

func TestWriteFailureLeavesDataUntouched(t *testing.T) {
	t.Parallel()

	desc, data := examplePacket(t)
	before := bytes.Clone(data)
	err := WritePacket(&failingWriter{n: 5}, desc, data)
	if !errors.Is(err, ErrStreamIO) {
		t.Fatalf("expected ErrStreamIO, got %v", err)
	}
	if !bytes.Equal(before, data) {
		t.Fatalf("write mutated data")
	}
}

func TestWriteRejectsBadData(t *testing.T) {
	t.Parallel()

	desc := NewPacketDesc(Scalar(TypeInt, "a"))
	var buf bytes.Buffer
	err := WritePacket(&buf, desc, []byte{1, 2})
	if !errors.Is(err, ErrStructure) {
		t.Fatalf("expected ErrStructure, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes before rejecting", buf.Len())
	}
}

func TestFStringPadsAndTruncates(t *testing.T) {
	t.Parallel()

	desc := NewPacketDesc(FString("s", 4), FString("t", 4))
	p, _ := NewPacket(desc)
	_ = p.SetFString("s", "ab")
	_ = p.SetFString("t", "abcdef")

	var buf bytes.Buffer
	if err := WriteData(&buf, desc, p.Data); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := []byte{'a', 'b', 0, 0, 'a', 'b', 'c', 'd'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("fstring bytes: got %q want %q", buf.Bytes(), want)
	}
	s, _ := p.FString("t")
	if s != "abcd" {
		t.Fatalf("truncated string: got %q want %q", s, "abcd")
	}
}

func TestNestedArraysRoundTrip(t *testing.T) {
	t.Parallel()

	inner := NewPacketDesc(Scalar(TypeShort, "s"), FString("tag", 3))
	mid := NewPacketDesc(
		Scalar(TypeUByte, "k"),
		ArrayOf("inner", inner, DimWithCoords("z", []float64{0.5, 1.5, 2.5})),
	)
	desc := NewPacketDesc(
		ArrayOf("outer", mid, Dim("a", 2), Dim("b", 2)),
		Scalar(TypeULong, "end"),
	)
	p, err := NewPacket(desc)
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	for i := range p.Data {
		p.Data[i] = byte(i * 7)
	}

	ma := NewMultiArray()
	if err := ma.Add("nested", desc, p.Data); err != nil {
		t.Fatalf("add: %v", err)
	}
	ma.AppendHistory("created by test")

	raw, err := Encode(ma)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(ma, got); diff != "" {
		t.Fatalf("multi-array mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsBadMagicAndTrailingBytes(t *testing.T) {
	t.Parallel()

	desc, data := examplePacket(t)
	ma := NewMultiArray()
	if err := ma.Add("p", desc, data); err != nil {
		t.Fatalf("add: %v", err)
	}
	raw, err := Encode(ma)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	bad := bytes.Clone(raw)
	bad[0] = 'X'
	if _, err := Decode(bad); !errors.Is(err, ErrFormat) {
		t.Fatalf("bad magic: expected ErrFormat, got %v", err)
	}
	if _, err := Decode(append(bytes.Clone(raw), 0)); !errors.Is(err, ErrFormat) {
		t.Fatalf("trailing byte: expected ErrFormat, got %v", err)
	}
	if _, err := ReadMultiArray(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Fatalf("empty stream: expected io.EOF, got %v", err)
	}
}
