// Package iarray provides indexed views over one array element of a Karma packet.
//
// A View resolves an index tuple to a byte offset through per-dimension offset
// tables computed once when the view is bound, so each access costs one table
// lookup per dimension. Views are not safe for concurrent use.
package iarray

import (
	"fmt"
	"slices"

	"github.com/samcharles93/karma/pkg/karma"
)

// viewMagic tags a live view. It is cleared when the view is destroyed.
const viewMagic uint32 = 0x69617272

type destroyHook struct {
	id int
	fn func(*View)
}

// View is a window over one leaf field of the cells of an array element.
//
// States: the zero value is unbound; Bind, Get and Create return bound views;
// Destroy moves a view to its terminal state. Every method other than Destroy
// on an unbound or destroyed view returns ErrInvalidHandle.
type View struct {
	magic uint32

	ma   *karma.MultiArray
	data []byte

	// origin is the offset in data of the field in cell (0,...,0) of the
	// padded array.
	origin   int
	elem     karma.ElemDesc
	elemSize int

	dims     []karma.DimDesc
	boundary int
	offsets  [][]int
	strides  []int

	hooks  []destroyHook
	nextID int
}

// Bind returns a view over the array element arrayElem of a packet described by
// desc and stored in data. field names the leaf element of the array's packet;
// an empty field selects the only element, or else the first numeric one.
//
// The view does not own data. It stays valid for as long as data and desc do.
func Bind(desc *karma.PacketDesc, data []byte, arrayElem, field string) (*View, error) {
	return bind(desc, data, arrayElem, field, 0)
}

// Get binds a view to the named packet of ma. MultiArray on the view returns ma.
func Get(ma *karma.MultiArray, packetName, arrayElem, field string) (*View, error) {
	if ma == nil {
		return nil, fmt.Errorf("%w: nil multi-array", ErrNoSuchElement)
	}
	p, ok := ma.Get(packetName)
	if !ok {
		return nil, fmt.Errorf("%w: packet %q", ErrNoSuchElement, packetName)
	}
	v, err := bind(p.Desc, p.Data, arrayElem, field, 0)
	if err != nil {
		return nil, err
	}
	v.ma = ma
	return v, nil
}

// Create allocates a multi-array holding one packet named name. The packet has
// one array element, also named name, whose cells hold a single field of type t.
//
// Every dimension is padded with boundary extra cells on each side. Indices
// passed to the view are logical: they range over [-boundary, length+boundary).
// Coordinates are kept in the stored descriptor only when boundary is zero.
func Create(t karma.ElemType, name string, dims []karma.DimDesc, boundary int) (*View, error) {
	if !t.Numeric() {
		return nil, fmt.Errorf("%w: cannot create an array of %s", karma.ErrStructure, t)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: array has no dimensions", karma.ErrStructure)
	}
	if boundary < 0 {
		return nil, fmt.Errorf("%w: negative boundary %d", karma.ErrStructure, boundary)
	}

	padded := make([]karma.DimDesc, len(dims))
	for d, dim := range dims {
		padded[d] = karma.Dim(dim.Name, dim.Length+2*uint64(boundary))
		if boundary == 0 {
			padded[d].Coords = slices.Clone(dim.Coords)
		}
	}
	cell := karma.NewPacketDesc(karma.Scalar(t, name))
	desc := karma.NewPacketDesc(karma.ArrayOf(name, cell, padded...))
	data, err := karma.NewData(desc)
	if err != nil {
		return nil, err
	}
	ma := karma.NewMultiArray()
	if err := ma.Add(name, desc, data); err != nil {
		return nil, err
	}

	v, err := bind(desc, data, name, name, boundary)
	if err != nil {
		return nil, err
	}
	for d := range v.dims {
		v.dims[d] = karma.DimDesc{Length: dims[d].Length, Name: dims[d].Name, Coords: slices.Clone(dims[d].Coords)}
	}
	v.ma = ma
	return v, nil
}

func bind(desc *karma.PacketDesc, data []byte, arrayElem, field string, boundary int) (*View, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	layout, err := karma.LayoutOf(desc)
	if err != nil {
		return nil, err
	}
	if len(data) != layout.Size {
		return nil, fmt.Errorf("%w: data is %d bytes, descriptor needs %d", karma.ErrStructure, len(data), layout.Size)
	}

	ai := desc.Find(arrayElem)
	if ai < 0 {
		return nil, fmt.Errorf("%w: element %q", ErrNoSuchElement, arrayElem)
	}
	ae := &desc.Elements[ai]
	if ae.Type != karma.TypeArray {
		return nil, fmt.Errorf("%w: element %q is %s, not array", karma.ErrStructure, arrayElem, ae.Type)
	}
	cell := ae.Array.Packet

	fi, err := selectField(cell, field)
	if err != nil {
		return nil, fmt.Errorf("array %q: %w", arrayElem, err)
	}
	cellLayout, err := karma.LayoutOf(cell)
	if err != nil {
		return nil, err
	}

	v := &View{
		data:     data,
		origin:   layout.Offsets[ai] + cellLayout.Offsets[fi],
		elem:     cell.Elements[fi],
		elemSize: cellLayout.Sizes[fi],
		dims:     make([]karma.DimDesc, len(ae.Array.Dims)),
		boundary: boundary,
	}
	for d, dim := range ae.Array.Dims {
		if dim.Length < 2*uint64(boundary) {
			return nil, fmt.Errorf("%w: dimension %d is shorter than its boundary", karma.ErrStructure, d)
		}
		v.dims[d] = karma.DimDesc{Length: dim.Length - 2*uint64(boundary), Name: dim.Name, Coords: slices.Clone(dim.Coords)}
	}
	v.buildTables(ae.Array, cellLayout.Size)
	v.magic = viewMagic
	return v, nil
}

func selectField(cell *karma.PacketDesc, field string) (int, error) {
	if field != "" {
		i := cell.Find(field)
		if i < 0 {
			return 0, fmt.Errorf("%w: field %q", ErrNoSuchElement, field)
		}
		if cell.Elements[i].Type == karma.TypeArray {
			return 0, fmt.Errorf("%w: field %q is a nested array", karma.ErrStructure, field)
		}
		return i, nil
	}
	if len(cell.Elements) == 1 && cell.Elements[0].Type != karma.TypeArray {
		return 0, nil
	}
	for i, e := range cell.Elements {
		if e.Type.Numeric() {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no numeric field", ErrNoSuchElement)
}

// buildTables fills offsets[d][j] with the byte offset contributed by padded
// index j in dimension d. The last dimension varies fastest. An array with no
// cells gets empty tables, so every index is out of range.
func (v *View) buildTables(a *karma.ArrayDesc, cellSize int) {
	n := len(a.Dims)
	v.offsets = make([][]int, n)
	v.strides = make([]int, n)
	count, err := a.Count()
	stride := cellSize
	for d := n - 1; d >= 0; d-- {
		v.strides[d] = stride
		if err != nil || count == 0 {
			continue
		}
		length := int(a.Dims[d].Length)
		tab := make([]int, length)
		for j := range tab {
			tab[j] = j * stride
		}
		v.offsets[d] = tab
		stride *= length
	}
}

func (v *View) check() error {
	if v == nil || v.magic != viewMagic {
		return ErrInvalidHandle
	}
	return nil
}

// Offset returns the byte offset, within the bound packet's data, of the field
// at the given logical indices.
func (v *View) Offset(idx ...int) (int, error) {
	if err := v.check(); err != nil {
		return 0, err
	}
	if len(idx) != len(v.offsets) {
		return 0, fmt.Errorf("%w: %d indices for %d dimensions", ErrIndex, len(idx), len(v.offsets))
	}
	off := v.origin
	for d, i := range idx {
		tab := v.offsets[d]
		j := i + v.boundary
		if j < 0 || j >= len(tab) {
			return 0, fmt.Errorf("%w: index %d in dimension %d", ErrIndex, i, d)
		}
		off += tab[j]
	}
	return off, nil
}

// Bytes returns the field's bytes at the given indices. The slice aliases the
// bound data.
func (v *View) Bytes(idx ...int) ([]byte, error) {
	off, err := v.Offset(idx...)
	if err != nil {
		return nil, err
	}
	return v.data[off : off+v.elemSize : off+v.elemSize], nil
}

// Float64 returns the field at the given indices converted to float64.
func (v *View) Float64(idx ...int) (float64, error) {
	b, err := v.Bytes(idx...)
	if err != nil {
		return 0, err
	}
	if !v.elem.Type.Numeric() {
		return 0, fmt.Errorf("%w: field %q is %s, not numeric", karma.ErrStructure, v.elem.Name, v.elem.Type)
	}
	return karma.GetFloat64(b, v.elem.Type)
}

// SetFloat64 stores val into the field at the given indices.
func (v *View) SetFloat64(val float64, idx ...int) error {
	b, err := v.Bytes(idx...)
	if err != nil {
		return err
	}
	if !v.elem.Type.Numeric() {
		return fmt.Errorf("%w: field %q is %s, not numeric", karma.ErrStructure, v.elem.Name, v.elem.Type)
	}
	return karma.PutFloat64(b, v.elem.Type, val)
}

// Contiguous reports whether consecutive indices in dimension dim are adjacent
// in memory, that is whether the dimension's stride equals the field size.
func (v *View) Contiguous(dim int) (bool, error) {
	if err := v.check(); err != nil {
		return false, err
	}
	if dim < 0 || dim >= len(v.strides) {
		return false, fmt.Errorf("%w: dimension %d of %d", ErrIndex, dim, len(v.strides))
	}
	return v.strides[dim] == v.elemSize, nil
}

// Dims returns the logical dimensions, without boundary padding.
func (v *View) Dims() ([]karma.DimDesc, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	out := make([]karma.DimDesc, len(v.dims))
	for d, dim := range v.dims {
		out[d] = karma.DimDesc{Length: dim.Length, Name: dim.Name, Coords: slices.Clone(dim.Coords)}
	}
	return out, nil
}

// Lengths returns the logical dimension lengths.
func (v *View) Lengths() ([]uint64, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	out := make([]uint64, len(v.dims))
	for d, dim := range v.dims {
		out[d] = dim.Length
	}
	return out, nil
}

// Boundary returns the number of padding cells on each side of every dimension.
func (v *View) Boundary() (int, error) {
	if err := v.check(); err != nil {
		return 0, err
	}
	return v.boundary, nil
}

// Type returns the field's element type.
func (v *View) Type() (karma.ElemType, error) {
	if err := v.check(); err != nil {
		return karma.TypeNone, err
	}
	return v.elem.Type, nil
}

// MultiArray returns the multi-array behind the view, or nil for a view made
// with Bind.
func (v *View) MultiArray() (*karma.MultiArray, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	return v.ma, nil
}

// OnDestroy registers fn to run when the view is destroyed. Callbacks run in
// registration order. The returned id can be passed to RemoveDestroy.
func (v *View) OnDestroy(fn func(*View)) (int, error) {
	if err := v.check(); err != nil {
		return 0, err
	}
	if fn == nil {
		return 0, fmt.Errorf("%w: nil destroy callback", karma.ErrStructure)
	}
	v.nextID++
	v.hooks = append(v.hooks, destroyHook{id: v.nextID, fn: fn})
	return v.nextID, nil
}

// RemoveDestroy unregisters the callback with the given id.
func (v *View) RemoveDestroy(id int) error {
	if err := v.check(); err != nil {
		return err
	}
	i := slices.IndexFunc(v.hooks, func(h destroyHook) bool { return h.id == id })
	if i < 0 {
		return fmt.Errorf("%w: destroy callback %d", ErrNoSuchElement, id)
	}
	v.hooks = slices.Delete(v.hooks, i, i+1)
	return nil
}

// Destroy invalidates the view, runs the destroy callbacks in registration
// order and releases the offset tables and its reference to the data. The
// view is invalid before the first callback runs, so a callback that destroys
// the view again gets ErrInvalidHandle.
func (v *View) Destroy() error {
	if err := v.check(); err != nil {
		return err
	}
	v.magic = 0
	hooks := v.hooks
	v.hooks = nil
	for _, h := range hooks {
		h.fn(v)
	}
	v.offsets = nil
	v.strides = nil
	v.dims = nil
	v.data = nil
	v.ma = nil
	return nil
}
