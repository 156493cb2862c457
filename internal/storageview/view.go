// Package storageview provides a strided, multidimensional view over a byte
// slice. Elements are visited in column-major order (the first dimension
// varies fastest), which is the order in which archives gather and scatter
// field data.
package storageview

import "fmt"

// View is a window of fixed-size elements inside a larger byte slice.
// Dims and strides are counted in elements; Offset is the element index of
// the first element.
type View struct {
	data            []byte
	bytesPerElement int
	dims            []int
	strides         []int
	offset          int
}

// New creates a view over data. strides must have the same length as dims
// and every addressable element must lie inside data.
func New(data []byte, bytesPerElement int, dims, strides []int, offset int) (*View, error) {
	if bytesPerElement <= 0 {
		return nil, fmt.Errorf("bytes per element must be positive, got %d", bytesPerElement)
	}
	if len(dims) != len(strides) {
		return nil, fmt.Errorf("rank mismatch: %d dims, %d strides", len(dims), len(strides))
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}

	last := offset
	empty := false
	for i, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("negative extent %d in dimension %d", d, i)
		}
		if strides[i] < 0 {
			return nil, fmt.Errorf("negative stride %d in dimension %d", strides[i], i)
		}
		if d == 0 {
			empty = true
			continue
		}
		last += (d - 1) * strides[i]
	}
	if !empty && (last+1)*bytesPerElement > len(data) {
		return nil, fmt.Errorf("view addresses element %d but buffer holds %d elements",
			last, len(data)/bytesPerElement)
	}

	return &View{
		data:            data,
		bytesPerElement: bytesPerElement,
		dims:            append([]int(nil), dims...),
		strides:         append([]int(nil), strides...),
		offset:          offset,
	}, nil
}

// NewContiguous creates a dense column-major view covering the start of data
func NewContiguous(data []byte, bytesPerElement int, dims ...int) (*View, error) {
	strides := make([]int, len(dims))
	stride := 1
	for i, d := range dims {
		strides[i] = stride
		stride *= d
	}
	return New(data, bytesPerElement, dims, strides, 0)
}

// Bytes wraps a plain byte slice as a one-dimensional view of single bytes
func Bytes(data []byte) *View {
	return &View{
		data:            data,
		bytesPerElement: 1,
		dims:            []int{len(data)},
		strides:         []int{1},
	}
}

// NumElements returns the number of elements addressed by the view
func (v *View) NumElements() int {
	n := 1
	for _, d := range v.dims {
		n *= d
	}
	return n
}

// SizeInBytes returns the number of bytes a contiguous copy of the view needs
func (v *View) SizeInBytes() int {
	return v.NumElements() * v.bytesPerElement
}

// BytesPerElement returns the element size
func (v *View) BytesPerElement() int {
	return v.bytesPerElement
}

// Dims returns a copy of the extents
func (v *View) Dims() []int {
	return append([]int(nil), v.dims...)
}

// Strides returns a copy of the strides
func (v *View) Strides() []int {
	return append([]int(nil), v.strides...)
}

// Iterate calls fn with the bytes of each element in column-major order.
// The slice aliases the underlying buffer, so writes through it modify the
// viewed data. Iteration stops when fn returns false.
func (v *View) Iterate(fn func(element []byte) bool) {
	if v.NumElements() == 0 {
		return
	}

	index := make([]int, len(v.dims))
	pos := v.offset
	for {
		start := pos * v.bytesPerElement
		if !fn(v.data[start : start+v.bytesPerElement : start+v.bytesPerElement]) {
			return
		}

		// odometer increment, first dimension fastest
		dim := 0
		for ; dim < len(v.dims); dim++ {
			index[dim]++
			pos += v.strides[dim]
			if index[dim] < v.dims[dim] {
				break
			}
			pos -= index[dim] * v.strides[dim]
			index[dim] = 0
		}
		if dim == len(v.dims) {
			return
		}
	}
}
