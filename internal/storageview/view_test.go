package storageview_test

import (
	"testing"

	"github.com/havogt/serialbox2/internal/storageview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(v *storageview.View) []byte {
	var out []byte
	v.Iterate(func(element []byte) bool {
		out = append(out, element...)
		return true
	})
	return out
}

func TestNewContiguous_ColumnMajorOrder(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5}
	v, err := storageview.NewContiguous(data, 1, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, 6, v.NumElements())
	assert.Equal(t, 6, v.SizeInBytes())
	assert.Equal(t, []int{1, 2}, v.Strides())
	assert.Equal(t, data, collect(v))
}

func TestNew_StridedSubView(t *testing.T) {
	// 4x3 column-major grid of 2-byte elements, view the interior 2x2 block
	data := make([]byte, 4*3*2)
	for i := range data {
		data[i] = byte(i)
	}
	v, err := storageview.New(data, 2, []int{2, 2}, []int{1, 4}, 1)
	require.NoError(t, err)

	assert.Equal(t, 8, v.SizeInBytes())
	assert.Equal(t, 2, v.BytesPerElement())
	// elements 1, 2, 5, 6
	assert.Equal(t, []byte{2, 3, 4, 5, 10, 11, 12, 13}, collect(v))
}

func TestNew_TransposedView(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5}
	// row-major traversal of a 2x3 column-major grid
	v, err := storageview.New(data, 1, []int{3, 2}, []int{2, 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 2, 4, 1, 3, 5}, collect(v))
}

func TestIterate_WritesThroughToData(t *testing.T) {
	data := make([]byte, 6)
	v, err := storageview.New(data, 1, []int{3}, []int{2}, 0)
	require.NoError(t, err)

	v.Iterate(func(element []byte) bool {
		element[0] = 9
		return true
	})
	assert.Equal(t, []byte{9, 0, 9, 0, 9, 0}, data)
}

func TestIterate_StopsEarly(t *testing.T) {
	v := storageview.Bytes([]byte{1, 2, 3, 4})
	count := 0
	v.Iterate(func(element []byte) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestIterate_EmptyView(t *testing.T) {
	v, err := storageview.NewContiguous(nil, 4, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, v.SizeInBytes())
	assert.Empty(t, collect(v))
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		bpe     int
		dims    []int
		strides []int
		offset  int
	}{
		{"zero element size", make([]byte, 4), 0, []int{4}, []int{1}, 0},
		{"rank mismatch", make([]byte, 4), 1, []int{2, 2}, []int{1}, 0},
		{"negative extent", make([]byte, 4), 1, []int{-1}, []int{1}, 0},
		{"negative stride", make([]byte, 4), 1, []int{2}, []int{-1}, 0},
		{"negative offset", make([]byte, 4), 1, []int{2}, []int{1}, -1},
		{"out of bounds", make([]byte, 4), 1, []int{3}, []int{2}, 0},
		{"offset out of bounds", make([]byte, 4), 2, []int{2}, []int{1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storageview.New(tt.data, tt.bpe, tt.dims, tt.strides, tt.offset)
			assert.Error(t, err)
		})
	}
}
