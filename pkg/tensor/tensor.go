// Package tensor holds the dense float32 arrays passed between the crop
// extractor, the batching loader and the model backends.
package tensor

import (
	"errors"
	"fmt"
)

// ErrShape is returned when tensors cannot be combined.
var ErrShape = errors.New("tensor: shape mismatch")

// Tensor is a row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor with the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, Size(shape))}
}

// FromData wraps data, which must hold exactly Size(shape) values.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if len(data) != Size(shape) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Size is the number of elements of a tensor with the given shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the size of the leading axis.
func (t *Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Index returns a view of the i-th slice along the leading axis.
func (t *Tensor) Index(i int) *Tensor {
	inner := Size(t.Shape[1:])
	return &Tensor{
		Shape: append([]int(nil), t.Shape[1:]...),
		Data:  t.Data[i*inner : (i+1)*inner],
	}
}

// Int64Shape converts the shape for libraries that want int64 dims.
func (t *Tensor) Int64Shape() []int64 {
	out := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		out[i] = int64(d)
	}
	return out
}

// Stack joins equally shaped tensors along a new leading axis.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShape)
	}
	inner := ts[0].Shape
	out := New(append([]int{len(ts)}, inner...)...)
	step := Size(inner)
	for i, t := range ts {
		if !sameShape(t.Shape, inner) {
			return nil, fmt.Errorf("%w: element %d has shape %v, want %v", ErrShape, i, t.Shape, inner)
		}
		copy(out.Data[i*step:], t.Data)
	}
	return out, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
