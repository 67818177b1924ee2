// Package tensor provides the float32 tensors attached to graph nodes.
//
// Weight tensors are read once from the weight stream, transposed once
// into the target layout, and never mutated afterward, so the type is a
// flat float32 slice plus a shape. There is no broadcasting, no dtype
// zoo and no device abstraction here.
package tensor

import "fmt"

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	data  []float32
	shape Shape
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor{
		data:  make([]float32, shape.NumElements()),
		shape: shape.Clone(),
	}, nil
}

// FromSlice creates a tensor wrapping data with the given shape.
// The slice is not copied; the caller must not mutate it afterward.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	return &Tensor{data: data, shape: shape.Clone()}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the tensor's backing slice in row-major order.
func (t *Tensor) Data() []float32 {
	return t.data
}

// NumElements returns the total element count.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Transpose permutes the tensor's dimensions according to axes, with
// numpy semantics: result dimension i is input dimension axes[i].
// The data is materialized in the new layout, not viewed.
func (t *Tensor) Transpose(axes ...int) (*Tensor, error) {
	ndim := len(t.shape)
	if len(axes) != ndim {
		return nil, fmt.Errorf("transpose: axes length %d must match tensor dimensions %d", len(axes), ndim)
	}

	seen := make([]bool, ndim)
	newShape := make(Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim {
			return nil, fmt.Errorf("transpose: axis %d out of range [0, %d)", ax, ndim)
		}
		if seen[ax] {
			return nil, fmt.Errorf("transpose: duplicate axis %d", ax)
		}
		seen[ax] = true
		newShape[i] = t.shape[ax]
	}

	result, err := New(newShape)
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}
	transposeData(t.data, result.data, t.shape, newShape, axes)
	return result, nil
}

func transposeData(in, out []float32, oldShape, newShape Shape, axes []int) {
	ndim := len(oldShape)
	oldStrides := oldShape.ComputeStrides()

	idx := make([]int, ndim)
	for i := range out {
		// Decompose i into multi-dimensional index in the new layout.
		tmp := i
		for j := ndim - 1; j >= 0; j-- {
			idx[j] = tmp % newShape[j]
			tmp /= newShape[j]
		}

		// Map back to the old flat index.
		oldFlat := 0
		for j := 0; j < ndim; j++ {
			oldFlat += idx[j] * oldStrides[axes[j]]
		}
		out[i] = in[oldFlat]
	}
}
