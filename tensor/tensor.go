// Copyright 2026 the yad2g authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the float32 weight tensors
// attached to converted graph nodes.
//
// Example:
//
//	t, err := tensor.FromSlice(data, tensor.Shape{64, 32, 3, 3})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t, err = t.Transpose(2, 3, 1, 0) // (out,in,h,w) -> (h,w,in,out)
package tensor

import (
	"github.com/yad2g/yad2g/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{3, 3, 32, 64} is a 3×3 kernel over 32 input and 64
// output channels.
type Shape = tensor.Shape

// Tensor is a dense row-major float32 tensor.
type Tensor = tensor.Tensor

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	return tensor.New(shape)
}

// FromSlice creates a tensor wrapping data with the given shape.
// The slice is not copied; the caller must not mutate it afterward.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}
