package tensor

import "testing"

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestShapeNumElements(t *testing.T) {
	if n := (Shape{2, 3, 4}).NumElements(); n != 24 {
		t.Errorf("NumElements = %d, want 24", n)
	}
	if n := (Shape{}).NumElements(); n != 1 {
		t.Errorf("scalar NumElements = %d, want 1", n)
	}
}

func TestShapeComputeStrides(t *testing.T) {
	strides := (Shape{2, 3, 4}).ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("strides = %v, want %v", strides, want)
			break
		}
	}
}

func TestFromSliceLengthMismatch(t *testing.T) {
	if _, err := FromSlice(seq(5), Shape{2, 3}); err == nil {
		t.Fatal("expected error for mismatched data length")
	}
}

func TestTransposeKnownValues(t *testing.T) {
	// Shape (2, 3): [[0 1 2] [3 4 5]]; transposed (3, 2): [[0 3] [1 4] [2 5]].
	x, err := FromSlice(seq(6), Shape{2, 3})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}

	y, err := x.Transpose(1, 0)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}
	if !y.Shape().Equal(Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", y.Shape())
	}
	want := []float32{0, 3, 1, 4, 2, 5}
	for i, v := range want {
		if y.Data()[i] != v {
			t.Errorf("data = %v, want %v", y.Data(), want)
			break
		}
	}
}

// TestKernelTransposeRoundTrip covers the Darknet kernel re-layout:
// (out, in, h, w) -> (h, w, in, out) and back must be the identity,
// including non-square kernels.
func TestKernelTransposeRoundTrip(t *testing.T) {
	shapes := []Shape{
		{2, 3, 3, 3},
		{4, 2, 1, 5}, // h != w
		{1, 1, 2, 2},
		{5, 7, 3, 1},
	}

	for _, shape := range shapes {
		x, err := FromSlice(seq(shape.NumElements()), shape)
		if err != nil {
			t.Fatalf("FromSlice(%v): %v", shape, err)
		}

		fwd, err := x.Transpose(2, 3, 1, 0)
		if err != nil {
			t.Fatalf("forward transpose(%v): %v", shape, err)
		}
		wantFwd := Shape{shape[2], shape[3], shape[1], shape[0]}
		if !fwd.Shape().Equal(wantFwd) {
			t.Errorf("forward shape = %v, want %v", fwd.Shape(), wantFwd)
		}

		back, err := fwd.Transpose(3, 2, 0, 1)
		if err != nil {
			t.Fatalf("inverse transpose(%v): %v", shape, err)
		}
		if !back.Shape().Equal(shape) {
			t.Errorf("round-trip shape = %v, want %v", back.Shape(), shape)
		}
		for i := range x.Data() {
			if back.Data()[i] != x.Data()[i] {
				t.Errorf("shape %v: round-trip mismatch at %d: %v != %v",
					shape, i, back.Data()[i], x.Data()[i])
				break
			}
		}
	}
}

func TestTransposeBadAxes(t *testing.T) {
	x, err := FromSlice(seq(6), Shape{2, 3})
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if _, err := x.Transpose(0); err == nil {
		t.Error("expected error for wrong axes length")
	}
	if _, err := x.Transpose(0, 2); err == nil {
		t.Error("expected error for out-of-range axis")
	}
	if _, err := x.Transpose(1, 1); err == nil {
		t.Error("expected error for duplicate axis")
	}
}
