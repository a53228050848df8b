package tensor

import (
	"testing"
)

func assertEqualShape(t *testing.T, expected, actual Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Float64, 8},
		{Int32, 4},
		{Int64, 8},
		{Uint8, 1},
		{Bool, 1},
		{String, 0},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.size)
		}
	}
}

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{3}, 3},
		{Shape{2, 3}, 6},
		{Shape{2, 0, 3}, 0},
	}

	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Fatalf("strides = %v, want %v", strides, want)
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b      Shape
		want      Shape
		needs     bool
		expectErr bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{}, Shape{2, 2}, Shape{2, 2}, true, false},
		{Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		got, needs, err := BroadcastShapes(tt.a, tt.b)
		if tt.expectErr {
			if err == nil {
				t.Errorf("BroadcastShapes(%v, %v): expected error", tt.a, tt.b)
			}
			continue
		}
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v): %v", tt.a, tt.b, err)
			continue
		}
		assertEqualShape(t, tt.want, got, "broadcast result")
		if needs != tt.needs {
			t.Errorf("BroadcastShapes(%v, %v): needsBroadcast = %t, want %t", tt.a, tt.b, needs, tt.needs)
		}
	}
}

func TestFromFloat32(t *testing.T) {
	x, err := FromFloat32(Shape{2, 2}, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("FromFloat32: %v", err)
	}
	if x.DType() != Float32 {
		t.Errorf("dtype = %s, want float32", x.DType())
	}
	assertEqualShape(t, Shape{2, 2}, x.Shape(), "shape")
	got := x.AsFloat32()
	for i, want := range []float32{1, 2, 3, 4} {
		if got[i] != want {
			t.Errorf("element %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestFromFloat32SizeMismatch(t *testing.T) {
	if _, err := FromFloat32(Shape{2, 2}, []float32{1, 2, 3}); err == nil {
		t.Error("expected element count mismatch error")
	}
}

func TestBufferInvariant(t *testing.T) {
	x, err := New(Shape{3, 5}, Float64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(x.Data()) != 3*5*8 {
		t.Errorf("buffer length = %d, want %d", len(x.Data()), 3*5*8)
	}
}

func TestAsWrongTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on wrong-typed view")
		}
	}()
	x, _ := FromInt32(Shape{2}, []int32{1, 2})
	x.AsFloat32()
}

func TestInts(t *testing.T) {
	x, _ := FromInt64(Shape{3}, []int64{4, 5, 6})
	got, err := x.Ints()
	if err != nil {
		t.Fatalf("Ints: %v", err)
	}
	for i, want := range []int{4, 5, 6} {
		if got[i] != want {
			t.Errorf("element %d = %d, want %d", i, got[i], want)
		}
	}

	f, _ := FromFloat32(Shape{1}, []float32{1})
	if _, err := f.Ints(); err == nil {
		t.Error("expected error for float tensor")
	}
}

func TestCloneIsDeep(t *testing.T) {
	x, _ := FromFloat32(Shape{2}, []float32{1, 2})
	y := x.Clone()
	y.AsFloat32()[0] = 42
	if x.AsFloat32()[0] != 1 {
		t.Error("clone shares buffer with original")
	}
	if !x.Shape().Equal(y.Shape()) || x.DType() != y.DType() {
		t.Error("clone changed dtype or shape")
	}
}

func TestEqual(t *testing.T) {
	a, _ := FromFloat32(Shape{2}, []float32{1, 2})
	b, _ := FromFloat32(Shape{2}, []float32{1, 2})
	c, _ := FromFloat32(Shape{1, 2}, []float32{1, 2})
	d, _ := FromFloat32(Shape{2}, []float32{1, 3})

	if !a.Equal(b) {
		t.Error("identical tensors not equal")
	}
	if a.Equal(c) {
		t.Error("different shapes compare equal")
	}
	if a.Equal(d) {
		t.Error("different contents compare equal")
	}
}

func TestWithShape(t *testing.T) {
	x, _ := FromFloat32(Shape{2, 4}, []float32{0, 1, 2, 3, 4, 5, 6, 7})
	y, err := x.WithShape(Shape{4, 2})
	if err != nil {
		t.Fatalf("WithShape: %v", err)
	}
	assertEqualShape(t, Shape{4, 2}, y.Shape(), "reshaped")

	// Shared buffer, not a copy.
	y.AsFloat32()[0] = 9
	if x.AsFloat32()[0] != 9 {
		t.Error("WithShape copied the buffer")
	}

	if _, err := x.WithShape(Shape{3, 3}); err == nil {
		t.Error("expected element count mismatch")
	}
}

func TestStringTensor(t *testing.T) {
	s, err := FromStrings(Shape{2}, []string{"a", "b"})
	if err != nil {
		t.Fatalf("FromStrings: %v", err)
	}
	if s.AsStrings()[1] != "b" {
		t.Errorf("element 1 = %q, want %q", s.AsStrings()[1], "b")
	}
	if s.DType() != String {
		t.Errorf("dtype = %s, want string", s.DType())
	}
}
