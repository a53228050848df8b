package tensor

import (
	"bytes"
	"fmt"
	"strings"
	"unsafe"
)

// Tensor is a typed, shaped, owned contiguous buffer.
//
// The buffer length always matches shape x dtype size; tensors with unknown
// dimensions do not exist at this level (the analyser reasons about those
// symbolically through facts). String tensors keep their elements in side
// storage since elements have no fixed byte size.
type Tensor struct {
	dtype DataType
	shape Shape
	data  []byte
	strs  []string // only for String dtype
}

// New creates a zero-filled Tensor with the given shape and type.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	t := &Tensor{
		dtype: dtype,
		shape: shape.Clone(),
	}
	if dtype == String {
		t.strs = make([]string, shape.NumElements())
	} else {
		t.data = make([]byte, shape.NumElements()*dtype.Size())
	}
	return t, nil
}

// FromBytes creates a Tensor over an existing raw buffer.
// The buffer is owned by the tensor afterwards.
func FromBytes(shape Shape, dtype DataType, data []byte) (*Tensor, error) {
	if dtype == String {
		return nil, fmt.Errorf("string tensors cannot be built from raw bytes")
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("buffer size %d does not match shape %v of %s (want %d)",
			len(data), shape, dtype, want)
	}
	return &Tensor{dtype: dtype, shape: shape.Clone(), data: data}, nil
}

// FromFloat32 creates a float32 tensor from a slice.
func FromFloat32(shape Shape, values []float32) (*Tensor, error) {
	t, err := newChecked(shape, Float32, len(values))
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat32(), values)
	return t, nil
}

// FromFloat64 creates a float64 tensor from a slice.
func FromFloat64(shape Shape, values []float64) (*Tensor, error) {
	t, err := newChecked(shape, Float64, len(values))
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat64(), values)
	return t, nil
}

// FromInt32 creates an int32 tensor from a slice.
func FromInt32(shape Shape, values []int32) (*Tensor, error) {
	t, err := newChecked(shape, Int32, len(values))
	if err != nil {
		return nil, err
	}
	copy(t.AsInt32(), values)
	return t, nil
}

// FromInt64 creates an int64 tensor from a slice.
func FromInt64(shape Shape, values []int64) (*Tensor, error) {
	t, err := newChecked(shape, Int64, len(values))
	if err != nil {
		return nil, err
	}
	copy(t.AsInt64(), values)
	return t, nil
}

// FromUint8 creates a uint8 tensor from a slice.
func FromUint8(shape Shape, values []uint8) (*Tensor, error) {
	t, err := newChecked(shape, Uint8, len(values))
	if err != nil {
		return nil, err
	}
	copy(t.AsUint8(), values)
	return t, nil
}

// FromBool creates a bool tensor from a slice.
func FromBool(shape Shape, values []bool) (*Tensor, error) {
	t, err := newChecked(shape, Bool, len(values))
	if err != nil {
		return nil, err
	}
	copy(t.AsBool(), values)
	return t, nil
}

// FromStrings creates a string tensor from a slice.
func FromStrings(shape Shape, values []string) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(values) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, shape.NumElements(), len(values))
	}
	strs := make([]string, len(values))
	copy(strs, values)
	return &Tensor{dtype: String, shape: shape.Clone(), strs: strs}, nil
}

// Scalar creates a rank-0 float32 tensor.
func Scalar(v float32) *Tensor {
	t, _ := FromFloat32(Shape{}, []float32{v})
	return t
}

func newChecked(shape Shape, dtype DataType, n int) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != n {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, shape.NumElements(), n)
	}
	return &Tensor{
		dtype: dtype,
		shape: shape.Clone(),
		data:  make([]byte, n*dtype.Size()),
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Data returns the raw byte buffer. Nil for string tensors.
func (t *Tensor) Data() []byte {
	return t.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *Tensor) AsFloat32() []float32 {
	t.mustBe(Float32)
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (t *Tensor) AsFloat64() []float64 {
	t.mustBe(Float64)
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (t *Tensor) AsInt32() []int32 {
	t.mustBe(Int32)
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (t *Tensor) AsInt64() []int64 {
	t.mustBe(Int64)
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsUint8 interprets the data as []uint8.
// Panics if the tensor's dtype is not Uint8.
func (t *Tensor) AsUint8() []uint8 {
	t.mustBe(Uint8)
	return t.data
}

// AsBool interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (t *Tensor) AsBool() []bool {
	t.mustBe(Bool)
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// AsStrings returns the string elements.
// Panics if the tensor's dtype is not String.
func (t *Tensor) AsStrings() []string {
	t.mustBe(String)
	return t.strs
}

func (t *Tensor) mustBe(dt DataType) {
	if t.dtype != dt {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", t.dtype, dt))
	}
}

// Ints returns the elements of an Int32 or Int64 tensor as a plain int slice.
// Several operators (Reshape, ConcatV2, ExpandDims) take shape or axis
// operands in either integer width.
func (t *Tensor) Ints() ([]int, error) {
	switch t.dtype {
	case Int32:
		src := t.AsInt32()
		out := make([]int, len(src))
		for i, v := range src {
			out[i] = int(v)
		}
		return out, nil
	case Int64:
		src := t.AsInt64()
		out := make([]int, len(src))
		for i, v := range src {
			out[i] = int(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an integer tensor, got %s", t.dtype)
	}
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{dtype: t.dtype, shape: t.shape.Clone()}
	if t.dtype == String {
		c.strs = append([]string(nil), t.strs...)
	} else {
		c.data = append([]byte(nil), t.data...)
	}
	return c
}

// Equal reports bit-identical equality: same dtype, same shape, same buffer.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.dtype != other.dtype || !t.shape.Equal(other.shape) {
		return false
	}
	if t.dtype == String {
		if len(t.strs) != len(other.strs) {
			return false
		}
		for i := range t.strs {
			if t.strs[i] != other.strs[i] {
				return false
			}
		}
		return true
	}
	return bytes.Equal(t.data, other.data)
}

// WithShape returns a view of the same buffer under a different shape with
// the same element count. The buffer is shared, not copied.
func (t *Tensor) WithShape(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("cannot view %d elements as shape %v (%d elements)",
			t.NumElements(), shape, shape.NumElements())
	}
	return &Tensor{dtype: t.dtype, shape: shape.Clone(), data: t.data, strs: t.strs}, nil
}

// String returns a short dump: full contents for small tensors, dtype and
// shape only for large ones.
func (t *Tensor) String() string {
	if t.NumElements() > 25 {
		return fmt.Sprintf("%s %v", t.dtype, t.shape)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %v [", t.dtype, t.shape)
	for i := 0; i < t.NumElements(); i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		switch t.dtype {
		case Float32:
			fmt.Fprintf(&b, "%g", t.AsFloat32()[i])
		case Float64:
			fmt.Fprintf(&b, "%g", t.AsFloat64()[i])
		case Int32:
			fmt.Fprintf(&b, "%d", t.AsInt32()[i])
		case Int64:
			fmt.Fprintf(&b, "%d", t.AsInt64()[i])
		case Uint8:
			fmt.Fprintf(&b, "%d", t.AsUint8()[i])
		case Bool:
			fmt.Fprintf(&b, "%t", t.AsBool()[i])
		case String:
			fmt.Fprintf(&b, "%q", t.strs[i])
		}
	}
	b.WriteString("]")
	return b.String()
}
