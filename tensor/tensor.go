// Package tensor provides the public tensor value API: a dense,
// row-major, immutable-shape tensor over a small set of element types.
//
// Example:
//
//	x, _ := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	fmt.Println(x.Shape(), x.AsFloat32())
package tensor

import (
	"github.com/liautaud/tfdeploy/internal/tensor"
)

// DataType identifies a tensor's element type.
type DataType = tensor.DataType

// Element type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	String  DataType = tensor.String
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} is a 3-D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Tensor is a dense n-dimensional array.
type Tensor = tensor.Tensor

// Constructors.
var (
	New         = tensor.New
	FromBytes   = tensor.FromBytes
	FromFloat32 = tensor.FromFloat32
	FromFloat64 = tensor.FromFloat64
	FromInt32   = tensor.FromInt32
	FromInt64   = tensor.FromInt64
	FromUint8   = tensor.FromUint8
	FromBool    = tensor.FromBool
	FromStrings = tensor.FromStrings
	Scalar      = tensor.Scalar
)

// BroadcastShapes applies the NumPy broadcasting rules to two shapes.
var BroadcastShapes = tensor.BroadcastShapes
