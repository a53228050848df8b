// Package tensor provides the core tensor value type for the tfdeploy runtime.
package tensor

import "fmt"

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
	String
)

// Size returns the byte size of one element of the data type.
// String elements have no fixed size; callers must special-case them.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	case String:
		return 0
	default:
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether arithmetic kernels accept the data type.
func (dt DataType) IsNumeric() bool {
	switch dt {
	case Float32, Float64, Int32, Int64, Uint8:
		return true
	default:
		return false
	}
}
