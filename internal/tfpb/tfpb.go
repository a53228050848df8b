// Package tfpb holds the generic message tree decoded from a serialized
// TensorFlow GraphDef.
//
// The types here mirror the wire schema (node_def.proto, attr_value.proto,
// tensor.proto, tensor_shape.proto) and carry no runtime semantics: the
// graph loader is responsible for validating and translating them into the
// typed Graph.
package tfpb

// DataType is the TensorFlow wire-level dtype enum.
type DataType int32

// Wire values from types.proto.
const (
	DtInvalid DataType = 0
	DtFloat   DataType = 1
	DtDouble  DataType = 2
	DtInt32   DataType = 3
	DtUint8   DataType = 4
	DtInt16   DataType = 5
	DtInt8    DataType = 6
	DtString  DataType = 7
	DtInt64   DataType = 9
	DtBool    DataType = 10
	DtHalf    DataType = 19
)

// GraphDef is the root message: an ordered list of node records.
type GraphDef struct {
	Nodes []*NodeDef
}

// NodeDef is one raw graph node: a name, an operator type string, input
// name references and a map of typed attributes.
type NodeDef struct {
	Name   string
	Op     string
	Input  []string
	Device string
	Attr   map[string]*AttrValue
}

// AttrKind identifies which branch of the AttrValue oneof is populated.
type AttrKind int

// AttrValue oneof branches.
const (
	AttrNone AttrKind = iota
	AttrBytes
	AttrInt
	AttrFloat
	AttrBool
	AttrType
	AttrShape
	AttrTensor
	AttrList
	AttrPlaceholder
)

func (k AttrKind) String() string {
	switch k {
	case AttrBytes:
		return "bytes"
	case AttrInt:
		return "int"
	case AttrFloat:
		return "float"
	case AttrBool:
		return "bool"
	case AttrType:
		return "type"
	case AttrShape:
		return "shape"
	case AttrTensor:
		return "tensor"
	case AttrList:
		return "list"
	case AttrPlaceholder:
		return "placeholder"
	default:
		return "none"
	}
}

// AttrValue is one typed attribute value (scalar, list, or tensor literal).
type AttrValue struct {
	Kind        AttrKind
	S           []byte
	I           int64
	F           float32
	B           bool
	Type        DataType
	Shape       *TensorShapeProto
	Tensor      *TensorProto
	List        *AttrListValue
	Placeholder string
}

// AttrListValue is the repeated branch of AttrValue.
type AttrListValue struct {
	S      [][]byte
	I      []int64
	F      []float32
	B      []bool
	Type   []DataType
	Shape  []*TensorShapeProto
	Tensor []*TensorProto
}

// TensorProto is a tensor literal. Element data is either in Content
// (raw little-endian bytes) or in one of the per-type value fields.
type TensorProto struct {
	Dtype     DataType
	Shape     *TensorShapeProto
	Content   []byte
	HalfVal   []uint16
	FloatVal  []float32
	DoubleVal []float64
	IntVal    []int32
	StringVal [][]byte
	Int64Val  []int64
	BoolVal   []bool
}

// TensorShapeProto describes a possibly partially-known shape.
// A dim size of -1 means unknown.
type TensorShapeProto struct {
	Dims        []TensorShapeDim
	UnknownRank bool
}

// TensorShapeDim is one dimension of a TensorShapeProto.
type TensorShapeDim struct {
	Size int64
	Name string
}
