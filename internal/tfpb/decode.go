package tfpb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseGraphDef decodes a serialized GraphDef into the generic message tree.
func ParseGraphDef(data []byte) (*GraphDef, error) {
	def := &GraphDef{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("graph_def: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1: // node
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("graph_def.node: %w", protowire.ParseError(n))
			}
			b = b[n:]
			node, err := parseNodeDef(v)
			if err != nil {
				return nil, err
			}
			def.Nodes = append(def.Nodes, node)
		default:
			// versions, library and deprecated fields are irrelevant here
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("graph_def field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return def, nil
}

func parseNodeDef(data []byte) (*NodeDef, error) {
	node := &NodeDef{Attr: make(map[string]*AttrValue)}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("node_def: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1, 2, 3, 4:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("node_def field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case 1:
				node.Name = string(v)
			case 2:
				node.Op = string(v)
			case 3:
				node.Input = append(node.Input, string(v))
			case 4:
				node.Device = string(v)
			}
		case 5: // attr map entry
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("node_def.attr: %w", protowire.ParseError(n))
			}
			b = b[n:]
			key, value, err := parseAttrEntry(v)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", node.Name, err)
			}
			node.Attr[key] = value
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("node_def field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return node, nil
}

// parseAttrEntry decodes one map<string, AttrValue> entry (key=1, value=2).
func parseAttrEntry(data []byte) (string, *AttrValue, error) {
	var key string
	value := &AttrValue{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("attr entry: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("attr key: %w", protowire.ParseError(n))
			}
			b = b[n:]
			key = string(v)
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("attr value: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av, err := parseAttrValue(v)
			if err != nil {
				return "", nil, err
			}
			value = av
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("attr entry field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return key, value, nil
}

func parseAttrValue(data []byte) (*AttrValue, error) {
	av := &AttrValue{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("attr_value: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1: // list
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.list: %w", protowire.ParseError(n))
			}
			b = b[n:]
			list, err := parseAttrList(v)
			if err != nil {
				return nil, err
			}
			av.Kind = AttrList
			av.List = list
		case 2: // s
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.s: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av.Kind = AttrBytes
			av.S = v
		case 3: // i
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.i: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av.Kind = AttrInt
			av.I = int64(v)
		case 4: // f
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.f: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av.Kind = AttrFloat
			av.F = math.Float32frombits(v)
		case 5: // b
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.b: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av.Kind = AttrBool
			av.B = v != 0
		case 6: // type
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.type: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av.Kind = AttrType
			av.Type = DataType(v)
		case 7: // shape
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.shape: %w", protowire.ParseError(n))
			}
			b = b[n:]
			shape, err := parseShapeProto(v)
			if err != nil {
				return nil, err
			}
			av.Kind = AttrShape
			av.Shape = shape
		case 8: // tensor
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.tensor: %w", protowire.ParseError(n))
			}
			b = b[n:]
			tensor, err := parseTensorProto(v)
			if err != nil {
				return nil, err
			}
			av.Kind = AttrTensor
			av.Tensor = tensor
		case 9: // placeholder
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value.placeholder: %w", protowire.ParseError(n))
			}
			b = b[n:]
			av.Kind = AttrPlaceholder
			av.Placeholder = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("attr_value field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return av, nil
}

func parseAttrList(data []byte) (*AttrListValue, error) {
	list := &AttrListValue{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("attr_value.list: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 2: // s
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("list.s: %w", protowire.ParseError(n))
			}
			b = b[n:]
			list.S = append(list.S, v)
		case 3: // i
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				list.I = append(list.I, int64(v))
			})
			if err != nil {
				return nil, fmt.Errorf("list.i: %w", err)
			}
			b = rest
		case 4: // f
			rest, err := consumeRepeatedFixed32(b, typ, func(v uint32) {
				list.F = append(list.F, math.Float32frombits(v))
			})
			if err != nil {
				return nil, fmt.Errorf("list.f: %w", err)
			}
			b = rest
		case 5: // b
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				list.B = append(list.B, v != 0)
			})
			if err != nil {
				return nil, fmt.Errorf("list.b: %w", err)
			}
			b = rest
		case 6: // type
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				list.Type = append(list.Type, DataType(v))
			})
			if err != nil {
				return nil, fmt.Errorf("list.type: %w", err)
			}
			b = rest
		case 7: // shape
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("list.shape: %w", protowire.ParseError(n))
			}
			b = b[n:]
			shape, err := parseShapeProto(v)
			if err != nil {
				return nil, err
			}
			list.Shape = append(list.Shape, shape)
		case 8: // tensor
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("list.tensor: %w", protowire.ParseError(n))
			}
			b = b[n:]
			tensor, err := parseTensorProto(v)
			if err != nil {
				return nil, err
			}
			list.Tensor = append(list.Tensor, tensor)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("list field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return list, nil
}

func parseTensorProto(data []byte) (*TensorProto, error) {
	tp := &TensorProto{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("tensor_proto: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1: // dtype
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_proto.dtype: %w", protowire.ParseError(n))
			}
			b = b[n:]
			tp.Dtype = DataType(v)
		case 2: // tensor_shape
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_proto.tensor_shape: %w", protowire.ParseError(n))
			}
			b = b[n:]
			shape, err := parseShapeProto(v)
			if err != nil {
				return nil, err
			}
			tp.Shape = shape
		case 4: // tensor_content
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_proto.tensor_content: %w", protowire.ParseError(n))
			}
			b = b[n:]
			tp.Content = v
		case 5: // float_val
			rest, err := consumeRepeatedFixed32(b, typ, func(v uint32) {
				tp.FloatVal = append(tp.FloatVal, math.Float32frombits(v))
			})
			if err != nil {
				return nil, fmt.Errorf("tensor_proto.float_val: %w", err)
			}
			b = rest
		case 6: // double_val
			rest, err := consumeRepeatedFixed64(b, typ, func(v uint64) {
				tp.DoubleVal = append(tp.DoubleVal, math.Float64frombits(v))
			})
			if err != nil {
				return nil, fmt.Errorf("tensor_proto.double_val: %w", err)
			}
			b = rest
		case 7: // int_val
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				tp.IntVal = append(tp.IntVal, int32(v))
			})
			if err != nil {
				return nil, fmt.Errorf("tensor_proto.int_val: %w", err)
			}
			b = rest
		case 8: // string_val
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_proto.string_val: %w", protowire.ParseError(n))
			}
			b = b[n:]
			tp.StringVal = append(tp.StringVal, v)
		case 10: // int64_val
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				tp.Int64Val = append(tp.Int64Val, int64(v))
			})
			if err != nil {
				return nil, fmt.Errorf("tensor_proto.int64_val: %w", err)
			}
			b = rest
		case 11: // bool_val
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				tp.BoolVal = append(tp.BoolVal, v != 0)
			})
			if err != nil {
				return nil, fmt.Errorf("tensor_proto.bool_val: %w", err)
			}
			b = rest
		case 13: // half_val
			rest, err := consumeRepeatedVarint(b, typ, func(v uint64) {
				tp.HalfVal = append(tp.HalfVal, uint16(v))
			})
			if err != nil {
				return nil, fmt.Errorf("tensor_proto.half_val: %w", err)
			}
			b = rest
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_proto field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return tp, nil
}

func parseShapeProto(data []byte) (*TensorShapeProto, error) {
	sp := &TensorShapeProto{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("tensor_shape: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 2: // dim
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_shape.dim: %w", protowire.ParseError(n))
			}
			b = b[n:]
			dim, err := parseShapeDim(v)
			if err != nil {
				return nil, err
			}
			sp.Dims = append(sp.Dims, *dim)
		case 3: // unknown_rank
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_shape.unknown_rank: %w", protowire.ParseError(n))
			}
			b = b[n:]
			sp.UnknownRank = v != 0
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("tensor_shape field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return sp, nil
}

func parseShapeDim(data []byte) (*TensorShapeDim, error) {
	dim := &TensorShapeDim{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("tensor_shape.dim: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("dim.size: %w", protowire.ParseError(n))
			}
			b = b[n:]
			dim.Size = int64(v)
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("dim.name: %w", protowire.ParseError(n))
			}
			b = b[n:]
			dim.Name = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("dim field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return dim, nil
}

// Repeated scalar fields appear packed (one length-delimited payload) or as
// individual tagged values; proto3 serializers emit the former but both are
// legal on the wire.

func consumeRepeatedVarint(b []byte, typ protowire.Type, emit func(uint64)) ([]byte, error) {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		for len(packed) > 0 {
			v, n := protowire.ConsumeVarint(packed)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			packed = packed[n:]
			emit(v)
		}
		return b, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	emit(v)
	return b[n:], nil
}

func consumeRepeatedFixed32(b []byte, typ protowire.Type, emit func(uint32)) ([]byte, error) {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		for len(packed) > 0 {
			v, n := protowire.ConsumeFixed32(packed)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			packed = packed[n:]
			emit(v)
		}
		return b, nil
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	emit(v)
	return b[n:], nil
}

func consumeRepeatedFixed64(b []byte, typ protowire.Type, emit func(uint64)) ([]byte, error) {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		for len(packed) > 0 {
			v, n := protowire.ConsumeFixed64(packed)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			packed = packed[n:]
			emit(v)
		}
		return b, nil
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	emit(v)
	return b[n:], nil
}
