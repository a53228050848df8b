package ops

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

// DataTypeFromProto maps a wire-level dtype onto the runtime's DataType.
// DT_HALF maps to Float32: half-precision content is widened at the decode
// boundary and computed in float32.
func DataTypeFromProto(dt tfpb.DataType) (tensor.DataType, error) {
	switch dt {
	case tfpb.DtFloat, tfpb.DtHalf:
		return tensor.Float32, nil
	case tfpb.DtDouble:
		return tensor.Float64, nil
	case tfpb.DtInt32:
		return tensor.Int32, nil
	case tfpb.DtInt64:
		return tensor.Int64, nil
	case tfpb.DtUint8:
		return tensor.Uint8, nil
	case tfpb.DtBool:
		return tensor.Bool, nil
	case tfpb.DtString:
		return tensor.String, nil
	default:
		return 0, fmt.Errorf("unsupported data type %d", int32(dt))
	}
}

// ShapeFactFromProto translates a wire-level shape into a shape fact:
// unknown_rank becomes an open shape, size -1 an unknown dimension.
func ShapeFactFromProto(sp *tfpb.TensorShapeProto) ShapeFact {
	if sp == nil || sp.UnknownRank {
		return ShapeFact{Open: true}
	}
	dims := make([]DimFact, len(sp.Dims))
	for i, d := range sp.Dims {
		if d.Size < 0 {
			dims[i] = AnyDim()
		} else {
			dims[i] = KnownDim(int(d.Size))
		}
	}
	return ShapeFact{Dims: dims}
}

// TensorFromProto materializes a tensor literal. Element data comes from
// the raw tensor_content bytes when present, otherwise from the per-type
// value fields; a single value fills the whole tensor, following the wire
// format's trailing-value convention.
func TensorFromProto(tp *tfpb.TensorProto) (*tensor.Tensor, error) {
	shapeFact := ShapeFactFromProto(tp.Shape)
	shape, ok := shapeFact.Concrete()
	if !ok {
		return nil, fmt.Errorf("tensor literal has partially-unknown shape %s", shapeFact)
	}
	dtype, err := DataTypeFromProto(tp.Dtype)
	if err != nil {
		return nil, err
	}

	if tp.Dtype == tfpb.DtHalf {
		return halfTensor(tp, shape)
	}
	if dtype == tensor.String {
		strs := make([]string, len(tp.StringVal))
		for i, s := range tp.StringVal {
			strs[i] = string(s)
		}
		return tensor.FromStrings(shape, strs)
	}

	if len(tp.Content) > 0 {
		data := append([]byte(nil), tp.Content...)
		return tensor.FromBytes(shape, dtype, data)
	}

	n := shape.NumElements()
	switch dtype {
	case tensor.Float32:
		return tensor.FromFloat32(shape, fill(tp.FloatVal, n))
	case tensor.Float64:
		return tensor.FromFloat64(shape, fill(tp.DoubleVal, n))
	case tensor.Int32:
		return tensor.FromInt32(shape, fill(tp.IntVal, n))
	case tensor.Int64:
		return tensor.FromInt64(shape, fill(tp.Int64Val, n))
	case tensor.Uint8:
		vals := make([]uint8, len(tp.IntVal))
		for i, v := range tp.IntVal {
			vals[i] = uint8(v)
		}
		return tensor.FromUint8(shape, fill(vals, n))
	case tensor.Bool:
		return tensor.FromBool(shape, fill(tp.BoolVal, n))
	default:
		return nil, fmt.Errorf("unsupported tensor literal dtype %s", dtype)
	}
}

func halfTensor(tp *tfpb.TensorProto, shape tensor.Shape) (*tensor.Tensor, error) {
	var vals []float32
	if len(tp.Content) > 0 {
		if len(tp.Content)%2 != 0 {
			return nil, fmt.Errorf("half tensor content has odd length %d", len(tp.Content))
		}
		vals = make([]float32, len(tp.Content)/2)
		for i := range vals {
			bits := uint16(tp.Content[2*i]) | uint16(tp.Content[2*i+1])<<8
			vals[i] = float16.Frombits(bits).Float32()
		}
	} else {
		vals = make([]float32, len(tp.HalfVal))
		for i, bits := range tp.HalfVal {
			vals[i] = float16.Frombits(bits).Float32()
		}
	}
	return tensor.FromFloat32(shape, fill(vals, shape.NumElements()))
}

// fill expands a single trailing value to the full element count.
func fill[T any](vals []T, n int) []T {
	if len(vals) == 1 && n > 1 {
		out := make([]T, n)
		for i := range out {
			out[i] = vals[0]
		}
		return out
	}
	return vals
}
