package ops

import (
	"fmt"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func (r *Registry) registerCastOps() {
	r.Register("Cast", buildCast)
}

// Cast converts between numeric element types.
type Cast struct {
	foldable
	Src tensor.DataType
	Dst tensor.DataType
}

func buildCast(node *tfpb.NodeDef) (Op, error) {
	srcProto, err := AttrType(node, "SrcT")
	if err != nil {
		return nil, err
	}
	dstProto, err := AttrType(node, "DstT")
	if err != nil {
		return nil, err
	}
	src, err := DataTypeFromProto(srcProto)
	if err != nil {
		return nil, attrErr(node, "SrcT", "%v", err)
	}
	dst, err := DataTypeFromProto(dstProto)
	if err != nil {
		return nil, attrErr(node, "DstT", "%v", err)
	}
	if !src.IsNumeric() || !dst.IsNumeric() {
		return nil, attrErr(node, "DstT", "Cast only supports numeric types, got %s -> %s", src, dst)
	}
	return &Cast{Src: src, Dst: dst}, nil
}

func (c *Cast) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	inType, err := mergeTypes(inputs[0].Type, TypeFact{Known: true, Type: c.Src})
	if err != nil {
		return nil, nil, err
	}
	outType, err := mergeTypes(outputs[0].Type, TypeFact{Known: true, Type: c.Dst})
	if err != nil {
		return nil, nil, err
	}
	shape, err := inputs[0].Shape.Merge(outputs[0].Shape)
	if err != nil {
		return nil, nil, err
	}

	newIn := []Fact{{Type: inType, Shape: shape, Value: inputs[0].Value}}
	out, _, err := outputs[0].Merge(Fact{Type: outType, Shape: shape})
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{out}, nil
}

func (c *Cast) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Cast", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.DType() != c.Src {
		return nil, fmt.Errorf("%w: Cast expects %s input, got %s", ErrTypeMismatch, c.Src, x.DType())
	}
	if c.Src == c.Dst {
		return []*tensor.Tensor{x}, nil
	}

	out, err := tensor.New(x.Shape(), c.Dst)
	if err != nil {
		return nil, err
	}
	switch c.Src {
	case tensor.Float32:
		castFrom(x.AsFloat32(), out)
	case tensor.Float64:
		castFrom(x.AsFloat64(), out)
	case tensor.Int32:
		castFrom(x.AsInt32(), out)
	case tensor.Int64:
		castFrom(x.AsInt64(), out)
	case tensor.Uint8:
		castFrom(x.AsUint8(), out)
	default:
		return nil, fmt.Errorf("%w: Cast does not support %s", ErrTypeMismatch, c.Src)
	}
	return []*tensor.Tensor{out}, nil
}

type numeric interface {
	float32 | float64 | int32 | int64 | uint8
}

func castFrom[S numeric](src []S, out *tensor.Tensor) {
	switch out.DType() {
	case tensor.Float32:
		castInto(src, out.AsFloat32())
	case tensor.Float64:
		castInto(src, out.AsFloat64())
	case tensor.Int32:
		castInto(src, out.AsInt32())
	case tensor.Int64:
		castInto(src, out.AsInt64())
	case tensor.Uint8:
		castInto(src, out.AsUint8())
	}
}

func castInto[S, D numeric](src []S, dst []D) {
	for i, v := range src {
		dst[i] = D(v)
	}
}
