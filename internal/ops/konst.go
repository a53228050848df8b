package ops

import (
	"fmt"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func (r *Registry) registerConstOps() {
	r.Register("Const", buildConst)
	r.Register("Placeholder", buildPlaceholder)
	r.Register("PlaceholderV2", buildPlaceholder)
}

// Const carries a tensor literal captured at load time.
type Const struct {
	Value *tensor.Tensor
}

func buildConst(node *tfpb.NodeDef) (Op, error) {
	tp, err := AttrTensor(node, "value")
	if err != nil {
		return nil, err
	}
	value, err := TensorFromProto(tp)
	if err != nil {
		return nil, attrErr(node, "value", "holds an invalid tensor literal: %v", err)
	}
	if dt, err := AttrType(node, "dtype"); err == nil {
		want, err := DataTypeFromProto(dt)
		if err != nil {
			return nil, attrErr(node, "dtype", "is unsupported: %v", err)
		}
		if want != value.DType() {
			return nil, attrErr(node, "dtype", "says %s but the literal is %s", want, value.DType())
		}
	}
	return &Const{Value: value}, nil
}

// NewConst wraps a precomputed tensor, as used by constant folding.
func NewConst(value *tensor.Tensor) *Const {
	return &Const{Value: value}
}

func (c *Const) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	return inputs, []Fact{ConstFact(c.Value)}, nil
}

func (c *Const) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Const", inputs, 0); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{c.Value}, nil
}

// Placeholder is a graph input whose value is supplied at run time.
type Placeholder struct {
	Dtype tensor.DataType
	Shape ShapeFact
}

func buildPlaceholder(node *tfpb.NodeDef) (Op, error) {
	dt, err := AttrType(node, "dtype")
	if err != nil {
		return nil, err
	}
	dtype, err := DataTypeFromProto(dt)
	if err != nil {
		return nil, attrErr(node, "dtype", "is unsupported: %v", err)
	}
	sp, err := AttrShape(node, "shape")
	if err != nil {
		return nil, err
	}
	shape := ShapeFact{Open: true}
	if sp != nil {
		shape = ShapeFactFromProto(sp)
	}
	return &Placeholder{Dtype: dtype, Shape: shape}, nil
}

func (p *Placeholder) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	out, _, err := outputs[0].Merge(Fact{
		Type:  TypeFact{Known: true, Type: p.Dtype},
		Shape: p.Shape,
	})
	if err != nil {
		return nil, nil, err
	}
	return inputs, []Fact{out}, nil
}

// Eval never runs for placeholders: the executor injects the supplied
// value before the node could be scheduled.
func (p *Placeholder) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return nil, fmt.Errorf("placeholder value was not supplied")
}
