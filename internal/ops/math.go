package ops

import (
	"fmt"
	"math"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func (r *Registry) registerMathOps() {
	r.Register("Add", buildArith(arithAdd))
	r.Register("AddV2", buildArith(arithAdd))
	r.Register("Sub", buildArith(arithSub))
	r.Register("Mul", buildArith(arithMul))
	r.Register("Div", buildArith(arithDiv))
	r.Register("RealDiv", buildArith(arithDiv))
	r.Register("MatMul", buildMatMul)
	r.Register("BiasAdd", buildBiasAdd)
	r.Register("Neg", buildUnary(unaryNeg))
	r.Register("Sqrt", buildUnary(unarySqrt))
	r.Register("Rsqrt", buildUnary(unaryRsqrt))
	r.Register("Exp", buildUnary(unaryExp))
	r.Register("Log", buildUnary(unaryLog))
}

type arithKind int

const (
	arithAdd arithKind = iota
	arithSub
	arithMul
	arithDiv
)

func (k arithKind) String() string {
	switch k {
	case arithAdd:
		return "Add"
	case arithSub:
		return "Sub"
	case arithMul:
		return "Mul"
	default:
		return "Div"
	}
}

// Arith is a broadcasting element-wise binary operator.
type Arith struct {
	foldable
	Kind arithKind
}

func buildArith(kind arithKind) Builder {
	return func(node *tfpb.NodeDef) (Op, error) {
		return &Arith{Kind: kind}, nil
	}
}

func (a *Arith) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	// Element-wise operators share one dtype across both inputs and the
	// output, so type information flows in every direction.
	t, err := mergeTypes(inputs[0].Type, inputs[1].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	shape, err := broadcastShapeFacts(inputs[0].Shape, inputs[1].Shape)
	if err != nil {
		return nil, nil, err
	}

	newIn := []Fact{inputs[0], inputs[1]}
	newIn[0].Type = t
	newIn[1].Type = t

	out, _, err := outputs[0].Merge(Fact{Type: t, Shape: shape})
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{out}, nil
}

func (a *Arith) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(a.Kind.String(), inputs, 2); err != nil {
		return nil, err
	}
	x, y := inputs[0], inputs[1]
	if x.DType() != y.DType() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, x.DType(), y.DType())
	}
	if !x.DType().IsNumeric() {
		return nil, fmt.Errorf("%w: %s does not support %s", ErrTypeMismatch, a.Kind, x.DType())
	}

	bc, err := newBroadcaster(x.Shape(), y.Shape())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	out, err := tensor.New(bc.out, x.DType())
	if err != nil {
		return nil, err
	}

	switch x.DType() {
	case tensor.Float32:
		xs, ys, os := x.AsFloat32(), y.AsFloat32(), out.AsFloat32()
		for i := range os {
			ai, bi := bc.indices(i)
			os[i] = arithFloat32(a.Kind, xs[ai], ys[bi])
		}
	case tensor.Float64:
		xs, ys, os := x.AsFloat64(), y.AsFloat64(), out.AsFloat64()
		for i := range os {
			ai, bi := bc.indices(i)
			os[i] = arithFloat64(a.Kind, xs[ai], ys[bi])
		}
	case tensor.Int32:
		xs, ys, os := x.AsInt32(), y.AsInt32(), out.AsInt32()
		for i := range os {
			ai, bi := bc.indices(i)
			if a.Kind == arithDiv && ys[bi] == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			os[i] = arithInt(a.Kind, xs[ai], ys[bi])
		}
	case tensor.Int64:
		xs, ys, os := x.AsInt64(), y.AsInt64(), out.AsInt64()
		for i := range os {
			ai, bi := bc.indices(i)
			if a.Kind == arithDiv && ys[bi] == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			os[i] = arithInt(a.Kind, xs[ai], ys[bi])
		}
	case tensor.Uint8:
		xs, ys, os := x.AsUint8(), y.AsUint8(), out.AsUint8()
		for i := range os {
			ai, bi := bc.indices(i)
			if a.Kind == arithDiv && ys[bi] == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			os[i] = arithInt(a.Kind, xs[ai], ys[bi])
		}
	default:
		return nil, fmt.Errorf("%w: %s does not support %s", ErrTypeMismatch, a.Kind, x.DType())
	}
	return []*tensor.Tensor{out}, nil
}

func arithFloat32(kind arithKind, x, y float32) float32 {
	switch kind {
	case arithAdd:
		return x + y
	case arithSub:
		return x - y
	case arithMul:
		return x * y
	default:
		return x / y
	}
}

func arithFloat64(kind arithKind, x, y float64) float64 {
	switch kind {
	case arithAdd:
		return x + y
	case arithSub:
		return x - y
	case arithMul:
		return x * y
	default:
		return x / y
	}
}

func arithInt[T int32 | int64 | uint8](kind arithKind, x, y T) T {
	switch kind {
	case arithAdd:
		return x + y
	case arithSub:
		return x - y
	case arithMul:
		return x * y
	default:
		return x / y
	}
}

// MatMul multiplies two rank-2 tensors.
type MatMul struct {
	foldable
	TransposeA bool
	TransposeB bool
}

func buildMatMul(node *tfpb.NodeDef) (Op, error) {
	ta, err := AttrBool(node, "transpose_a", false)
	if err != nil {
		return nil, err
	}
	tb, err := AttrBool(node, "transpose_b", false)
	if err != nil {
		return nil, err
	}
	return &MatMul{TransposeA: ta, TransposeB: tb}, nil
}

func (m *MatMul) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, inputs[1].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	rank2 := ShapeFact{Dims: []DimFact{AnyDim(), AnyDim()}}
	aShape, err := inputs[0].Shape.Merge(rank2)
	if err != nil {
		return nil, nil, err
	}
	bShape, err := inputs[1].Shape.Merge(rank2)
	if err != nil {
		return nil, nil, err
	}

	aRows, aCols := aShape.Dims[0], aShape.Dims[1]
	if m.TransposeA {
		aRows, aCols = aCols, aRows
	}
	bRows, bCols := bShape.Dims[0], bShape.Dims[1]
	if m.TransposeB {
		bRows, bCols = bCols, bRows
	}

	// The shared inner dimension and the output's outer dimensions both
	// refine the operands.
	inner, err := mergeDim(aCols, bRows)
	if err != nil {
		return nil, nil, fmt.Errorf("inner %w", err)
	}
	aCols, bRows = inner, inner

	outShape, err := outputs[0].Shape.Merge(ClosedShape(aRows, bCols))
	if err != nil {
		return nil, nil, err
	}
	aRows, bCols = outShape.Dims[0], outShape.Dims[1]

	newIn := []Fact{inputs[0], inputs[1]}
	newIn[0].Type = t
	newIn[0].Shape = storedShape(m.TransposeA, aRows, aCols)
	newIn[1].Type = t
	newIn[1].Shape = storedShape(m.TransposeB, bRows, bCols)

	out, _, err := outputs[0].Merge(Fact{Type: t, Shape: ClosedShape(aRows, bCols)})
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{out}, nil
}

// storedShape maps logical (rows, cols) back to the operand's stored
// layout, undoing the transpose flag.
func storedShape(transposed bool, rows, cols DimFact) ShapeFact {
	if transposed {
		return ClosedShape(cols, rows)
	}
	return ClosedShape(rows, cols)
}

func (m *MatMul) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("MatMul", inputs, 2); err != nil {
		return nil, err
	}
	x, y := inputs[0], inputs[1]
	if len(x.Shape()) != 2 || len(y.Shape()) != 2 {
		return nil, fmt.Errorf("%w: MatMul needs rank-2 operands, got %v and %v",
			ErrShapeMismatch, x.Shape(), y.Shape())
	}
	if x.DType() != y.DType() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, x.DType(), y.DType())
	}

	am, ak := x.Shape()[0], x.Shape()[1]
	if m.TransposeA {
		am, ak = ak, am
	}
	bk, bn := y.Shape()[0], y.Shape()[1]
	if m.TransposeB {
		bk, bn = bn, bk
	}
	if ak != bk {
		return nil, fmt.Errorf("%w: inner dimensions %d vs %d", ErrShapeMismatch, ak, bk)
	}

	out, err := tensor.New(tensor.Shape{am, bn}, x.DType())
	if err != nil {
		return nil, err
	}

	switch x.DType() {
	case tensor.Float32:
		matMulKernel(x.AsFloat32(), y.AsFloat32(), out.AsFloat32(), am, ak, bn, m.TransposeA, m.TransposeB)
	case tensor.Float64:
		matMulKernel(x.AsFloat64(), y.AsFloat64(), out.AsFloat64(), am, ak, bn, m.TransposeA, m.TransposeB)
	default:
		return nil, fmt.Errorf("%w: MatMul does not support %s", ErrTypeMismatch, x.DType())
	}
	return []*tensor.Tensor{out}, nil
}

func matMulKernel[T float32 | float64](a, b, out []T, m, k, n int, transA, transB bool) {
	at := func(i, j int) T {
		if transA {
			return a[j*m+i]
		}
		return a[i*k+j]
	}
	bt := func(i, j int) T {
		if transB {
			return b[j*k+i]
		}
		return b[i*n+j]
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum T
			for p := 0; p < k; p++ {
				sum += at(i, p) * bt(p, j)
			}
			out[i*n+j] = sum
		}
	}
}

// BiasAdd adds a rank-1 bias along the last (channel) dimension.
type BiasAdd struct {
	foldable
}

func buildBiasAdd(node *tfpb.NodeDef) (Op, error) {
	format, err := AttrString(node, "data_format", "NHWC")
	if err != nil {
		return nil, err
	}
	if format != "NHWC" {
		return nil, attrErr(node, "data_format", "only supports NHWC, got %q", format)
	}
	return &BiasAdd{}, nil
}

func (b *BiasAdd) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, inputs[1].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}
	biasShape, err := inputs[1].Shape.Merge(ShapeFact{Dims: []DimFact{AnyDim()}})
	if err != nil {
		return nil, nil, err
	}

	newIn := []Fact{inputs[0], inputs[1]}
	newIn[0].Type = t
	newIn[1].Type = t
	newIn[1].Shape = biasShape

	out, _, err := outputs[0].Merge(Fact{Type: t, Shape: inputs[0].Shape})
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{out}, nil
}

func (b *BiasAdd) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("BiasAdd", inputs, 2); err != nil {
		return nil, err
	}
	data, bias := inputs[0], inputs[1]
	if len(bias.Shape()) != 1 {
		return nil, fmt.Errorf("%w: bias must be rank 1, got %v", ErrShapeMismatch, bias.Shape())
	}
	if len(data.Shape()) == 0 || data.Shape()[len(data.Shape())-1] != bias.Shape()[0] {
		return nil, fmt.Errorf("%w: bias size %d does not match last dimension of %v",
			ErrShapeMismatch, bias.Shape()[0], data.Shape())
	}
	add := &Arith{Kind: arithAdd}
	return add.Eval([]*tensor.Tensor{data, bias})
}

type unaryKind int

const (
	unaryNeg unaryKind = iota
	unarySqrt
	unaryRsqrt
	unaryExp
	unaryLog
)

func (k unaryKind) String() string {
	switch k {
	case unaryNeg:
		return "Neg"
	case unarySqrt:
		return "Sqrt"
	case unaryRsqrt:
		return "Rsqrt"
	case unaryExp:
		return "Exp"
	default:
		return "Log"
	}
}

// Unary is an element-wise unary operator.
type Unary struct {
	foldable
	Kind unaryKind
}

func buildUnary(kind unaryKind) Builder {
	return func(node *tfpb.NodeDef) (Op, error) {
		return &Unary{Kind: kind}, nil
	}
}

func (u *Unary) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	return elementwiseUnaryInfer(inputs, outputs)
}

// elementwiseUnaryInfer propagates type and shape in both directions for
// single-input operators that preserve both.
func elementwiseUnaryInfer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}
	shape, err := inputs[0].Shape.Merge(outputs[0].Shape)
	if err != nil {
		return nil, nil, err
	}

	newIn := []Fact{{Type: t, Shape: shape, Value: inputs[0].Value}}
	out, _, err := outputs[0].Merge(Fact{Type: t, Shape: shape})
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{out}, nil
}

func (u *Unary) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(u.Kind.String(), inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]

	if u.Kind == unaryNeg {
		switch x.DType() {
		case tensor.Int32:
			out := x.Clone()
			vs := out.AsInt32()
			for i := range vs {
				vs[i] = -vs[i]
			}
			return []*tensor.Tensor{out}, nil
		case tensor.Int64:
			out := x.Clone()
			vs := out.AsInt64()
			for i := range vs {
				vs[i] = -vs[i]
			}
			return []*tensor.Tensor{out}, nil
		}
	}

	switch x.DType() {
	case tensor.Float32:
		out := x.Clone()
		vs := out.AsFloat32()
		for i := range vs {
			vs[i] = float32(unaryFloat(u.Kind, float64(vs[i])))
		}
		return []*tensor.Tensor{out}, nil
	case tensor.Float64:
		out := x.Clone()
		vs := out.AsFloat64()
		for i := range vs {
			vs[i] = unaryFloat(u.Kind, vs[i])
		}
		return []*tensor.Tensor{out}, nil
	default:
		return nil, fmt.Errorf("%w: %s does not support %s", ErrTypeMismatch, u.Kind, x.DType())
	}
}

func unaryFloat(kind unaryKind, v float64) float64 {
	switch kind {
	case unaryNeg:
		return -v
	case unarySqrt:
		return math.Sqrt(v)
	case unaryRsqrt:
		return 1 / math.Sqrt(v)
	case unaryExp:
		return math.Exp(v)
	default:
		return math.Log(v)
	}
}
