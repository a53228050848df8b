package ops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func mustInts(t *testing.T, shape tensor.Shape, vals []int32) *tensor.Tensor {
	t.Helper()
	out, err := tensor.FromInt32(shape, vals)
	require.NoError(t, err)
	return out
}

func evalOne(t *testing.T, op Op, inputs ...*tensor.Tensor) *tensor.Tensor {
	t.Helper()
	outs, err := op.Eval(inputs)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	return outs[0]
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	for _, op := range []string{"Const", "Placeholder", "Add", "MatMul", "Reshape", "Conv2D", "Softmax", "Cast"} {
		_, ok := r.Lookup(op)
		assert.True(t, ok, "missing %s", op)
	}
	_, ok := r.Lookup("FusedBatchNormV3")
	assert.False(t, ok)

	assert.Contains(t, r.Ops(), "StridedSlice")
}

func TestArithBroadcastEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	y := mustFloats(t, tensor.Shape{3}, []float32{10, 20, 30})

	out := evalOne(t, &Arith{Kind: arithAdd}, x, y)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestArithShapeConflict(t *testing.T) {
	x := mustFloats(t, tensor.Shape{2}, []float32{1, 2})
	y := mustFloats(t, tensor.Shape{3}, []float32{1, 2, 3})

	_, err := (&Arith{Kind: arithMul}).Eval([]*tensor.Tensor{x, y})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestArithIntDivisionByZero(t *testing.T) {
	x := mustInts(t, tensor.Shape{2}, []int32{4, 6})
	y := mustInts(t, tensor.Shape{2}, []int32{2, 0})

	_, err := (&Arith{Kind: arithDiv}).Eval([]*tensor.Tensor{x, y})
	assert.Error(t, err)
}

func TestArithInferFlowsBothWays(t *testing.T) {
	in := []Fact{TypedFact(tensor.Float32), AnyFact()}
	out := []Fact{{Shape: ClosedShape(KnownDim(2), KnownDim(3))}}

	newIn, newOut, err := (&Arith{Kind: arithAdd}).Infer(in, out)
	require.NoError(t, err)
	// The second input picks up the type from the first.
	assert.Equal(t, tensor.Float32, newIn[1].Type.Type)
	assert.True(t, newIn[1].Type.Known)
	// The output picks up the type too, and keeps its shape.
	assert.Equal(t, tensor.Float32, newOut[0].Type.Type)
	assert.Equal(t, "[2,3]", newOut[0].Shape.String())
}

func TestMatMulEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	y := mustFloats(t, tensor.Shape{3, 2}, []float32{7, 8, 9, 10, 11, 12})

	out := evalOne(t, &MatMul{}, x, y)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMulTransposed(t *testing.T) {
	// Same product as above with both operands stored transposed.
	x := mustFloats(t, tensor.Shape{3, 2}, []float32{1, 4, 2, 5, 3, 6})
	y := mustFloats(t, tensor.Shape{2, 3}, []float32{7, 9, 11, 8, 10, 12})

	out := evalOne(t, &MatMul{TransposeA: true, TransposeB: true}, x, y)
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMulInnerDimMismatch(t *testing.T) {
	x := mustFloats(t, tensor.Shape{2, 3}, make([]float32, 6))
	y := mustFloats(t, tensor.Shape{2, 2}, make([]float32, 4))

	_, err := (&MatMul{}).Eval([]*tensor.Tensor{x, y})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMatMulInferBackward(t *testing.T) {
	// A known output shape pins down the operands' outer dimensions.
	in := []Fact{TypedFact(tensor.Float32), AnyFact()}
	out := []Fact{{Shape: ClosedShape(KnownDim(4), KnownDim(5))}}

	newIn, newOut, err := (&MatMul{}).Infer(in, out)
	require.NoError(t, err)
	assert.Equal(t, "[4,?]", newIn[0].Shape.String())
	assert.Equal(t, "[?,5]", newIn[1].Shape.String())
	assert.Equal(t, "[4,5]", newOut[0].Shape.String())
}

func TestBiasAddEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	bias := mustFloats(t, tensor.Shape{2}, []float32{10, 20})

	out := evalOne(t, &BiasAdd{}, x, bias)
	assert.Equal(t, []float32{11, 22, 13, 24}, out.AsFloat32())

	bad := mustFloats(t, tensor.Shape{3}, []float32{1, 2, 3})
	_, err := (&BiasAdd{}).Eval([]*tensor.Tensor{x, bad})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshapeDeducesWildcard(t *testing.T) {
	data := mustFloats(t, tensor.Shape{8}, []float32{0, 1, 2, 3, 4, 5, 6, 7})
	target := mustInts(t, tensor.Shape{2}, []int32{-1, 2})

	out := evalOne(t, &Reshape{}, data, target)
	assert.Equal(t, tensor.Shape{4, 2}, out.Shape())
	// Reshape shares the buffer, it never copies.
	data.AsFloat32()[0] = 42
	assert.Equal(t, float32(42), out.AsFloat32()[0])
}

func TestReshapeIndivisible(t *testing.T) {
	data := mustFloats(t, tensor.Shape{7}, make([]float32, 7))
	target := mustInts(t, tensor.Shape{2}, []int32{-1, 2})

	_, err := (&Reshape{}).Eval([]*tensor.Tensor{data, target})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReshapeInferFromConstTarget(t *testing.T) {
	in := []Fact{
		{Type: TypeFact{Known: true, Type: tensor.Float32}, Shape: ClosedShape(KnownDim(2), KnownDim(4))},
		ConstFact(mustInts(t, tensor.Shape{2}, []int32{-1, 2})),
	}
	out := []Fact{AnyFact()}

	_, newOut, err := (&Reshape{}).Infer(in, out)
	require.NoError(t, err)
	assert.Equal(t, "[4,2]", newOut[0].Shape.String())

	// Incompatible element counts surface during inference already.
	in[0].Shape = ClosedShape(KnownDim(7))
	_, _, err = (&Reshape{}).Infer(in, out)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestShapeOpEmitsValueFact(t *testing.T) {
	in := []Fact{{Shape: ClosedShape(KnownDim(3), KnownDim(5))}}
	out := []Fact{AnyFact()}

	_, newOut, err := (&Shape{}).Infer(in, out)
	require.NoError(t, err)
	require.NotNil(t, newOut[0].Value)
	assert.Equal(t, []int32{3, 5}, newOut[0].Value.AsInt32())

	// Unknown dimensions keep the value open, but the rank is known.
	in[0].Shape = ClosedShape(KnownDim(3), AnyDim())
	_, newOut, err = (&Shape{}).Infer(in, out)
	require.NoError(t, err)
	assert.Nil(t, newOut[0].Value)
	assert.Equal(t, "[2]", newOut[0].Shape.String())
}

func TestSqueezeEval(t *testing.T) {
	data := mustFloats(t, tensor.Shape{1, 3, 1}, []float32{1, 2, 3})

	out := evalOne(t, &Squeeze{}, data)
	assert.Equal(t, tensor.Shape{3}, out.Shape())

	out = evalOne(t, &Squeeze{Axes: []int{0}}, data)
	assert.Equal(t, tensor.Shape{3, 1}, out.Shape())

	_, err := (&Squeeze{Axes: []int{1}}).Eval([]*tensor.Tensor{data})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestExpandDimsEval(t *testing.T) {
	data := mustFloats(t, tensor.Shape{2, 3}, make([]float32, 6))

	out := evalOne(t, &ExpandDims{}, data, mustInts(t, tensor.Shape{}, []int32{0}))
	assert.Equal(t, tensor.Shape{1, 2, 3}, out.Shape())

	out = evalOne(t, &ExpandDims{}, data, mustInts(t, tensor.Shape{}, []int32{-1}))
	assert.Equal(t, tensor.Shape{2, 3, 1}, out.Shape())

	_, err := (&ExpandDims{}).Eval([]*tensor.Tensor{data, mustInts(t, tensor.Shape{}, []int32{5})})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestConcatEval(t *testing.T) {
	a := mustFloats(t, tensor.Shape{2, 1}, []float32{1, 2})
	b := mustFloats(t, tensor.Shape{2, 2}, []float32{3, 4, 5, 6})
	axis := mustInts(t, tensor.Shape{}, []int32{1})

	out := evalOne(t, &ConcatV2{N: 2}, a, b, axis)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{1, 3, 4, 2, 5, 6}, out.AsFloat32())

	// Non-axis dimensions must agree.
	c := mustFloats(t, tensor.Shape{3, 1}, []float32{7, 8, 9})
	_, err := (&ConcatV2{N: 2}).Eval([]*tensor.Tensor{a, c, axis})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestConcatInferSumsAxis(t *testing.T) {
	in := []Fact{
		{Shape: ClosedShape(KnownDim(2), KnownDim(1))},
		{Shape: ClosedShape(KnownDim(2), KnownDim(2))},
		ConstFact(mustInts(t, tensor.Shape{}, []int32{1})),
	}
	out := []Fact{AnyFact()}

	_, newOut, err := (&ConcatV2{N: 2}).Infer(in, out)
	require.NoError(t, err)
	assert.Equal(t, "[2,3]", newOut[0].Shape.String())
}

func TestPackEval(t *testing.T) {
	a := mustFloats(t, tensor.Shape{2}, []float32{1, 2})
	b := mustFloats(t, tensor.Shape{2}, []float32{3, 4})

	out := evalOne(t, &Pack{N: 2, Axis: 0}, a, b)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4}, out.AsFloat32())

	out = evalOne(t, &Pack{N: 2, Axis: 1}, a, b)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{1, 3, 2, 4}, out.AsFloat32())
}

func TestStridedSliceEval(t *testing.T) {
	data := mustFloats(t, tensor.Shape{3, 4}, []float32{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
	})
	ints := func(vals ...int32) *tensor.Tensor {
		return mustInts(t, tensor.Shape{len(vals)}, vals)
	}

	// data[1:3, 0:4:2]
	out := evalOne(t, &StridedSlice{}, data, ints(1, 0), ints(3, 4), ints(1, 2))
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{4, 6, 8, 10}, out.AsFloat32())

	// data[0, :] with the row axis shrunk away.
	s := &StridedSlice{EndMask: 2, ShrinkMask: 1}
	out = evalOne(t, s, data, ints(0, 0), ints(1, 0), ints(1, 1))
	assert.Equal(t, tensor.Shape{4}, out.Shape())
	assert.Equal(t, []float32{0, 1, 2, 3}, out.AsFloat32())

	// Negative stride reverses.
	rev := evalOne(t, &StridedSlice{BeginMask: 3, EndMask: 3}, data, ints(0, 0), ints(0, 0), ints(1, -1))
	assert.Equal(t, []float32{3, 2, 1, 0, 7, 6, 5, 4, 11, 10, 9, 8}, rev.AsFloat32())
}

func TestReluEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{4}, []float32{-2, 0, 3, 8})

	out := evalOne(t, &Relu{Max: math.Inf(1)}, x)
	assert.Equal(t, []float32{0, 0, 3, 8}, out.AsFloat32())

	out = evalOne(t, &Relu{Max: 6}, x)
	assert.Equal(t, []float32{0, 0, 3, 6}, out.AsFloat32())
}

func TestSoftmaxEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{2, 2}, []float32{0, 0, 1000, 1000})

	out := evalOne(t, &Softmax{}, x)
	// Rows sum to one even with large inputs.
	assert.InDelta(t, 0.5, out.AsFloat32()[0], 1e-6)
	assert.InDelta(t, 0.5, out.AsFloat32()[2], 1e-6)
	assert.InDelta(t, 0.5, out.AsFloat32()[3], 1e-6)
}

func TestConv2DValid(t *testing.T) {
	// 1x3x3x1 input, 2x2x1x1 all-ones filter, stride 1, VALID.
	x := mustFloats(t, tensor.Shape{1, 3, 3, 1}, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	filter := mustFloats(t, tensor.Shape{2, 2, 1, 1}, []float32{1, 1, 1, 1})

	conv := &Conv2D{StrideH: 1, StrideW: 1, Padding: padValid}
	out := evalOne(t, conv, x, filter)
	assert.Equal(t, tensor.Shape{1, 2, 2, 1}, out.Shape())
	assert.Equal(t, []float32{12, 16, 24, 28}, out.AsFloat32())
}

func TestConv2DSamePadding(t *testing.T) {
	x := mustFloats(t, tensor.Shape{1, 2, 2, 1}, []float32{1, 2, 3, 4})
	filter := mustFloats(t, tensor.Shape{2, 2, 1, 1}, []float32{1, 1, 1, 1})

	conv := &Conv2D{StrideH: 1, StrideW: 1, Padding: padSame}
	out := evalOne(t, conv, x, filter)
	assert.Equal(t, tensor.Shape{1, 2, 2, 1}, out.Shape())
	// Out-of-bounds taps read as zero.
	assert.Equal(t, []float32{10, 6, 7, 4}, out.AsFloat32())
}

func TestConv2DInferOutputShape(t *testing.T) {
	in := []Fact{
		{Shape: ClosedShape(KnownDim(1), KnownDim(28), KnownDim(28), KnownDim(3))},
		{Shape: ClosedShape(KnownDim(5), KnownDim(5), KnownDim(3), KnownDim(16))},
	}
	out := []Fact{AnyFact()}

	conv := &Conv2D{StrideH: 2, StrideW: 2, Padding: padSame}
	_, newOut, err := conv.Infer(in, out)
	require.NoError(t, err)
	assert.Equal(t, "[1,14,14,16]", newOut[0].Shape.String())

	// Channel mismatch between input and filter is caught.
	in[0].Shape.Dims[3] = KnownDim(4)
	_, _, err = conv.Infer(in, out)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMaxPoolEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{1, 2, 2, 1}, []float32{1, 2, 3, 4})

	pool := &Pool{Kind: poolMax, KernelH: 2, KernelW: 2, StrideH: 2, StrideW: 2, Padding: padValid}
	out := evalOne(t, pool, x)
	assert.Equal(t, tensor.Shape{1, 1, 1, 1}, out.Shape())
	assert.Equal(t, []float32{4}, out.AsFloat32())
}

func TestAvgPoolEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{1, 2, 2, 1}, []float32{1, 2, 3, 4})

	pool := &Pool{Kind: poolAvg, KernelH: 2, KernelW: 2, StrideH: 2, StrideW: 2, Padding: padValid}
	out := evalOne(t, pool, x)
	assert.Equal(t, []float32{2.5}, out.AsFloat32())
}

func TestCastEval(t *testing.T) {
	x := mustFloats(t, tensor.Shape{3}, []float32{1.5, -2.5, 3})

	cast := &Cast{Src: tensor.Float32, Dst: tensor.Int32}
	out := evalOne(t, cast, x)
	assert.Equal(t, tensor.Int32, out.DType())
	assert.Equal(t, []int32{1, -2, 3}, out.AsInt32())

	_, err := cast.Eval([]*tensor.Tensor{mustInts(t, tensor.Shape{1}, []int32{1})})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCastInfer(t *testing.T) {
	cast := &Cast{Src: tensor.Int32, Dst: tensor.Float32}
	in := []Fact{{Shape: ClosedShape(KnownDim(2))}}
	out := []Fact{AnyFact()}

	newIn, newOut, err := cast.Infer(in, out)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, newIn[0].Type.Type)
	assert.Equal(t, tensor.Float32, newOut[0].Type.Type)
	assert.Equal(t, "[2]", newOut[0].Shape.String())

	// An input fact contradicting the declared source type is an error.
	in[0].Type = TypeFact{Known: true, Type: tensor.Float64}
	_, _, err = cast.Infer(in, out)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestConstOpBuild(t *testing.T) {
	r := NewRegistry()
	build, ok := r.Lookup("Const")
	require.True(t, ok)

	node := &tfpb.NodeDef{
		Name: "weights",
		Op:   "Const",
		Attr: map[string]*tfpb.AttrValue{
			"dtype": {Kind: tfpb.AttrType, Type: tfpb.DtFloat},
			"value": {Kind: tfpb.AttrTensor, Tensor: &tfpb.TensorProto{
				Dtype:    tfpb.DtFloat,
				Shape:    &tfpb.TensorShapeProto{Dims: []tfpb.TensorShapeDim{{Size: 2}}},
				FloatVal: []float32{1, 2},
			}},
		},
	}
	op, err := build(node)
	require.NoError(t, err)

	out := evalOne(t, op)
	assert.Equal(t, []float32{1, 2}, out.AsFloat32())

	// The dtype attribute must agree with the literal.
	node.Attr["dtype"].Type = tfpb.DtInt32
	_, err = build(node)
	assert.ErrorIs(t, err, ErrAttribute)
}

func TestPlaceholderBuild(t *testing.T) {
	r := NewRegistry()
	build, ok := r.Lookup("Placeholder")
	require.True(t, ok)

	node := &tfpb.NodeDef{
		Name: "x",
		Op:   "Placeholder",
		Attr: map[string]*tfpb.AttrValue{
			"dtype": {Kind: tfpb.AttrType, Type: tfpb.DtFloat},
			"shape": {Kind: tfpb.AttrShape, Shape: &tfpb.TensorShapeProto{
				Dims: []tfpb.TensorShapeDim{{Size: -1}, {Size: 4}},
			}},
		},
	}
	op, err := build(node)
	require.NoError(t, err)

	_, outs, err := op.Infer(nil, []Fact{AnyFact()})
	require.NoError(t, err)
	assert.Equal(t, "[?,4]", outs[0].Shape.String())
	assert.Equal(t, tensor.Float32, outs[0].Type.Type)

	// Placeholders cannot be evaluated directly.
	_, err = op.Eval(nil)
	assert.Error(t, err)

	// dtype is mandatory.
	delete(node.Attr, "dtype")
	_, err = build(node)
	assert.ErrorIs(t, err, ErrAttribute)
}
