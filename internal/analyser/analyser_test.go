package analyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/ops"
	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func placeholderNode(name string, dtype tfpb.DataType, dims ...int64) *tfpb.NodeDef {
	attr := map[string]*tfpb.AttrValue{
		"dtype": {Kind: tfpb.AttrType, Type: dtype},
	}
	if dims != nil {
		shape := &tfpb.TensorShapeProto{}
		for _, d := range dims {
			shape.Dims = append(shape.Dims, tfpb.TensorShapeDim{Size: d})
		}
		attr["shape"] = &tfpb.AttrValue{Kind: tfpb.AttrShape, Shape: shape}
	}
	return &tfpb.NodeDef{Name: name, Op: "Placeholder", Attr: attr}
}

func constNode(name string, dtype tfpb.DataType, dims []int64, tp tfpb.TensorProto) *tfpb.NodeDef {
	tp.Dtype = dtype
	tp.Shape = &tfpb.TensorShapeProto{}
	for _, d := range dims {
		tp.Shape.Dims = append(tp.Shape.Dims, tfpb.TensorShapeDim{Size: d})
	}
	return &tfpb.NodeDef{
		Name: name,
		Op:   "Const",
		Attr: map[string]*tfpb.AttrValue{
			"value": {Kind: tfpb.AttrTensor, Tensor: &tp},
		},
	}
}

func floatConstNode(name string, dims []int64, vals []float32) *tfpb.NodeDef {
	return constNode(name, tfpb.DtFloat, dims, tfpb.TensorProto{FloatVal: vals})
}

func opNode(name, op string, inputs ...string) *tfpb.NodeDef {
	return &tfpb.NodeDef{Name: name, Op: op, Input: inputs}
}

func mustGraph(t *testing.T, nodes ...*tfpb.NodeDef) *graph.Graph {
	t.Helper()
	g, err := graph.FromGraphDef(&tfpb.GraphDef{Nodes: nodes}, ops.NewRegistry())
	require.NoError(t, err)
	return g
}

func outRef(t *testing.T, g *graph.Graph, name string) graph.OutputRef {
	t.Helper()
	n, ok := g.NodeByName(name)
	require.True(t, ok)
	return graph.OutputRef{Node: n.ID}
}

func TestAnalyseSinglePlaceholder(t *testing.T) {
	// The placeholder's declared shape must merge cleanly into an edge
	// that inference has not touched yet.
	g := mustGraph(t, placeholderNode("x", tfpb.DtFloat, 2, 3))

	a, err := Analyse(g, Options{})
	require.NoError(t, err)

	fact := a.Fact(outRef(t, g, "x"))
	shape, ok := fact.Shape.Concrete()
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{2, 3}, shape)
	assert.Equal(t, tensor.Float32, fact.Type.Type)
}

func TestFactDefaultsToMostGeneral(t *testing.T) {
	// An edge with no stored fact is fully unknown, not a closed rank-0
	// shape: the zero ShapeFact would reject any real shape on merge.
	g := mustGraph(t, placeholderNode("x", tfpb.DtFloat, 2, 3))
	a := &Analysis{graph: g, facts: make(map[graph.OutputRef]ops.Fact)}

	fact := a.Fact(outRef(t, g, "x"))
	assert.True(t, fact.Shape.Open)
	assert.False(t, fact.Type.Known)

	merged, err := fact.Shape.Merge(ops.ClosedShape(ops.KnownDim(2), ops.KnownDim(3)))
	require.NoError(t, err)
	assert.Equal(t, "[2,3]", merged.String())
}

func TestAnalysePropagatesShapes(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2, 3),
		floatConstNode("c", []int64{3}, []float32{1, 2, 3}),
		opNode("y", "Add", "x", "c"),
	)

	a, err := Analyse(g, Options{})
	require.NoError(t, err)

	fact := a.Fact(outRef(t, g, "y"))
	assert.True(t, fact.IsConcrete())
	shape, _ := fact.Shape.Concrete()
	assert.Equal(t, tensor.Shape{2, 3}, shape)
	assert.Equal(t, tensor.Float32, fact.Type.Type)
	assert.Empty(t, a.Unresolved())
}

func TestAnalyseFlowsBackward(t *testing.T) {
	// The placeholder has no declared shape; the MatMul operand pins its
	// column count, the output fact the rest stays open.
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat),
		floatConstNode("w", []int64{3, 4}, make([]float32, 12)),
		opNode("y", "MatMul", "x", "w"),
	)

	a, err := Analyse(g, Options{})
	require.NoError(t, err)

	fact := a.Fact(outRef(t, g, "x"))
	assert.Equal(t, "[?,3]", fact.Shape.String())
}

func TestAnalyseIsIdempotent(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2, 3),
		floatConstNode("c", []int64{3}, []float32{1, 2, 3}),
		opNode("y", "Add", "x", "c"),
	)

	a, err := Analyse(g, Options{})
	require.NoError(t, err)

	// One more full round of inference refines nothing.
	for _, node := range g.Nodes() {
		changed, err := a.inferNode(node)
		require.NoError(t, err)
		assert.Zero(t, changed, "node %s", node.Name)
	}
}

func TestAnalyseConflictNamesNode(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2),
		constNode("c", tfpb.DtInt32, []int64{2}, tfpb.TensorProto{IntVal: []int32{1, 2}}),
		opNode("bad", "Add", "x", "c"),
	)

	_, err := Analyse(g, Options{})
	require.ErrorIs(t, err, ops.ErrTypeMismatch)
	assert.Contains(t, err.Error(), `"bad"`)
	assert.Contains(t, err.Error(), "Add")
}

func TestAnalyseShapeMismatch(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2, 3),
		floatConstNode("w", []int64{4, 5}, make([]float32, 20)),
		opNode("bad", "MatMul", "x", "w"),
	)

	_, err := Analyse(g, Options{})
	assert.ErrorIs(t, err, ops.ErrShapeMismatch)
}

func TestAnalysePassBudget(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2, 3),
		opNode("y", "Identity", "x"),
		opNode("z", "Identity", "y"),
	)

	// A single pass cannot settle a three-node chain, but exhausting the
	// budget is not an error.
	a, err := Analyse(g, Options{MaxPasses: 1})
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestAnalyseUnresolved(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat),
		opNode("y", "Identity", "x"),
	)

	a, err := Analyse(g, Options{})
	require.NoError(t, err)

	unresolved := a.Unresolved()
	require.Len(t, unresolved, 2)
	assert.Equal(t, outRef(t, g, "x"), unresolved[0])
	assert.Equal(t, outRef(t, g, "y"), unresolved[1])
}

func TestFoldReplacesConstantSubgraphs(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2),
		floatConstNode("a", []int64{2}, []float32{1, 2}),
		floatConstNode("b", []int64{2}, []float32{10, 20}),
		opNode("sum", "Add", "a", "b"),
		opNode("scaled", "Mul", "sum", "b"),
		opNode("out", "Add", "x", "scaled"),
	)

	a, err := Analyse(g, Options{})
	require.NoError(t, err)
	folded, err := a.Fold()
	require.NoError(t, err)

	// sum and the cascaded scaled node both became constants.
	sum, _ := folded.NodeByName("sum")
	require.Equal(t, "Const", sum.OpType)
	assert.Equal(t, []float32{11, 22}, sum.Op.(*ops.Const).Value.AsFloat32())

	scaled, _ := folded.NodeByName("scaled")
	require.Equal(t, "Const", scaled.OpType)
	assert.Equal(t, []float32{110, 440}, scaled.Op.(*ops.Const).Value.AsFloat32())

	// The placeholder-fed node survives, with its id and inputs intact.
	out, _ := folded.NodeByName("out")
	assert.Equal(t, "Add", out.OpType)
	assert.Equal(t, g.Len(), folded.Len())

	// The original graph was not modified.
	orig, _ := g.NodeByName("sum")
	assert.Equal(t, "Add", orig.OpType)
}

func TestFoldSkipsPlaceholders(t *testing.T) {
	g := mustGraph(t,
		placeholderNode("x", tfpb.DtFloat, 2),
		opNode("y", "Identity", "x"),
	)

	a, err := Analyse(g, Options{})
	require.NoError(t, err)
	folded, err := a.Fold()
	require.NoError(t, err)

	y, _ := folded.NodeByName("y")
	assert.Equal(t, "Identity", y.OpType)
	assert.Equal(t, []graph.NodeID{0}, folded.Placeholders())
}
