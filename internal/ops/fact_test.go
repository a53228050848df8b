package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liautaud/tfdeploy/internal/tensor"
)

func mustFloats(t *testing.T, shape tensor.Shape, vals []float32) *tensor.Tensor {
	t.Helper()
	out, err := tensor.FromFloat32(shape, vals)
	require.NoError(t, err)
	return out
}

func TestFactMergeRefines(t *testing.T) {
	a := TypedFact(tensor.Float32)
	b := Fact{Shape: ClosedShape(KnownDim(2), AnyDim())}

	merged, changed, err := a.Merge(b)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, tensor.Float32, merged.Type.Type)
	assert.Equal(t, "[2,?]", merged.Shape.String())

	// Merging again adds nothing.
	again, changed, err := merged.Merge(b)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, merged.Equal(again))
}

func TestFactMergeCommutes(t *testing.T) {
	a := Fact{Shape: ClosedShape(KnownDim(2), AnyDim())}
	b := Fact{Shape: ClosedShape(AnyDim(), KnownDim(3))}

	ab, _, err := a.Merge(b)
	require.NoError(t, err)
	ba, _, err := b.Merge(a)
	require.NoError(t, err)
	assert.True(t, ab.Equal(ba))
	assert.Equal(t, "[2,3]", ab.Shape.String())
}

func TestFactMergeTypeConflict(t *testing.T) {
	a := TypedFact(tensor.Float32)
	b := TypedFact(tensor.Int32)

	_, _, err := a.Merge(b)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFactMergeShapeConflict(t *testing.T) {
	a := Fact{Shape: ClosedShape(KnownDim(2))}
	b := Fact{Shape: ClosedShape(KnownDim(3))}

	_, _, err := a.Merge(b)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// Closed shapes of different ranks conflict too.
	c := Fact{Shape: ClosedShape(KnownDim(2), KnownDim(1))}
	_, _, err = a.Merge(c)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestShapeFactOpenPrefix(t *testing.T) {
	// An open shape constrains only a prefix of the dimensions.
	open := ShapeFact{Open: true, Dims: []DimFact{KnownDim(1)}}
	closed := ClosedShape(KnownDim(1), KnownDim(4))

	merged, err := open.Merge(closed)
	require.NoError(t, err)
	assert.False(t, merged.Open)
	assert.Equal(t, "[1,4]", merged.String())

	// An open prefix longer than the closed shape is a conflict.
	long := ShapeFact{Open: true, Dims: []DimFact{AnyDim(), AnyDim(), AnyDim()}}
	_, err = long.Merge(closed)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestConstFactImpliesTypeAndShape(t *testing.T) {
	v := mustFloats(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	f := ConstFact(v)

	assert.True(t, f.Type.Known)
	assert.Equal(t, tensor.Float32, f.Type.Type)
	shape, ok := f.Shape.Concrete()
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{2, 2}, shape)
	assert.True(t, f.IsConcrete())

	// Merging a concrete fact with a contradicting shape fails.
	_, _, err := f.Merge(Fact{Shape: ClosedShape(KnownDim(3), AnyDim())})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// Merging two different constants of the same type and shape fails.
	other := ConstFact(mustFloats(t, tensor.Shape{2, 2}, []float32{4, 3, 2, 1}))
	_, _, err = f.Merge(other)
	assert.Error(t, err)
}

func TestShapeFactNumElements(t *testing.T) {
	n, ok := ClosedShape(KnownDim(2), KnownDim(3)).NumElements()
	assert.True(t, ok)
	assert.Equal(t, 6, n)

	_, ok = ClosedShape(KnownDim(2), AnyDim()).NumElements()
	assert.False(t, ok)

	_, ok = ShapeFact{Open: true}.NumElements()
	assert.False(t, ok)
}
