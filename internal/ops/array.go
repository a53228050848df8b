package ops

import (
	"fmt"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func (r *Registry) registerArrayOps() {
	r.Register("Identity", buildIdentity)
	r.Register("Reshape", buildReshape)
	r.Register("Shape", buildShape)
	r.Register("Squeeze", buildSqueeze)
	r.Register("ExpandDims", buildExpandDims)
	r.Register("ConcatV2", buildConcatV2)
	r.Register("Pack", buildPack)
	r.Register("StridedSlice", buildStridedSlice)
}

// Identity passes its input through unchanged.
type Identity struct {
	foldable
}

func buildIdentity(node *tfpb.NodeDef) (Op, error) {
	return &Identity{}, nil
}

func (i *Identity) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	merged, _, err := inputs[0].Merge(outputs[0])
	if err != nil {
		return nil, nil, err
	}
	return []Fact{merged}, []Fact{merged}, nil
}

func (i *Identity) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Identity", inputs, 1); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{inputs[0]}, nil
}

// Reshape views its first input under the shape given by its second.
// A single -1 in the target shape is deduced from the element count.
type Reshape struct {
	foldable
}

func buildReshape(node *tfpb.NodeDef) (Op, error) {
	return &Reshape{}, nil
}

func (r *Reshape) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	out := Fact{Type: t, Shape: ShapeFact{Open: true}}
	if inputs[1].Value != nil {
		target, err := inputs[1].Value.Ints()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		if count, ok := inputs[0].Shape.NumElements(); ok {
			shape, err := resolveReshape(count, target)
			if err != nil {
				return nil, nil, err
			}
			out.Shape = ShapeOf(shape)
		} else {
			// Element count unknown: known target dims still pin down
			// everything except a wildcard.
			dims := make([]DimFact, len(target))
			for i, d := range target {
				if d < 0 {
					dims[i] = AnyDim()
				} else {
					dims[i] = KnownDim(d)
				}
			}
			out.Shape = ShapeFact{Dims: dims}
		}
	}

	newIn := []Fact{inputs[0], inputs[1]}
	newIn[0].Type = t

	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func (r *Reshape) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Reshape", inputs, 2); err != nil {
		return nil, err
	}
	target, err := inputs[1].Ints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	shape, err := resolveReshape(inputs[0].NumElements(), target)
	if err != nil {
		return nil, err
	}
	out, err := inputs[0].WithShape(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return []*tensor.Tensor{out}, nil
}

// resolveReshape turns a target spec with at most one -1 wildcard into a
// concrete shape holding exactly count elements.
func resolveReshape(count int, target []int) (tensor.Shape, error) {
	wildcard := -1
	known := 1
	for i, d := range target {
		switch {
		case d == -1:
			if wildcard >= 0 {
				return nil, fmt.Errorf("%w: more than one -1 in target shape %v", ErrShapeMismatch, target)
			}
			wildcard = i
		case d < 0:
			return nil, fmt.Errorf("%w: invalid dimension %d in target shape %v", ErrShapeMismatch, d, target)
		default:
			known *= d
		}
	}

	shape := make(tensor.Shape, len(target))
	copy(shape, target)
	if wildcard >= 0 {
		if known == 0 || count%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %d elements into %v", ErrShapeMismatch, count, target)
		}
		shape[wildcard] = count / known
	} else if known != count {
		return nil, fmt.Errorf("%w: cannot reshape %d elements into %v (%d elements)",
			ErrShapeMismatch, count, target, known)
	}
	return shape, nil
}

// Shape returns its input's shape as a rank-1 int32 tensor.
type Shape struct {
	foldable
}

func buildShape(node *tfpb.NodeDef) (Op, error) {
	return &Shape{}, nil
}

func (s *Shape) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	out := Fact{
		Type:  TypeFact{Known: true, Type: tensor.Int32},
		Shape: ShapeFact{Open: true},
	}
	if rank, ok := inputs[0].Shape.Rank(); ok {
		out.Shape = ClosedShape(KnownDim(rank))
	}
	// A fully-known input shape determines the output value outright,
	// without the input value being constant.
	if shape, ok := inputs[0].Shape.Concrete(); ok {
		value, err := shapeTensor(shape)
		if err != nil {
			return nil, nil, err
		}
		out = ConstFact(value)
	}

	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return inputs, []Fact{merged}, nil
}

func (s *Shape) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Shape", inputs, 1); err != nil {
		return nil, err
	}
	out, err := shapeTensor(inputs[0].Shape())
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

func shapeTensor(shape tensor.Shape) (*tensor.Tensor, error) {
	dims := make([]int32, len(shape))
	for i, d := range shape {
		dims[i] = int32(d)
	}
	return tensor.FromInt32(tensor.Shape{len(shape)}, dims)
}

// Squeeze removes size-1 dimensions, all of them or just the listed axes.
type Squeeze struct {
	foldable
	Axes []int
}

func buildSqueeze(node *tfpb.NodeDef) (Op, error) {
	axes, err := AttrInts(node, "squeeze_dims")
	if err != nil {
		return nil, err
	}
	if axes == nil {
		if axes, err = AttrInts(node, "axis"); err != nil {
			return nil, err
		}
	}
	out := make([]int, len(axes))
	for i, a := range axes {
		out[i] = int(a)
	}
	return &Squeeze{Axes: out}, nil
}

func (s *Squeeze) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	out := Fact{Type: t, Shape: ShapeFact{Open: true}}
	if shape, ok := inputs[0].Shape.Concrete(); ok {
		squeezed, err := s.squeeze(shape)
		if err != nil {
			return nil, nil, err
		}
		out.Shape = ShapeOf(squeezed)
	}

	newIn := []Fact{inputs[0]}
	newIn[0].Type = t
	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func (s *Squeeze) squeeze(shape tensor.Shape) (tensor.Shape, error) {
	listed := make(map[int]bool, len(s.Axes))
	for _, a := range s.Axes {
		if a < 0 {
			a += len(shape)
		}
		if a < 0 || a >= len(shape) {
			return nil, fmt.Errorf("%w: squeeze axis %d out of range for %v", ErrShapeMismatch, a, shape)
		}
		if shape[a] != 1 {
			return nil, fmt.Errorf("%w: cannot squeeze dimension %d of size %d", ErrShapeMismatch, a, shape[a])
		}
		listed[a] = true
	}

	out := tensor.Shape{}
	for i, d := range shape {
		if len(s.Axes) == 0 && d == 1 {
			continue
		}
		if listed[i] {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Squeeze) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Squeeze", inputs, 1); err != nil {
		return nil, err
	}
	shape, err := s.squeeze(inputs[0].Shape())
	if err != nil {
		return nil, err
	}
	out, err := inputs[0].WithShape(shape)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// ExpandDims inserts a size-1 dimension at the axis given by its second
// input.
type ExpandDims struct {
	foldable
}

func buildExpandDims(node *tfpb.NodeDef) (Op, error) {
	return &ExpandDims{}, nil
}

func (e *ExpandDims) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	out := Fact{Type: t, Shape: ShapeFact{Open: true}}
	if inputs[1].Value != nil && !inputs[0].Shape.Open {
		axes, err := inputs[1].Value.Ints()
		if err != nil || len(axes) != 1 {
			return nil, nil, fmt.Errorf("%w: ExpandDims axis must be a single integer", ErrTypeMismatch)
		}
		dims, err := insertDim(inputs[0].Shape.Dims, axes[0])
		if err != nil {
			return nil, nil, err
		}
		out.Shape = ShapeFact{Dims: dims}
	}

	newIn := []Fact{inputs[0], inputs[1]}
	newIn[0].Type = t
	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func insertDim(dims []DimFact, axis int) ([]DimFact, error) {
	rank := len(dims)
	if axis < 0 {
		axis += rank + 1
	}
	if axis < 0 || axis > rank {
		return nil, fmt.Errorf("%w: ExpandDims axis %d out of range for rank %d", ErrShapeMismatch, axis, rank)
	}
	out := make([]DimFact, 0, rank+1)
	out = append(out, dims[:axis]...)
	out = append(out, KnownDim(1))
	out = append(out, dims[axis:]...)
	return out, nil
}

func (e *ExpandDims) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("ExpandDims", inputs, 2); err != nil {
		return nil, err
	}
	axes, err := inputs[1].Ints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if len(axes) != 1 {
		return nil, fmt.Errorf("%w: ExpandDims axis must be a single integer, got %d values",
			ErrShapeMismatch, len(axes))
	}
	dims, err := insertDim(ShapeOf(inputs[0].Shape()).Dims, axes[0])
	if err != nil {
		return nil, err
	}
	shape, _ := ShapeFact{Dims: dims}.Concrete()
	out, err := inputs[0].WithShape(shape)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// ConcatV2 concatenates N tensors along the axis given by its last input.
type ConcatV2 struct {
	foldable
	N int
}

func buildConcatV2(node *tfpb.NodeDef) (Op, error) {
	n, err := AttrIntRequired(node, "N")
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, attrErr(node, "N", "must be at least 1, got %d", n)
	}
	return &ConcatV2{N: int(n)}, nil
}

func (c *ConcatV2) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	types := make([]TypeFact, 0, c.N+1)
	for i := 0; i < c.N && i < len(inputs); i++ {
		types = append(types, inputs[i].Type)
	}
	types = append(types, outputs[0].Type)
	t, err := mergeTypes(types...)
	if err != nil {
		return nil, nil, err
	}

	out := Fact{Type: t, Shape: ShapeFact{Open: true}}
	axisFact := inputs[len(inputs)-1]
	if axisFact.Value != nil {
		axes, err := axisFact.Value.Ints()
		if err != nil || len(axes) != 1 {
			return nil, nil, fmt.Errorf("%w: ConcatV2 axis must be a single integer", ErrTypeMismatch)
		}
		shape, err := concatShapeFacts(inputs[:c.N], axes[0])
		if err != nil {
			return nil, nil, err
		}
		out.Shape = shape
	}

	newIn := make([]Fact, len(inputs))
	copy(newIn, inputs)
	for i := 0; i < c.N; i++ {
		newIn[i].Type = t
	}
	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func concatShapeFacts(inputs []Fact, axis int) (ShapeFact, error) {
	var rank int
	found := false
	for _, in := range inputs {
		if r, ok := in.Shape.Rank(); ok {
			if found && r != rank {
				return ShapeFact{}, fmt.Errorf("%w: concat operands have ranks %d and %d", ErrShapeMismatch, rank, r)
			}
			rank, found = r, true
		}
	}
	if !found {
		return ShapeFact{Open: true}, nil
	}
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return ShapeFact{}, fmt.Errorf("%w: concat axis %d out of range for rank %d", ErrShapeMismatch, axis, rank)
	}

	dims := make([]DimFact, rank)
	for i := range dims {
		dims[i] = AnyDim()
	}
	sum, sumKnown := 0, true
	for _, in := range inputs {
		if in.Shape.Open {
			sumKnown = false
			continue
		}
		for i, d := range in.Shape.Dims {
			if i == axis {
				if d.Known {
					sum += d.Size
				} else {
					sumKnown = false
				}
				continue
			}
			merged, err := mergeDim(dims[i], d)
			if err != nil {
				return ShapeFact{}, fmt.Errorf("concat operand %w", err)
			}
			dims[i] = merged
		}
	}
	if sumKnown {
		dims[axis] = KnownDim(sum)
	} else {
		dims[axis] = AnyDim()
	}
	return ShapeFact{Dims: dims}, nil
}

func (c *ConcatV2) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("ConcatV2", inputs, c.N+1); err != nil {
		return nil, err
	}
	axes, err := inputs[c.N].Ints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if len(axes) != 1 {
		return nil, fmt.Errorf("%w: ConcatV2 axis must be a single integer", ErrShapeMismatch)
	}

	parts := inputs[:c.N]
	first := parts[0]
	if first.DType() == tensor.String {
		return nil, fmt.Errorf("%w: ConcatV2 does not support string tensors", ErrTypeMismatch)
	}
	rank := len(first.Shape())
	axis := axes[0]
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, fmt.Errorf("%w: concat axis %d out of range for rank %d", ErrShapeMismatch, axes[0], rank)
	}

	outShape := first.Shape().Clone()
	outShape[axis] = 0
	for _, p := range parts {
		if p.DType() != first.DType() {
			return nil, fmt.Errorf("%w: concat operands have types %s and %s",
				ErrTypeMismatch, first.DType(), p.DType())
		}
		if len(p.Shape()) != rank {
			return nil, fmt.Errorf("%w: concat operands have ranks %d and %d",
				ErrShapeMismatch, rank, len(p.Shape()))
		}
		for i, d := range p.Shape() {
			if i != axis && d != outShape[i] {
				return nil, fmt.Errorf("%w: concat operand shapes %v and %v differ outside axis %d",
					ErrShapeMismatch, first.Shape(), p.Shape(), axis)
			}
		}
		outShape[axis] += p.Shape()[axis]
	}

	out, err := tensor.New(outShape, first.DType())
	if err != nil {
		return nil, err
	}

	// Copy row blocks: for every outer index, each operand contributes a
	// contiguous run of axis*inner elements.
	size := first.DType().Size()
	outer := outShape[:axis].NumElements()
	inner := outShape[axis+1:].NumElements() * size
	dst := out.Data()
	pos := 0
	for o := 0; o < outer; o++ {
		for _, p := range parts {
			rowBytes := p.Shape()[axis] * inner
			copy(dst[pos:pos+rowBytes], p.Data()[o*rowBytes:(o+1)*rowBytes])
			pos += rowBytes
		}
	}
	return []*tensor.Tensor{out}, nil
}

// Pack stacks N same-shaped tensors along a new axis.
type Pack struct {
	foldable
	N    int
	Axis int
}

func buildPack(node *tfpb.NodeDef) (Op, error) {
	n, err := AttrIntRequired(node, "N")
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, attrErr(node, "N", "must be at least 1, got %d", n)
	}
	axis, err := AttrInt(node, "axis", 0)
	if err != nil {
		return nil, err
	}
	return &Pack{N: int(n), Axis: int(axis)}, nil
}

func (p *Pack) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	types := make([]TypeFact, 0, p.N+1)
	for i := 0; i < p.N && i < len(inputs); i++ {
		types = append(types, inputs[i].Type)
	}
	types = append(types, outputs[0].Type)
	t, err := mergeTypes(types...)
	if err != nil {
		return nil, nil, err
	}

	elem := ShapeFact{Open: true}
	for i := 0; i < p.N && i < len(inputs); i++ {
		elem, err = elem.Merge(inputs[i].Shape)
		if err != nil {
			return nil, nil, fmt.Errorf("pack operand %w", err)
		}
	}

	out := Fact{Type: t, Shape: ShapeFact{Open: true}}
	if !elem.Open {
		dims, err := insertDim(elem.Dims, p.Axis)
		if err != nil {
			return nil, nil, err
		}
		dims[normalizeAxis(p.Axis, len(elem.Dims))] = KnownDim(p.N)
		out.Shape = ShapeFact{Dims: dims}
	}

	newIn := make([]Fact, len(inputs))
	copy(newIn, inputs)
	for i := 0; i < p.N; i++ {
		newIn[i].Type = t
		newIn[i].Shape = elem
	}
	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func normalizeAxis(axis, rank int) int {
	if axis < 0 {
		return axis + rank + 1
	}
	return axis
}

func (p *Pack) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Pack", inputs, p.N); err != nil {
		return nil, err
	}
	first := inputs[0]
	if first.DType() == tensor.String {
		return nil, fmt.Errorf("%w: Pack does not support string tensors", ErrTypeMismatch)
	}
	for _, in := range inputs[1:] {
		if in.DType() != first.DType() {
			return nil, fmt.Errorf("%w: pack operands have types %s and %s",
				ErrTypeMismatch, first.DType(), in.DType())
		}
		if !in.Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("%w: pack operands have shapes %v and %v",
				ErrShapeMismatch, first.Shape(), in.Shape())
		}
	}

	rank := len(first.Shape())
	axis := normalizeAxis(p.Axis, rank)
	if axis < 0 || axis > rank {
		return nil, fmt.Errorf("%w: pack axis %d out of range for rank %d", ErrShapeMismatch, p.Axis, rank)
	}

	outShape := make(tensor.Shape, 0, rank+1)
	outShape = append(outShape, first.Shape()[:axis]...)
	outShape = append(outShape, p.N)
	outShape = append(outShape, first.Shape()[axis:]...)

	out, err := tensor.New(outShape, first.DType())
	if err != nil {
		return nil, err
	}

	size := first.DType().Size()
	outer := first.Shape()[:axis].NumElements()
	inner := first.Shape()[axis:].NumElements() * size
	dst := out.Data()
	pos := 0
	for o := 0; o < outer; o++ {
		for _, in := range inputs {
			copy(dst[pos:pos+inner], in.Data()[o*inner:(o+1)*inner])
			pos += inner
		}
	}
	return []*tensor.Tensor{out}, nil
}

// StridedSlice extracts a strided slice of its input. The common masks
// (begin_mask, end_mask, shrink_axis_mask) are supported; ellipsis and
// new-axis masks are not.
type StridedSlice struct {
	foldable
	BeginMask  int
	EndMask    int
	ShrinkMask int
}

func buildStridedSlice(node *tfpb.NodeDef) (Op, error) {
	for _, name := range []string{"ellipsis_mask", "new_axis_mask"} {
		v, err := AttrInt(node, name, 0)
		if err != nil {
			return nil, err
		}
		if v != 0 {
			return nil, attrErr(node, name, "is not supported")
		}
	}
	begin, err := AttrInt(node, "begin_mask", 0)
	if err != nil {
		return nil, err
	}
	end, err := AttrInt(node, "end_mask", 0)
	if err != nil {
		return nil, err
	}
	shrink, err := AttrInt(node, "shrink_axis_mask", 0)
	if err != nil {
		return nil, err
	}
	return &StridedSlice{BeginMask: int(begin), EndMask: int(end), ShrinkMask: int(shrink)}, nil
}

func (s *StridedSlice) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}
	newIn := make([]Fact, len(inputs))
	copy(newIn, inputs)
	newIn[0].Type = t

	out := outputs[0]
	out.Type = t
	return newIn, []Fact{out}, nil
}

type sliceRange struct {
	begin, end, stride int
	shrink             bool
}

func (s *StridedSlice) ranges(shape tensor.Shape, begin, end, strides []int) ([]sliceRange, error) {
	if len(begin) != len(end) || len(begin) != len(strides) {
		return nil, fmt.Errorf("%w: begin/end/strides lengths differ: %d/%d/%d",
			ErrShapeMismatch, len(begin), len(end), len(strides))
	}
	if len(begin) > len(shape) {
		return nil, fmt.Errorf("%w: slice spec has %d dimensions, input has %d",
			ErrShapeMismatch, len(begin), len(shape))
	}

	out := make([]sliceRange, len(shape))
	for i, dim := range shape {
		if i >= len(begin) {
			out[i] = sliceRange{begin: 0, end: dim, stride: 1}
			continue
		}
		stride := strides[i]
		if stride == 0 {
			return nil, fmt.Errorf("%w: slice stride is zero at dimension %d", ErrShapeMismatch, i)
		}

		b, e := begin[i], end[i]
		if b < 0 {
			b += dim
		}
		if e < 0 {
			e += dim
		}
		if s.BeginMask&(1<<i) != 0 {
			if stride > 0 {
				b = 0
			} else {
				b = dim - 1
			}
		}
		if s.EndMask&(1<<i) != 0 {
			if stride > 0 {
				e = dim
			} else {
				e = -1
			}
		}
		if s.ShrinkMask&(1<<i) != 0 {
			if b < 0 || b >= dim {
				return nil, fmt.Errorf("%w: slice index %d out of range for dimension %d of size %d",
					ErrShapeMismatch, begin[i], i, dim)
			}
			out[i] = sliceRange{begin: b, end: b + 1, stride: 1, shrink: true}
			continue
		}

		b = clamp(b, 0, dim)
		if stride > 0 {
			e = clamp(e, 0, dim)
		} else {
			e = clamp(e, -1, dim-1)
		}
		out[i] = sliceRange{begin: b, end: e, stride: stride}
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (r sliceRange) size() int {
	if r.stride > 0 {
		if r.end <= r.begin {
			return 0
		}
		return (r.end - r.begin + r.stride - 1) / r.stride
	}
	if r.begin <= r.end {
		return 0
	}
	return (r.begin - r.end - r.stride - 1) / -r.stride
}

func (s *StridedSlice) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("StridedSlice", inputs, 4); err != nil {
		return nil, err
	}
	data := inputs[0]
	if data.DType() == tensor.String {
		return nil, fmt.Errorf("%w: StridedSlice does not support string tensors", ErrTypeMismatch)
	}
	begin, err := inputs[1].Ints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	end, err := inputs[2].Ints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	strides, err := inputs[3].Ints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}

	ranges, err := s.ranges(data.Shape(), begin, end, strides)
	if err != nil {
		return nil, err
	}

	outShape := tensor.Shape{}
	for _, r := range ranges {
		if !r.shrink {
			outShape = append(outShape, r.size())
		}
	}
	out, err := tensor.New(outShape, data.DType())
	if err != nil {
		return nil, err
	}

	// Element-wise gather over the sliced coordinate space.
	size := data.DType().Size()
	srcStrides := data.Shape().ComputeStrides()
	coords := make([]int, len(ranges))
	for i, r := range ranges {
		coords[i] = r.begin
	}
	dst := out.Data()
	src := data.Data()
	n := outShape.NumElements()
	for i := 0; i < n; i++ {
		flat := 0
		for d, c := range coords {
			flat += c * srcStrides[d]
		}
		copy(dst[i*size:(i+1)*size], src[flat*size:(flat+1)*size])

		for d := len(ranges) - 1; d >= 0; d-- {
			if ranges[d].shrink {
				continue
			}
			coords[d] += ranges[d].stride
			done := (ranges[d].stride > 0 && coords[d] < ranges[d].end) ||
				(ranges[d].stride < 0 && coords[d] > ranges[d].end)
			if done {
				break
			}
			coords[d] = ranges[d].begin
		}
	}
	return []*tensor.Tensor{out}, nil
}
