package ops

import (
	"fmt"
	"strings"

	"github.com/liautaud/tfdeploy/internal/tensor"
)

// Fact holds partial knowledge about a tensor that might flow through an
// edge of the graph: its data type, its shape, and possibly its value.
//
// The analyser starts from the most general fact on every edge and refines
// it pass after pass. Facts only strengthen; merging a fact with conflicting
// known information fails rather than weakening what was already known.
type Fact struct {
	Type  TypeFact
	Shape ShapeFact
	Value *tensor.Tensor // nil when the value is unknown
}

// TypeFact is a possibly-unknown data type.
type TypeFact struct {
	Known bool
	Type  tensor.DataType
}

// DimFact is a possibly-unknown dimension size.
type DimFact struct {
	Known bool
	Size  int
}

// ShapeFact is partial knowledge about a shape.
//
// A closed shape fixes the rank: every entry of Dims is one dimension,
// known or not. An open shape only constrains a prefix; any number of
// further dimensions may follow.
type ShapeFact struct {
	Open bool
	Dims []DimFact
}

// AnyFact returns the most general fact: unknown type, unknown rank,
// unknown value.
func AnyFact() Fact {
	return Fact{Shape: ShapeFact{Open: true}}
}

// TypedFact returns a fact with a known type and nothing else.
func TypedFact(dt tensor.DataType) Fact {
	return Fact{Type: TypeFact{Known: true, Type: dt}, Shape: ShapeFact{Open: true}}
}

// ConstFact returns a fully-determined fact carrying a known value.
func ConstFact(t *tensor.Tensor) Fact {
	return Fact{
		Type:  TypeFact{Known: true, Type: t.DType()},
		Shape: ShapeOf(t.Shape()),
		Value: t,
	}
}

// KnownDim returns a known dimension.
func KnownDim(size int) DimFact {
	return DimFact{Known: true, Size: size}
}

// AnyDim returns an unknown dimension.
func AnyDim() DimFact {
	return DimFact{}
}

// ShapeOf returns the closed, fully-known shape fact for a concrete shape.
func ShapeOf(s tensor.Shape) ShapeFact {
	dims := make([]DimFact, len(s))
	for i, d := range s {
		dims[i] = KnownDim(d)
	}
	return ShapeFact{Dims: dims}
}

// ClosedShape returns a closed shape fact from explicit dimension facts.
func ClosedShape(dims ...DimFact) ShapeFact {
	return ShapeFact{Dims: dims}
}

// Rank returns the rank when it is known (closed shape).
func (s ShapeFact) Rank() (int, bool) {
	if s.Open {
		return 0, false
	}
	return len(s.Dims), true
}

// Concrete returns the fully-known shape, if every dimension is known.
func (s ShapeFact) Concrete() (tensor.Shape, bool) {
	if s.Open {
		return nil, false
	}
	out := make(tensor.Shape, len(s.Dims))
	for i, d := range s.Dims {
		if !d.Known {
			return nil, false
		}
		out[i] = d.Size
	}
	return out, true
}

// NumElements returns the element count when the shape is fully known.
func (s ShapeFact) NumElements() (int, bool) {
	shape, ok := s.Concrete()
	if !ok {
		return 0, false
	}
	return shape.NumElements(), true
}

func (s ShapeFact) String() string {
	parts := make([]string, 0, len(s.Dims)+1)
	for _, d := range s.Dims {
		if d.Known {
			parts = append(parts, fmt.Sprintf("%d", d.Size))
		} else {
			parts = append(parts, "?")
		}
	}
	if s.Open {
		parts = append(parts, "..")
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (f Fact) String() string {
	dt := "?"
	if f.Type.Known {
		dt = f.Type.Type.String()
	}
	if f.Value != nil {
		return fmt.Sprintf("%s %s =%s", dt, f.Shape, f.Value)
	}
	return fmt.Sprintf("%s %s", dt, f.Shape)
}

// IsConcrete reports whether type and shape are fully determined.
func (f Fact) IsConcrete() bool {
	if !f.Type.Known {
		return false
	}
	_, ok := f.Shape.Concrete()
	return ok
}

// Equal reports whether two facts carry the same information.
func (f Fact) Equal(other Fact) bool {
	if f.Type != other.Type {
		return false
	}
	if !f.Shape.Equal(other.Shape) {
		return false
	}
	if (f.Value == nil) != (other.Value == nil) {
		return false
	}
	if f.Value != nil && !f.Value.Equal(other.Value) {
		return false
	}
	return true
}

// Equal reports whether two shape facts carry the same information.
func (s ShapeFact) Equal(other ShapeFact) bool {
	if s.Open != other.Open || len(s.Dims) != len(other.Dims) {
		return false
	}
	for i := range s.Dims {
		if s.Dims[i] != other.Dims[i] {
			return false
		}
	}
	return true
}

// Merge unifies two facts into one that is at least as strong as both.
// It reports whether the result is stronger than f, and fails with
// ErrTypeMismatch or ErrShapeMismatch when the two contradict each other.
func (f Fact) Merge(other Fact) (Fact, bool, error) {
	out := f

	switch {
	case !f.Type.Known:
		out.Type = other.Type
	case other.Type.Known && other.Type.Type != f.Type.Type:
		return Fact{}, false, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, f.Type.Type, other.Type.Type)
	}

	shape, err := f.Shape.Merge(other.Shape)
	if err != nil {
		return Fact{}, false, err
	}
	out.Shape = shape

	switch {
	case f.Value == nil:
		out.Value = other.Value
	case other.Value != nil && !f.Value.Equal(other.Value):
		return Fact{}, false, fmt.Errorf("%w: conflicting constant values", ErrTypeMismatch)
	}

	// A known value also determines type and shape.
	if out.Value != nil {
		vf := ConstFact(out.Value)
		if out.Type.Known && out.Type.Type != vf.Type.Type {
			return Fact{}, false, fmt.Errorf("%w: value has type %s, fact says %s",
				ErrTypeMismatch, vf.Type.Type, out.Type.Type)
		}
		out.Type = vf.Type
		shape, err := out.Shape.Merge(vf.Shape)
		if err != nil {
			return Fact{}, false, err
		}
		out.Shape = shape
	}

	return out, !out.Equal(f), nil
}

// Merge unifies two shape facts.
func (s ShapeFact) Merge(other ShapeFact) (ShapeFact, error) {
	// Both open: merge the common prefix, keep the longer one.
	// One closed: the closed shape fixes the rank and must cover the
	// other's prefix.
	if !s.Open && !other.Open && len(s.Dims) != len(other.Dims) {
		return ShapeFact{}, fmt.Errorf("%w: rank %d vs %d", ErrShapeMismatch, len(s.Dims), len(other.Dims))
	}
	if !s.Open && s.coveredBy(other) {
		merged, err := mergePrefix(s.Dims, other.Dims)
		if err != nil {
			return ShapeFact{}, err
		}
		return ShapeFact{Dims: merged}, nil
	}
	if !other.Open && other.coveredBy(s) {
		merged, err := mergePrefix(other.Dims, s.Dims)
		if err != nil {
			return ShapeFact{}, err
		}
		return ShapeFact{Dims: merged}, nil
	}
	if s.Open && other.Open {
		long, short := s.Dims, other.Dims
		if len(short) > len(long) {
			long, short = short, long
		}
		merged, err := mergePrefix(long, short)
		if err != nil {
			return ShapeFact{}, err
		}
		return ShapeFact{Open: true, Dims: merged}, nil
	}
	// A closed shape with rank below the other's prefix length.
	closed, open := s, other
	if s.Open {
		closed, open = other, s
	}
	return ShapeFact{}, fmt.Errorf("%w: rank %d cannot carry a %d-dimension prefix",
		ErrShapeMismatch, len(closed.Dims), len(open.Dims))
}

// coveredBy reports whether a closed shape s is long enough to satisfy the
// other shape's dimension list.
func (s ShapeFact) coveredBy(other ShapeFact) bool {
	if other.Open {
		return len(s.Dims) >= len(other.Dims)
	}
	return len(s.Dims) == len(other.Dims)
}

// mergePrefix merges short into the front of long, element-wise.
func mergePrefix(long, short []DimFact) ([]DimFact, error) {
	out := make([]DimFact, len(long))
	copy(out, long)
	for i := range short {
		d, err := mergeDim(long[i], short[i])
		if err != nil {
			return nil, fmt.Errorf("%w at dimension %d", err, i)
		}
		out[i] = d
	}
	return out, nil
}

func mergeDim(a, b DimFact) (DimFact, error) {
	switch {
	case !a.Known:
		return b, nil
	case !b.Known:
		return a, nil
	case a.Size != b.Size:
		return DimFact{}, fmt.Errorf("%w: %d vs %d", ErrShapeMismatch, a.Size, b.Size)
	default:
		return a, nil
	}
}
