package ops

import (
	"fmt"

	"github.com/liautaud/tfdeploy/internal/tensor"
)

// broadcaster maps flat output indices back to flat operand indices for a
// pair of broadcast-compatible shapes.
type broadcaster struct {
	out        tensor.Shape
	outStrides []int
	aStrides   []int // 0 where a is broadcast along the dimension
	bStrides   []int
}

func newBroadcaster(a, b tensor.Shape) (*broadcaster, error) {
	out, _, err := tensor.BroadcastShapes(a, b)
	if err != nil {
		return nil, err
	}
	bc := &broadcaster{
		out:        out,
		outStrides: out.ComputeStrides(),
		aStrides:   effectiveStrides(a, out),
		bStrides:   effectiveStrides(b, out),
	}
	return bc, nil
}

// effectiveStrides right-aligns s against out and zeroes the stride of
// every broadcast dimension.
func effectiveStrides(s, out tensor.Shape) []int {
	strides := s.ComputeStrides()
	eff := make([]int, len(out))
	offset := len(out) - len(s)
	for d := range out {
		if d < offset {
			continue
		}
		if s[d-offset] == 1 && out[d] != 1 {
			continue
		}
		eff[d] = strides[d-offset]
	}
	return eff
}

func (bc *broadcaster) indices(flat int) (int, int) {
	ai, bi := 0, 0
	rem := flat
	for d := range bc.out {
		coord := rem / bc.outStrides[d]
		rem %= bc.outStrides[d]
		ai += coord * bc.aStrides[d]
		bi += coord * bc.bStrides[d]
	}
	return ai, bi
}

// broadcastShapeFacts computes the broadcast result over partial shapes.
// An unknown dimension paired with a known one above 1 still yields the
// known size: the unknown side can only be 1 or equal for the graph to be
// valid at all.
func broadcastShapeFacts(a, b ShapeFact) (ShapeFact, error) {
	if a.Open || b.Open {
		return ShapeFact{Open: true}, nil
	}
	rank := max(len(a.Dims), len(b.Dims))
	dims := make([]DimFact, rank)
	for i := 0; i < rank; i++ {
		da, db := DimFact{Known: true, Size: 1}, DimFact{Known: true, Size: 1}
		if idx := len(a.Dims) - 1 - i; idx >= 0 {
			da = a.Dims[idx]
		}
		if idx := len(b.Dims) - 1 - i; idx >= 0 {
			db = b.Dims[idx]
		}
		d := rank - 1 - i

		switch {
		case da.Known && db.Known:
			switch {
			case da.Size == db.Size:
				dims[d] = da
			case da.Size == 1:
				dims[d] = db
			case db.Size == 1:
				dims[d] = da
			default:
				return ShapeFact{}, fmt.Errorf("%w: cannot broadcast %d against %d",
					ErrShapeMismatch, da.Size, db.Size)
			}
		case da.Known && da.Size > 1:
			dims[d] = da
		case db.Known && db.Size > 1:
			dims[d] = db
		default:
			dims[d] = AnyDim()
		}
	}
	return ShapeFact{Dims: dims}, nil
}

// mergeTypes unifies any number of type facts.
func mergeTypes(facts ...TypeFact) (TypeFact, error) {
	out := TypeFact{}
	for _, f := range facts {
		if !f.Known {
			continue
		}
		if out.Known && out.Type != f.Type {
			return TypeFact{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, out.Type, f.Type)
		}
		out = f
	}
	return out, nil
}
