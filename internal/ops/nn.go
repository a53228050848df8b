package ops

import (
	"fmt"
	"math"

	"github.com/liautaud/tfdeploy/internal/tensor"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

func (r *Registry) registerNNOps() {
	r.Register("Relu", buildRelu(math.Inf(1)))
	r.Register("Relu6", buildRelu(6))
	r.Register("Softmax", buildSoftmax)
	r.Register("Conv2D", buildConv2D)
	r.Register("MaxPool", buildPool(poolMax))
	r.Register("AvgPool", buildPool(poolAvg))
}

// Relu clamps its input to [0, Max].
type Relu struct {
	foldable
	Max float64
}

func buildRelu(max float64) Builder {
	return func(node *tfpb.NodeDef) (Op, error) {
		return &Relu{Max: max}, nil
	}
}

func (r *Relu) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	return elementwiseUnaryInfer(inputs, outputs)
}

func (r *Relu) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Relu", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	switch x.DType() {
	case tensor.Float32:
		out := x.Clone()
		vs := out.AsFloat32()
		max := float32(r.Max)
		for i, v := range vs {
			if v < 0 {
				vs[i] = 0
			} else if v > max {
				vs[i] = max
			}
		}
		return []*tensor.Tensor{out}, nil
	case tensor.Float64:
		out := x.Clone()
		vs := out.AsFloat64()
		for i, v := range vs {
			if v < 0 {
				vs[i] = 0
			} else if v > r.Max {
				vs[i] = r.Max
			}
		}
		return []*tensor.Tensor{out}, nil
	default:
		return nil, fmt.Errorf("%w: Relu does not support %s", ErrTypeMismatch, x.DType())
	}
}

// Softmax normalizes the last dimension to a probability distribution.
type Softmax struct {
	foldable
}

func buildSoftmax(node *tfpb.NodeDef) (Op, error) {
	return &Softmax{}, nil
}

func (s *Softmax) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	return elementwiseUnaryInfer(inputs, outputs)
}

func (s *Softmax) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Softmax", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: Softmax needs rank >= 1, got a scalar", ErrShapeMismatch)
	}
	if x.DType() != tensor.Float32 && x.DType() != tensor.Float64 {
		return nil, fmt.Errorf("%w: Softmax does not support %s", ErrTypeMismatch, x.DType())
	}

	inner := shape[len(shape)-1]
	if inner == 0 {
		return []*tensor.Tensor{x.Clone()}, nil
	}
	out := x.Clone()
	switch x.DType() {
	case tensor.Float32:
		softmaxKernel(out.AsFloat32(), inner)
	case tensor.Float64:
		softmaxKernel(out.AsFloat64(), inner)
	}
	return []*tensor.Tensor{out}, nil
}

// softmaxKernel normalizes each contiguous run of inner elements in place,
// shifting by the row maximum for stability.
func softmaxKernel[T float32 | float64](vs []T, inner int) {
	for base := 0; base < len(vs); base += inner {
		row := vs[base : base+inner]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum T
		for i, v := range row {
			e := T(math.Exp(float64(v - max)))
			row[i] = e
			sum += e
		}
		for i := range row {
			row[i] /= sum
		}
	}
}

type padding int

const (
	padValid padding = iota
	padSame
)

func parsePadding(node *tfpb.NodeDef) (padding, error) {
	s, err := AttrString(node, "padding", "")
	if err != nil {
		return 0, err
	}
	switch s {
	case "VALID":
		return padValid, nil
	case "SAME":
		return padSame, nil
	default:
		return 0, attrErr(node, "padding", "must be SAME or VALID, got %q", s)
	}
}

// spatialAttrs reads a [1, h, w, 1] NHWC attribute like strides or ksize.
func spatialAttrs(node *tfpb.NodeDef, name string) (int, int, error) {
	vs, err := AttrIntsRequired(node, name)
	if err != nil {
		return 0, 0, err
	}
	if len(vs) != 4 || vs[0] != 1 || vs[3] != 1 {
		return 0, 0, attrErr(node, name, "must be [1, h, w, 1], got %v", vs)
	}
	if vs[1] < 1 || vs[2] < 1 {
		return 0, 0, attrErr(node, name, "must be positive, got %v", vs)
	}
	return int(vs[1]), int(vs[2]), nil
}

func checkNHWC(node *tfpb.NodeDef) error {
	format, err := AttrString(node, "data_format", "NHWC")
	if err != nil {
		return err
	}
	if format != "NHWC" {
		return attrErr(node, "data_format", "only supports NHWC, got %q", format)
	}
	return nil
}

// outDim computes an output spatial extent plus the leading pad amount.
func (p padding) outDim(in, kernel, stride int) (out, padBefore int) {
	if p == padValid {
		if in < kernel {
			return 0, 0
		}
		return (in-kernel)/stride + 1, 0
	}
	out = (in + stride - 1) / stride
	total := (out-1)*stride + kernel - in
	if total < 0 {
		total = 0
	}
	return out, total / 2
}

func (p padding) outDimFact(in DimFact, kernel, stride int) DimFact {
	if !in.Known {
		return AnyDim()
	}
	out, _ := p.outDim(in.Size, kernel, stride)
	return KnownDim(out)
}

// Conv2D is a 2-D convolution over NHWC input with an HWIO filter.
type Conv2D struct {
	foldable
	StrideH int
	StrideW int
	Padding padding
}

func buildConv2D(node *tfpb.NodeDef) (Op, error) {
	if err := checkNHWC(node); err != nil {
		return nil, err
	}
	sh, sw, err := spatialAttrs(node, "strides")
	if err != nil {
		return nil, err
	}
	pad, err := parsePadding(node)
	if err != nil {
		return nil, err
	}
	return &Conv2D{StrideH: sh, StrideW: sw, Padding: pad}, nil
}

func (c *Conv2D) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, inputs[1].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	rank4 := ShapeFact{Dims: []DimFact{AnyDim(), AnyDim(), AnyDim(), AnyDim()}}
	inShape, err := inputs[0].Shape.Merge(rank4)
	if err != nil {
		return nil, nil, err
	}
	filterShape, err := inputs[1].Shape.Merge(rank4)
	if err != nil {
		return nil, nil, err
	}

	// Input channels must match the filter's third dimension.
	channels, err := mergeDim(inShape.Dims[3], filterShape.Dims[2])
	if err != nil {
		return nil, nil, fmt.Errorf("input channels vs filter %w", err)
	}
	inShape.Dims[3] = channels
	filterShape.Dims[2] = channels

	out := Fact{Type: t, Shape: ClosedShape(inShape.Dims[0], AnyDim(), AnyDim(), filterShape.Dims[3])}
	if filterShape.Dims[0].Known && filterShape.Dims[1].Known {
		out.Shape.Dims[1] = c.Padding.outDimFact(inShape.Dims[1], filterShape.Dims[0].Size, c.StrideH)
		out.Shape.Dims[2] = c.Padding.outDimFact(inShape.Dims[2], filterShape.Dims[1].Size, c.StrideW)
	}

	newIn := []Fact{inputs[0], inputs[1]}
	newIn[0].Type = t
	newIn[0].Shape = inShape
	newIn[1].Type = t
	newIn[1].Shape = filterShape

	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func (c *Conv2D) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity("Conv2D", inputs, 2); err != nil {
		return nil, err
	}
	x, filter := inputs[0], inputs[1]
	if len(x.Shape()) != 4 || len(filter.Shape()) != 4 {
		return nil, fmt.Errorf("%w: Conv2D needs rank-4 operands, got %v and %v",
			ErrShapeMismatch, x.Shape(), filter.Shape())
	}
	if x.DType() != tensor.Float32 || filter.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%w: Conv2D only supports float32, got %s and %s",
			ErrTypeMismatch, x.DType(), filter.DType())
	}

	batch, inH, inW, inC := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	kh, kw, fc, outC := filter.Shape()[0], filter.Shape()[1], filter.Shape()[2], filter.Shape()[3]
	if inC != fc {
		return nil, fmt.Errorf("%w: input has %d channels, filter expects %d", ErrShapeMismatch, inC, fc)
	}

	outH, padH := c.Padding.outDim(inH, kh, c.StrideH)
	outW, padW := c.Padding.outDim(inW, kw, c.StrideW)
	out, err := tensor.New(tensor.Shape{batch, outH, outW, outC}, tensor.Float32)
	if err != nil {
		return nil, err
	}

	xs, fs, os := x.AsFloat32(), filter.AsFloat32(), out.AsFloat32()
	for b := 0; b < batch; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for oc := 0; oc < outC; oc++ {
					var sum float32
					for ky := 0; ky < kh; ky++ {
						iy := oy*c.StrideH + ky - padH
						if iy < 0 || iy >= inH {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*c.StrideW + kx - padW
							if ix < 0 || ix >= inW {
								continue
							}
							for ic := 0; ic < inC; ic++ {
								in := xs[((b*inH+iy)*inW+ix)*inC+ic]
								w := fs[((ky*kw+kx)*inC+ic)*outC+oc]
								sum += in * w
							}
						}
					}
					os[((b*outH+oy)*outW+ox)*outC+oc] = sum
				}
			}
		}
	}
	return []*tensor.Tensor{out}, nil
}

type poolKind int

const (
	poolMax poolKind = iota
	poolAvg
)

func (k poolKind) String() string {
	if k == poolMax {
		return "MaxPool"
	}
	return "AvgPool"
}

// Pool is a 2-D max or average pooling over NHWC input.
type Pool struct {
	foldable
	Kind    poolKind
	KernelH int
	KernelW int
	StrideH int
	StrideW int
	Padding padding
}

func buildPool(kind poolKind) Builder {
	return func(node *tfpb.NodeDef) (Op, error) {
		if err := checkNHWC(node); err != nil {
			return nil, err
		}
		kh, kw, err := spatialAttrs(node, "ksize")
		if err != nil {
			return nil, err
		}
		sh, sw, err := spatialAttrs(node, "strides")
		if err != nil {
			return nil, err
		}
		pad, err := parsePadding(node)
		if err != nil {
			return nil, err
		}
		return &Pool{Kind: kind, KernelH: kh, KernelW: kw, StrideH: sh, StrideW: sw, Padding: pad}, nil
	}
}

func (p *Pool) Infer(inputs, outputs []Fact) ([]Fact, []Fact, error) {
	t, err := mergeTypes(inputs[0].Type, outputs[0].Type)
	if err != nil {
		return nil, nil, err
	}

	rank4 := ShapeFact{Dims: []DimFact{AnyDim(), AnyDim(), AnyDim(), AnyDim()}}
	inShape, err := inputs[0].Shape.Merge(rank4)
	if err != nil {
		return nil, nil, err
	}

	out := Fact{Type: t, Shape: ClosedShape(
		inShape.Dims[0],
		p.Padding.outDimFact(inShape.Dims[1], p.KernelH, p.StrideH),
		p.Padding.outDimFact(inShape.Dims[2], p.KernelW, p.StrideW),
		inShape.Dims[3],
	)}

	newIn := []Fact{inputs[0]}
	newIn[0].Type = t
	newIn[0].Shape = inShape

	merged, _, err := outputs[0].Merge(out)
	if err != nil {
		return nil, nil, err
	}
	return newIn, []Fact{merged}, nil
}

func (p *Pool) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(p.Kind.String(), inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if len(x.Shape()) != 4 {
		return nil, fmt.Errorf("%w: %s needs rank-4 input, got %v", ErrShapeMismatch, p.Kind, x.Shape())
	}
	if x.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%w: %s only supports float32, got %s", ErrTypeMismatch, p.Kind, x.DType())
	}

	batch, inH, inW, channels := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	outH, padH := p.Padding.outDim(inH, p.KernelH, p.StrideH)
	outW, padW := p.Padding.outDim(inW, p.KernelW, p.StrideW)
	out, err := tensor.New(tensor.Shape{batch, outH, outW, channels}, tensor.Float32)
	if err != nil {
		return nil, err
	}

	xs, os := x.AsFloat32(), out.AsFloat32()
	for b := 0; b < batch; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for c := 0; c < channels; c++ {
					acc := float32(math.Inf(-1))
					if p.Kind == poolAvg {
						acc = 0
					}
					count := 0
					for ky := 0; ky < p.KernelH; ky++ {
						iy := oy*p.StrideH + ky - padH
						if iy < 0 || iy >= inH {
							continue
						}
						for kx := 0; kx < p.KernelW; kx++ {
							ix := ox*p.StrideW + kx - padW
							if ix < 0 || ix >= inW {
								continue
							}
							v := xs[((b*inH+iy)*inW+ix)*channels+c]
							if p.Kind == poolMax {
								if v > acc {
									acc = v
								}
							} else {
								acc += v
							}
							count++
						}
					}
					if p.Kind == poolAvg && count > 0 {
						acc /= float32(count)
					}
					os[((b*outH+oy)*outW+ox)*channels+c] = acc
				}
			}
		}
	}
	return []*tensor.Tensor{out}, nil
}
