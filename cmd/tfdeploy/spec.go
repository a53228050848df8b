package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/liautaud/tfdeploy/tensor"
)

// inputSpec is a parsed -i argument: a placeholder name plus a shape and
// element type, e.g. "x=1x28x28x3xf32". An optional value list after a
// colon supplies the elements, e.g. "x=2x2xf32:1,2,3,4"; without one the
// tensor is filled with random values.
type inputSpec struct {
	name   string
	shape  tensor.Shape
	dtype  tensor.DataType
	values []float64 // nil means random
}

// specList collects repeated -i flags.
type specList []inputSpec

func (l *specList) String() string {
	parts := make([]string, len(*l))
	for i, s := range *l {
		parts[i] = s.name
	}
	return strings.Join(parts, ",")
}

func (l *specList) Set(value string) error {
	name, rest, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=spec, got %q", value)
	}
	sizePart, valuePart, hasValues := strings.Cut(rest, ":")
	shape, dtype, err := parseSizeSpec(sizePart)
	if err != nil {
		return err
	}
	spec := inputSpec{name: name, shape: shape, dtype: dtype}
	if hasValues {
		vals, err := parseValues(valuePart)
		if err != nil {
			return fmt.Errorf("input %q: %w", name, err)
		}
		if len(vals) != shape.NumElements() {
			return fmt.Errorf("input %q: %d values for shape %v (want %d)",
				name, len(vals), shape, shape.NumElements())
		}
		spec.values = vals
	}
	*l = append(*l, spec)
	return nil
}

// parseValues parses a comma-separated literal value list.
func parseValues(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", p)
		}
		vals[i] = v
	}
	return vals, nil
}

// parseSizeSpec parses "2x3xf32": dimension sizes separated by x, with a
// trailing element type.
func parseSizeSpec(spec string) (tensor.Shape, tensor.DataType, error) {
	parts := strings.Split(spec, "x")
	if len(parts) == 0 {
		return nil, 0, fmt.Errorf("empty size spec")
	}

	dtype, err := parseDType(parts[len(parts)-1])
	if err != nil {
		return nil, 0, err
	}

	shape := make(tensor.Shape, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		d, err := strconv.Atoi(p)
		if err != nil || d < 0 {
			return nil, 0, fmt.Errorf("invalid dimension %q in %q", p, spec)
		}
		shape = append(shape, d)
	}
	return shape, dtype, nil
}

func parseDType(s string) (tensor.DataType, error) {
	switch s {
	case "f32":
		return tensor.Float32, nil
	case "f64":
		return tensor.Float64, nil
	case "i32":
		return tensor.Int32, nil
	case "i64":
		return tensor.Int64, nil
	case "u8":
		return tensor.Uint8, nil
	default:
		return 0, fmt.Errorf("unknown element type %q (expected f32, f64, i32, i64 or u8)", s)
	}
}

// specTensor materializes one -i spec: its literal values when given,
// random values otherwise.
func specTensor(s inputSpec) (*tensor.Tensor, error) {
	if s.values == nil {
		return randomTensor(s.dtype, s.shape)
	}
	return literalTensor(s.dtype, s.shape, s.values)
}

// literalTensor converts parsed literal values to the requested type.
func literalTensor(dtype tensor.DataType, shape tensor.Shape, values []float64) (*tensor.Tensor, error) {
	switch dtype {
	case tensor.Float32:
		vals := make([]float32, len(values))
		for i, v := range values {
			vals[i] = float32(v)
		}
		return tensor.FromFloat32(shape, vals)
	case tensor.Float64:
		return tensor.FromFloat64(shape, append([]float64(nil), values...))
	case tensor.Int32:
		vals := make([]int32, len(values))
		for i, v := range values {
			vals[i] = int32(v)
		}
		return tensor.FromInt32(shape, vals)
	case tensor.Int64:
		vals := make([]int64, len(values))
		for i, v := range values {
			vals[i] = int64(v)
		}
		return tensor.FromInt64(shape, vals)
	case tensor.Uint8:
		vals := make([]uint8, len(values))
		for i, v := range values {
			vals[i] = uint8(v)
		}
		return tensor.FromUint8(shape, vals)
	default:
		return nil, fmt.Errorf("cannot build literal values of type %s", dtype)
	}
}

// randomTensor fills a tensor of the given shape with uniform values.
func randomTensor(dtype tensor.DataType, shape tensor.Shape) (*tensor.Tensor, error) {
	n := shape.NumElements()
	switch dtype {
	case tensor.Float32:
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = rand.Float32()
		}
		return tensor.FromFloat32(shape, vals)
	case tensor.Float64:
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = rand.Float64()
		}
		return tensor.FromFloat64(shape, vals)
	case tensor.Int32:
		vals := make([]int32, n)
		for i := range vals {
			vals[i] = rand.Int31n(256)
		}
		return tensor.FromInt32(shape, vals)
	case tensor.Int64:
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = rand.Int63n(256)
		}
		return tensor.FromInt64(shape, vals)
	case tensor.Uint8:
		vals := make([]uint8, n)
		for i := range vals {
			vals[i] = uint8(rand.Intn(256))
		}
		return tensor.FromUint8(shape, vals)
	default:
		return nil, fmt.Errorf("cannot generate random values of type %s", dtype)
	}
}
