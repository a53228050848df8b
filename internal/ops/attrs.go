package ops

import (
	"fmt"

	"github.com/liautaud/tfdeploy/internal/tfpb"
)

// Attribute accessors over raw nodes. Required accessors fail with
// ErrAttribute when the attribute is missing; all accessors fail when the
// attribute holds a different branch of the value oneof than expected.

func attrErr(node *tfpb.NodeDef, name, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: node %q (%s): attribute %q %s", ErrAttribute, node.Name, node.Op, name, detail)
}

// AttrType returns a required type attribute.
func AttrType(node *tfpb.NodeDef, name string) (tfpb.DataType, error) {
	av, ok := node.Attr[name]
	if !ok {
		return 0, attrErr(node, name, "is missing")
	}
	if av.Kind != tfpb.AttrType {
		return 0, attrErr(node, name, "has kind %s, want type", av.Kind)
	}
	return av.Type, nil
}

// AttrTensor returns a required tensor literal attribute.
func AttrTensor(node *tfpb.NodeDef, name string) (*tfpb.TensorProto, error) {
	av, ok := node.Attr[name]
	if !ok {
		return nil, attrErr(node, name, "is missing")
	}
	if av.Kind != tfpb.AttrTensor {
		return nil, attrErr(node, name, "has kind %s, want tensor", av.Kind)
	}
	return av.Tensor, nil
}

// AttrShape returns an optional shape attribute. Missing yields (nil, nil).
func AttrShape(node *tfpb.NodeDef, name string) (*tfpb.TensorShapeProto, error) {
	av, ok := node.Attr[name]
	if !ok {
		return nil, nil
	}
	if av.Kind != tfpb.AttrShape {
		return nil, attrErr(node, name, "has kind %s, want shape", av.Kind)
	}
	return av.Shape, nil
}

// AttrInt returns an int attribute, or def when absent.
func AttrInt(node *tfpb.NodeDef, name string, def int64) (int64, error) {
	av, ok := node.Attr[name]
	if !ok {
		return def, nil
	}
	if av.Kind != tfpb.AttrInt {
		return 0, attrErr(node, name, "has kind %s, want int", av.Kind)
	}
	return av.I, nil
}

// AttrIntRequired returns a required int attribute.
func AttrIntRequired(node *tfpb.NodeDef, name string) (int64, error) {
	av, ok := node.Attr[name]
	if !ok {
		return 0, attrErr(node, name, "is missing")
	}
	if av.Kind != tfpb.AttrInt {
		return 0, attrErr(node, name, "has kind %s, want int", av.Kind)
	}
	return av.I, nil
}

// AttrInts returns an int list attribute. Missing yields nil.
func AttrInts(node *tfpb.NodeDef, name string) ([]int64, error) {
	av, ok := node.Attr[name]
	if !ok {
		return nil, nil
	}
	if av.Kind != tfpb.AttrList {
		return nil, attrErr(node, name, "has kind %s, want list(int)", av.Kind)
	}
	return av.List.I, nil
}

// AttrIntsRequired returns a required int list attribute.
func AttrIntsRequired(node *tfpb.NodeDef, name string) ([]int64, error) {
	av, ok := node.Attr[name]
	if !ok {
		return nil, attrErr(node, name, "is missing")
	}
	if av.Kind != tfpb.AttrList {
		return nil, attrErr(node, name, "has kind %s, want list(int)", av.Kind)
	}
	return av.List.I, nil
}

// AttrFloat returns a float attribute, or def when absent.
func AttrFloat(node *tfpb.NodeDef, name string, def float32) (float32, error) {
	av, ok := node.Attr[name]
	if !ok {
		return def, nil
	}
	if av.Kind != tfpb.AttrFloat {
		return 0, attrErr(node, name, "has kind %s, want float", av.Kind)
	}
	return av.F, nil
}

// AttrBool returns a bool attribute, or def when absent.
func AttrBool(node *tfpb.NodeDef, name string, def bool) (bool, error) {
	av, ok := node.Attr[name]
	if !ok {
		return def, nil
	}
	if av.Kind != tfpb.AttrBool {
		return false, attrErr(node, name, "has kind %s, want bool", av.Kind)
	}
	return av.B, nil
}

// AttrString returns a string attribute, or def when absent.
func AttrString(node *tfpb.NodeDef, name, def string) (string, error) {
	av, ok := node.Attr[name]
	if !ok {
		return def, nil
	}
	if av.Kind != tfpb.AttrBytes {
		return "", attrErr(node, name, "has kind %s, want string", av.Kind)
	}
	return string(av.S), nil
}
