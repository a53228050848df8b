package ops

import "errors"

// Sentinel errors shared by infer and eval across all operators.
var (
	// ErrTypeMismatch is returned when facts or tensors carry data types
	// that the operator cannot reconcile.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrShapeMismatch is returned when facts or tensors carry shapes
	// that the operator cannot reconcile.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrAttribute is returned by builders for missing or mistyped node
	// attributes.
	ErrAttribute = errors.New("invalid attribute")
)
