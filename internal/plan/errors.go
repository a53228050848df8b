package plan

import "errors"

var (
	// ErrUnknownOutput is returned when a requested output names a node
	// that is not in the graph.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrUnresolvedInput is returned when a reachable placeholder has no
	// supplied value.
	ErrUnresolvedInput = errors.New("unresolved input")

	// ErrEval wraps an operator failure during execution.
	ErrEval = errors.New("evaluation failed")
)
