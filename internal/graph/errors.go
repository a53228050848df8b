package graph

import (
	"errors"
	"fmt"
)

// ErrLoad covers every failure that aborts model loading. The more
// specific sentinels below all wrap it.
var ErrLoad = errors.New("load failed")

var (
	// ErrUnsupportedOperator is returned when a node's operator type has
	// no builder in the registry.
	ErrUnsupportedOperator = fmt.Errorf("%w: unsupported operator", ErrLoad)

	// ErrDanglingReference is returned when a node input names a node
	// that does not exist.
	ErrDanglingReference = fmt.Errorf("%w: dangling reference", ErrLoad)

	// ErrCycle is returned when the node dependencies are not acyclic.
	ErrCycle = fmt.Errorf("%w: dependency cycle", ErrLoad)
)
