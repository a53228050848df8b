package ops

import (
	"sort"

	"github.com/liautaud/tfdeploy/internal/tfpb"
)

// Builder constructs an operator instance from a raw node, validating the
// node's attributes against the operator's expected schema. Builders fail
// with an error wrapping ErrAttribute on missing or mistyped attributes.
type Builder func(node *tfpb.NodeDef) (Op, error)

// Registry maps operator type names to builder functions.
//
// It is an explicit value threaded through the loader, never ambient
// process state: construction order and test isolation stay well-defined,
// and callers can extend a registry with custom operators before loading.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates a registry with the standard operator library.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	r.registerConstOps()
	r.registerMathOps()
	r.registerArrayOps()
	r.registerNNOps()
	r.registerCastOps()
	return r
}

// Register adds or replaces a builder for an operator type.
func (r *Registry) Register(opType string, b Builder) {
	r.builders[opType] = b
}

// Lookup returns the builder for an operator type.
func (r *Registry) Lookup(opType string) (Builder, bool) {
	b, ok := r.builders[opType]
	return b, ok
}

// Ops returns the sorted list of registered operator types.
func (r *Registry) Ops() []string {
	out := make([]string, 0, len(r.builders))
	for op := range r.builders {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}
