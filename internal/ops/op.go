// Package ops provides the operator contract and the standard operator
// library for the tfdeploy runtime.
//
// Every operator implements the two-sided contract:
//   - Infer refines partial facts about its inputs and outputs, in either
//     direction, failing when the supplied facts are inconsistent;
//   - Eval computes output tensors from fully realized input tensors.
package ops

import (
	"fmt"

	"github.com/liautaud/tfdeploy/internal/tensor"
)

// Op is the contract every operator kind implements.
type Op interface {
	// Infer produces facts at least as strong as the given ones, for both
	// sides of the node. It returns the input facts unchanged when nothing
	// new can be deduced, and fails when the facts are mutually
	// inconsistent. Implementations must not mutate the argument slices.
	Infer(inputs, outputs []Fact) ([]Fact, []Fact, error)

	// Eval computes output tensors from input tensors. This is the last
	// line of defense: most shape and type errors should already have
	// been caught by Infer.
	Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// ConstFolder marks operators whose Eval may run at analysis time when all
// inputs are known constants, so the node can be folded into a Const.
// Placeholder and stateful operators must not implement it.
type ConstFolder interface {
	ConstFoldable() bool
}

// foldable is embedded by operators that are safe to fold.
type foldable struct{}

func (foldable) ConstFoldable() bool { return true }

// checkArity returns an eval error unless exactly want inputs were given.
func checkArity(name string, inputs []*tensor.Tensor, want int) error {
	if len(inputs) != want {
		return fmt.Errorf("%s requires %d inputs, got %d", name, want, len(inputs))
	}
	return nil
}
