// Package analyser infers element types, shapes and constant values for
// every edge of a graph by running operator inference to a fixpoint.
package analyser

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/ops"
)

// ErrUnresolved marks facts that remained partially unknown after
// analysis. It is never returned by Analyse itself; callers that need a
// concrete fact wrap it.
var ErrUnresolved = errors.New("unresolved fact")

// Options tunes the analysis.
type Options struct {
	// MaxPasses bounds the number of full passes over the graph. Zero
	// selects a default that is always enough for monotonic inference
	// to settle.
	MaxPasses int
}

// Analysis holds the per-edge facts inferred for one graph.
type Analysis struct {
	graph *graph.Graph
	facts map[graph.OutputRef]ops.Fact
}

// Analyse infers facts for every edge of the graph. Knowledge only ever
// grows from pass to pass, so the loop stops at the first pass that
// refines nothing. Contradictory facts abort with the offending node
// identified; facts that stay partial are not an error.
func Analyse(g *graph.Graph, opts Options) (*Analysis, error) {
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = 2*g.Len() + 8
	}

	a := &Analysis{
		graph: g,
		facts: make(map[graph.OutputRef]ops.Fact),
	}

	for pass := 1; pass <= maxPasses; pass++ {
		changed := 0
		for _, node := range g.Nodes() {
			n, err := a.inferNode(node)
			if err != nil {
				return nil, fmt.Errorf("node %q (%s): %w", node.Name, node.OpType, err)
			}
			changed += n
		}
		logrus.Debugf("analyser: pass %d refined %d facts", pass, changed)
		if changed == 0 {
			return a, nil
		}
	}
	logrus.Debugf("analyser: pass budget (%d) exhausted before fixpoint", maxPasses)
	return a, nil
}

// inferNode runs one node's inference and merges the refinements back
// into the store, counting how many edges got stronger.
func (a *Analysis) inferNode(node *graph.Node) (int, error) {
	in := make([]ops.Fact, len(node.Inputs))
	for i, ref := range node.Inputs {
		in[i] = a.Fact(ref)
	}
	out := make([]ops.Fact, node.OutputCount)
	for slot := range out {
		out[slot] = a.Fact(graph.OutputRef{Node: node.ID, Slot: slot})
	}

	newIn, newOut, err := node.Op.Infer(in, out)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i, ref := range node.Inputs {
		if i >= len(newIn) {
			break
		}
		n, err := a.merge(ref, newIn[i])
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
		changed += n
	}
	for slot := range newOut {
		n, err := a.merge(graph.OutputRef{Node: node.ID, Slot: slot}, newOut[slot])
		if err != nil {
			return 0, fmt.Errorf("output %d: %w", slot, err)
		}
		changed += n
	}
	return changed, nil
}

func (a *Analysis) merge(ref graph.OutputRef, fact ops.Fact) (int, error) {
	merged, changed, err := a.Fact(ref).Merge(fact)
	if err != nil {
		return 0, err
	}
	if !changed {
		return 0, nil
	}
	a.facts[ref] = merged
	return 1, nil
}

// Graph returns the analysed graph.
func (a *Analysis) Graph() *graph.Graph {
	return a.graph
}

// Fact returns the current fact for an edge. Edges never touched by
// inference report the most general fact, never the zero value: a zero
// ShapeFact reads as a closed rank-0 shape and would poison merges.
func (a *Analysis) Fact(ref graph.OutputRef) ops.Fact {
	if fact, ok := a.facts[ref]; ok {
		return fact
	}
	return ops.AnyFact()
}

// Unresolved lists the edges whose type or shape is still not fully
// known, in (node, slot) order.
func (a *Analysis) Unresolved() []graph.OutputRef {
	var out []graph.OutputRef
	for _, node := range a.graph.Nodes() {
		for slot := 0; slot < node.OutputCount; slot++ {
			ref := graph.OutputRef{Node: node.ID, Slot: slot}
			if !a.Fact(ref).IsConcrete() {
				out = append(out, ref)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}
