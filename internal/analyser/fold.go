package analyser

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/ops"
	"github.com/liautaud/tfdeploy/internal/tensor"
)

// Fold evaluates every node whose inputs are all constants at load time
// and returns a graph with those nodes replaced by constants. Node ids
// and names are preserved, so references from the surviving nodes stay
// valid. The receiver is left untouched.
func (a *Analysis) Fold() (*graph.Graph, error) {
	g := a.graph
	nodes := make([]*graph.Node, g.Len())
	copy(nodes, g.Nodes())

	// Edge values known so far. Seeded lazily from Const nodes and
	// extended as folds cascade downstream.
	values := make(map[graph.OutputRef]*tensor.Tensor)
	for _, node := range nodes {
		if c, ok := node.Op.(*ops.Const); ok {
			values[graph.OutputRef{Node: node.ID}] = c.Value
		}
	}

	folded := 0
	for {
		progress := false
		for i, node := range nodes {
			if _, isConst := node.Op.(*ops.Const); isConst {
				continue
			}
			if !foldableOp(node.Op) || node.OutputCount != 1 {
				continue
			}
			in, ok := gatherValues(values, node.Inputs)
			if !ok {
				continue
			}

			outs, err := node.Op.Eval(in)
			if err != nil {
				return nil, fmt.Errorf("folding node %q (%s): %w", node.Name, node.OpType, err)
			}

			replacement := &graph.Node{
				ID:          node.ID,
				Name:        node.Name,
				OpType:      "Const",
				Op:          ops.NewConst(outs[0]),
				Control:     node.Control,
				OutputCount: 1,
			}
			nodes[i] = replacement
			values[graph.OutputRef{Node: node.ID}] = outs[0]
			progress = true
			folded++
		}
		if !progress {
			break
		}
	}

	logrus.Debugf("analyser: folded %d nodes into constants", folded)
	return g.WithNodes(nodes), nil
}

func foldableOp(op ops.Op) bool {
	f, ok := op.(ops.ConstFolder)
	return ok && f.ConstFoldable()
}

func gatherValues(values map[graph.OutputRef]*tensor.Tensor, refs []graph.OutputRef) ([]*tensor.Tensor, bool) {
	out := make([]*tensor.Tensor, len(refs))
	for i, ref := range refs {
		v, ok := values[ref]
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
