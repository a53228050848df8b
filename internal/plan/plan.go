// Package plan computes and runs deterministic execution plans over an
// operator graph.
package plan

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/ops"
)

// Plan is an ordered execution schedule for one set of requested
// outputs. A plan is a pure function of the graph, the output set and
// the supplied input names: building it twice yields the same order.
type Plan struct {
	graph   *graph.Graph
	order   []graph.NodeID
	outputs []graph.OutputRef

	// consumers counts, per produced edge, how many plan nodes read it
	// plus one per requested output, so executors can retire tensors.
	consumers map[graph.OutputRef]int
}

// Build constructs a plan that computes the named outputs. Outputs use
// the "name" or "name:slot" form. Nodes that no output depends on are
// excluded; the surviving nodes are ordered topologically with ties
// broken toward the smaller node id. Reachable placeholders must appear
// in supplied.
func Build(g *graph.Graph, outputs []string, supplied []string) (*Plan, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs requested", ErrUnknownOutput)
	}

	p := &Plan{
		graph:     g,
		outputs:   make([]graph.OutputRef, 0, len(outputs)),
		consumers: make(map[graph.OutputRef]int),
	}
	for _, out := range outputs {
		ref, err := resolveOutput(g, out)
		if err != nil {
			return nil, err
		}
		p.outputs = append(p.outputs, ref)
	}

	suppliedSet := make(map[string]bool, len(supplied))
	for _, name := range supplied {
		suppliedSet[name] = true
	}

	reachable, err := reach(g, p.outputs, suppliedSet)
	if err != nil {
		return nil, err
	}

	p.order = order(g, reachable)

	for _, id := range p.order {
		for _, in := range g.Node(id).Inputs {
			p.consumers[in]++
		}
	}
	for _, ref := range p.outputs {
		p.consumers[ref]++
	}
	return p, nil
}

func resolveOutput(g *graph.Graph, out string) (graph.OutputRef, error) {
	name, slot := out, 0
	if n, s, ok := splitRef(out); ok {
		name, slot = n, s
	}
	node, ok := g.NodeByName(name)
	if !ok {
		return graph.OutputRef{}, fmt.Errorf("%w: no node named %q", ErrUnknownOutput, name)
	}
	if slot >= node.OutputCount {
		return graph.OutputRef{}, fmt.Errorf("%w: node %q has no output slot %d", ErrUnknownOutput, name, slot)
	}
	return graph.OutputRef{Node: node.ID, Slot: slot}, nil
}

func splitRef(out string) (string, int, bool) {
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] == ':' {
			slot := 0
			for _, c := range out[i+1:] {
				if c < '0' || c > '9' {
					return "", 0, false
				}
				slot = slot*10 + int(c-'0')
			}
			if i+1 == len(out) {
				return "", 0, false
			}
			return out[:i], slot, true
		}
	}
	return "", 0, false
}

// reach marks every transitive dependency of the requested outputs and
// verifies that all reachable placeholders have a supplied value.
func reach(g *graph.Graph, outputs []graph.OutputRef, supplied map[string]bool) ([]bool, error) {
	reachable := make([]bool, g.Len())
	stack := make([]graph.NodeID, 0, len(outputs))
	for _, ref := range outputs {
		stack = append(stack, ref.Node)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true

		node := g.Node(id)
		for _, in := range node.Inputs {
			stack = append(stack, in.Node)
		}
		stack = append(stack, node.Control...)
	}

	for _, id := range g.Placeholders() {
		if reachable[id] && !supplied[g.Node(id).Name] {
			return nil, fmt.Errorf("%w: placeholder %q has no value", ErrUnresolvedInput, g.Node(id).Name)
		}
	}
	return reachable, nil
}

// order runs Kahn's algorithm over the reachable subgraph, always
// emitting the ready node with the smallest id.
func order(g *graph.Graph, reachable []bool) []graph.NodeID {
	indegree := make([]int, g.Len())
	dependents := make([][]graph.NodeID, g.Len())
	total := 0
	for id := 0; id < g.Len(); id++ {
		if !reachable[id] {
			continue
		}
		total++
		node := g.Node(graph.NodeID(id))

		// Parallel edges from the same producer count once.
		seen := make(map[graph.NodeID]bool)
		for _, in := range node.Inputs {
			seen[in.Node] = true
		}
		for _, dep := range node.Control {
			seen[dep] = true
		}
		for dep := range seen {
			indegree[id]++
			dependents[dep] = append(dependents[dep], node.ID)
		}
	}

	ready := &idHeap{}
	heap.Init(ready)
	for id := 0; id < g.Len(); id++ {
		if reachable[id] && indegree[id] == 0 {
			heap.Push(ready, graph.NodeID(id))
		}
	}

	out := make([]graph.NodeID, 0, total)
	for ready.Len() > 0 {
		id := heap.Pop(ready).(graph.NodeID)
		out = append(out, id)
		next := dependents[id]
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}
	return out
}

// Order returns the node ids in execution order. The slice is shared,
// callers must not modify it.
func (p *Plan) Order() []graph.NodeID {
	return p.order
}

// Outputs returns the requested output refs in request order.
func (p *Plan) Outputs() []graph.OutputRef {
	return p.outputs
}

// Graph returns the graph this plan was built for.
func (p *Plan) Graph() *graph.Graph {
	return p.graph
}

// Contains reports whether the plan schedules the given node.
func (p *Plan) Contains(id graph.NodeID) bool {
	for _, other := range p.order {
		if other == id {
			return true
		}
	}
	return false
}

// placeholderOp returns the node's placeholder op, if it is one.
func placeholderOp(node *graph.Node) (*ops.Placeholder, bool) {
	ph, ok := node.Op.(*ops.Placeholder)
	return ph, ok
}

// idHeap is a min-heap of node ids.
type idHeap []graph.NodeID

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(graph.NodeID)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
