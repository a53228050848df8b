package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/liautaud/tfdeploy/internal/ops"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

// FromGraphDef builds a graph from a decoded model definition, looking
// every operator up in the registry. It fails on unknown operator types,
// invalid attributes, duplicate or dangling node names, and cycles.
func FromGraphDef(def *tfpb.GraphDef, reg *ops.Registry) (*Graph, error) {
	g := &Graph{
		nodes:  make([]*Node, 0, len(def.Nodes)),
		byName: make(map[string]NodeID, len(def.Nodes)),
	}

	// First pass assigns ids in file order so that references can point
	// forward as well as backward.
	for i, nd := range def.Nodes {
		if nd.Name == "" {
			return nil, fmt.Errorf("%w: node %d has no name", ErrLoad, i)
		}
		if _, ok := g.byName[nd.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate node name %q", ErrLoad, nd.Name)
		}
		g.byName[nd.Name] = NodeID(i)
	}

	for i, nd := range def.Nodes {
		build, ok := reg.Lookup(nd.Op)
		if !ok {
			return nil, fmt.Errorf("%w %q at node %q", ErrUnsupportedOperator, nd.Op, nd.Name)
		}
		op, err := build(nd)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}

		node := &Node{
			ID:          NodeID(i),
			Name:        nd.Name,
			OpType:      nd.Op,
			Op:          op,
			OutputCount: 1,
		}
		for _, in := range nd.Input {
			name, slot, control, err := parseInputRef(in)
			if err != nil {
				return nil, fmt.Errorf("%w: node %q input %q: %v", ErrLoad, nd.Name, in, err)
			}
			src, ok := g.byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: node %q references unknown node %q", ErrDanglingReference, nd.Name, name)
			}
			if control {
				node.Control = append(node.Control, src)
			} else {
				node.Inputs = append(node.Inputs, OutputRef{Node: src, Slot: slot})
			}
		}
		if _, ok := op.(*ops.Placeholder); ok {
			g.placeholders = append(g.placeholders, node.ID)
		}
		g.nodes = append(g.nodes, node)
	}

	// Referenced slots widen the producer's output arity.
	for _, n := range g.nodes {
		for _, in := range n.Inputs {
			src := g.nodes[int(in.Node)]
			if in.Slot >= src.OutputCount {
				src.OutputCount = in.Slot + 1
			}
		}
	}

	if err := checkAcyclic(g); err != nil {
		return nil, err
	}
	return g, nil
}

// parseInputRef splits a raw input string into its node name, output
// slot and control flag. The accepted forms are "name", "name:slot" and
// "^name".
func parseInputRef(in string) (name string, slot int, control bool, err error) {
	if strings.HasPrefix(in, "^") {
		return in[1:], 0, true, nil
	}
	name = in
	if i := strings.LastIndexByte(in, ':'); i >= 0 {
		slot, err = strconv.Atoi(in[i+1:])
		if err != nil || slot < 0 {
			return "", 0, false, fmt.Errorf("invalid output slot %q", in[i+1:])
		}
		name = in[:i]
	}
	if name == "" {
		return "", 0, false, fmt.Errorf("empty node name")
	}
	return name, slot, false, nil
}

// checkAcyclic walks dependencies depth-first and fails on a back edge.
func checkAcyclic(g *Graph) error {
	const (
		white = iota // unvisited
		grey         // on the current path
		black        // done
	)
	color := make([]int, g.Len())
	stack := make([]NodeID, 0, g.Len())

	deps := func(n *Node) []NodeID {
		out := make([]NodeID, 0, len(n.Inputs)+len(n.Control))
		for _, in := range n.Inputs {
			out = append(out, in.Node)
		}
		return append(out, n.Control...)
	}

	for start := 0; start < g.Len(); start++ {
		if color[start] != white {
			continue
		}
		stack = append(stack[:0], NodeID(start))
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			node := g.Node(id)
			if color[id] == white {
				color[id] = grey
			} else {
				// Second visit, all dependencies are settled.
				color[id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			for _, dep := range deps(node) {
				switch color[dep] {
				case grey:
					return fmt.Errorf("%w through node %q", ErrCycle, g.Node(dep).Name)
				case white:
					stack = append(stack, dep)
				}
			}
		}
	}
	return nil
}
