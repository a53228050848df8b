// Package graph turns a decoded model definition into an immutable
// operator graph with resolved references.
package graph

import (
	"github.com/liautaud/tfdeploy/internal/ops"
)

// NodeID identifies a node within one graph. IDs are assigned in file
// order starting at zero and are dense.
type NodeID int

// OutputRef names one output slot of one node.
type OutputRef struct {
	Node NodeID
	Slot int
}

// Node is a single operator instance.
type Node struct {
	ID     NodeID
	Name   string
	OpType string
	Op     ops.Op

	// Inputs are the data dependencies, in operator argument order.
	Inputs []OutputRef

	// Control lists nodes that must run first without contributing data.
	Control []NodeID

	// OutputCount is the number of output slots. Every operator in the
	// standard library produces one; references to higher slots widen it.
	OutputCount int
}

// Graph is a read-only operator graph.
type Graph struct {
	nodes        []*Node
	byName       map[string]NodeID
	placeholders []NodeID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[int(id)]
}

// NodeByName looks a node up by its unique name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.nodes[int(id)], true
}

// Nodes returns all nodes in id order. The slice is shared, callers
// must not modify it.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Placeholders returns the ids of all placeholder nodes in id order.
func (g *Graph) Placeholders() []NodeID {
	return g.placeholders
}

// WithNodes derives a graph that reuses this graph's name index but
// substitutes the given node slice. Used by constant folding to swap
// node bodies while keeping ids and references stable.
func (g *Graph) WithNodes(nodes []*Node) *Graph {
	placeholders := make([]NodeID, 0, len(g.placeholders))
	for _, n := range nodes {
		if _, ok := n.Op.(*ops.Placeholder); ok {
			placeholders = append(placeholders, n.ID)
		}
	}
	return &Graph{nodes: nodes, byName: g.byName, placeholders: placeholders}
}
