package tf

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/liautaud/tfdeploy/internal/analyser"
	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/plan"
	"github.com/liautaud/tfdeploy/tensor"
)

// Model is a loaded, analysed graph ready for execution. It is safe for
// concurrent use.
type Model struct {
	graph    *graph.Graph
	analysis *analyser.Analysis
	opts     Options

	mu    sync.Mutex
	plans map[string]*plan.Plan
}

func newModel(g *graph.Graph, a *analyser.Analysis, opts Options) *Model {
	return &Model{
		graph:    g,
		analysis: a,
		opts:     opts,
		plans:    make(map[string]*plan.Plan),
	}
}

// Inputs lists the model's placeholder names in definition order.
func (m *Model) Inputs() []string {
	out := make([]string, 0, len(m.graph.Placeholders()))
	for _, id := range m.graph.Placeholders() {
		out = append(out, m.graph.Node(id).Name)
	}
	return out
}

// Outputs lists the names of nodes that no other node consumes, in
// definition order. These are the natural extraction points.
func (m *Model) Outputs() []string {
	consumed := make(map[graph.NodeID]bool)
	for _, node := range m.graph.Nodes() {
		for _, in := range node.Inputs {
			consumed[in.Node] = true
		}
		for _, dep := range node.Control {
			consumed[dep] = true
		}
	}
	var out []string
	for _, node := range m.graph.Nodes() {
		if !consumed[node.ID] {
			out = append(out, node.Name)
		}
	}
	return out
}

// Run computes the named outputs from the given inputs. Results come
// back in request order. Plans are cached per (outputs, input names)
// pair, so repeated runs skip plan construction.
func (m *Model) Run(outputs []string, inputs map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	supplied := make([]string, 0, len(inputs))
	for name := range inputs {
		supplied = append(supplied, name)
	}
	sort.Strings(supplied)

	p, err := m.plan(outputs, supplied)
	if err != nil {
		return nil, err
	}
	return p.Execute(inputs, plan.ExecOptions{Parallelism: m.opts.Parallelism})
}

// RunSingle computes one output.
func (m *Model) RunSingle(output string, inputs map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	outs, err := m.Run([]string{output}, inputs)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

func (m *Model) plan(outputs, supplied []string) (*plan.Plan, error) {
	key := strings.Join(outputs, "\x00") + "\x01" + strings.Join(supplied, "\x00")

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.plans[key]; ok {
		return p, nil
	}
	p, err := plan.Build(m.graph, outputs, supplied)
	if err != nil {
		return nil, err
	}
	m.plans[key] = p
	return p, nil
}

// NodeInfo is a human-oriented description of one node.
type NodeInfo struct {
	ID     int
	Name   string
	OpType string

	// Facts holds what analysis knows about each output slot, e.g.
	// "float32 [1,16]".
	Facts []string
}

// Describe lists every node with its inferred facts, in id order.
func (m *Model) Describe() []NodeInfo {
	out := make([]NodeInfo, 0, m.graph.Len())
	for _, node := range m.graph.Nodes() {
		info := NodeInfo{
			ID:     int(node.ID),
			Name:   node.Name,
			OpType: node.OpType,
		}
		for slot := 0; slot < node.OutputCount; slot++ {
			fact := m.analysis.Fact(graph.OutputRef{Node: node.ID, Slot: slot})
			info.Facts = append(info.Facts, fact.String())
		}
		out = append(out, info)
	}
	return out
}

// ErrUnknownInput is returned by InputFact for names that match no node.
var ErrUnknownInput = errors.New("unknown input")

// InputFact describes what is known about a placeholder: its element
// type and, when declared, its shape.
func (m *Model) InputFact(name string) (tensor.DataType, tensor.Shape, error) {
	node, ok := m.graph.NodeByName(name)
	if !ok {
		return 0, nil, fmt.Errorf("%w: no node named %q", ErrUnknownInput, name)
	}
	fact := m.analysis.Fact(graph.OutputRef{Node: node.ID})
	if !fact.Type.Known {
		return 0, nil, fmt.Errorf("%w: type of %q", analyser.ErrUnresolved, name)
	}
	shape, ok := fact.Shape.Concrete()
	if !ok {
		return fact.Type.Type, nil, fmt.Errorf("%w: shape of %q", analyser.ErrUnresolved, name)
	}
	return fact.Type.Type, shape, nil
}
