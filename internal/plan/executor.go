package plan

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/ops"
	"github.com/liautaud/tfdeploy/internal/tensor"
)

// ExecOptions tunes plan execution.
type ExecOptions struct {
	// Parallelism is the number of worker goroutines. Zero or one runs
	// sequentially; negative selects GOMAXPROCS.
	Parallelism int
}

// Execute runs the plan and returns the requested outputs in request
// order. Intermediate tensors are released as soon as their last
// consumer has run.
func (p *Plan) Execute(inputs map[string]*tensor.Tensor, opts ExecOptions) ([]*tensor.Tensor, error) {
	workers := opts.Parallelism
	if workers < 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > 1 {
		return p.executeParallel(inputs, workers)
	}

	state := newExecState(p, inputs)
	for _, id := range p.order {
		if state.done() {
			break
		}
		node := p.graph.Node(id)
		outs, err := state.evalNode(node)
		if err != nil {
			return nil, err
		}
		state.commit(node, outs)
	}
	return state.results()
}

// executeParallel runs independent nodes concurrently. A single
// scheduler goroutine owns all bookkeeping; workers only evaluate.
// Results are identical to sequential execution.
func (p *Plan) executeParallel(inputs map[string]*tensor.Tensor, workers int) ([]*tensor.Tensor, error) {
	type task struct {
		node *graph.Node
		in   []*tensor.Tensor
	}
	type result struct {
		node *graph.Node
		out  []*tensor.Tensor
	}

	g, ctx := errgroup.WithContext(context.Background())
	tasks := make(chan task)
	// Buffered to plan size: worker sends never block, so a failing
	// scheduler cannot strand a worker mid-send.
	done := make(chan result, len(p.order))

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for t := range tasks {
				out, err := t.node.Op.Eval(t.in)
				if err != nil {
					return evalErr(t.node, err)
				}
				done <- result{node: t.node, out: out}
			}
			return nil
		})
	}

	state := newExecState(p, inputs)
	schedErr := func() error {
		defer close(tasks)

		// Dependencies still missing per scheduled node.
		waiting := make(map[graph.NodeID]int, len(p.order))
		dependents := make(map[graph.NodeID][]graph.NodeID)
		for _, id := range p.order {
			node := p.graph.Node(id)
			deps := make(map[graph.NodeID]bool)
			for _, in := range node.Inputs {
				deps[in.Node] = true
			}
			for _, dep := range node.Control {
				deps[dep] = true
			}
			waiting[id] = len(deps)
			for dep := range deps {
				dependents[dep] = append(dependents[dep], id)
			}
		}

		inFlight := 0
		ready := &idHeap{}
		for _, id := range p.order {
			if waiting[id] == 0 {
				*ready = append(*ready, id)
			}
		}

		finish := func(node *graph.Node, out []*tensor.Tensor) {
			state.commit(node, out)
			for _, dep := range dependents[node.ID] {
				waiting[dep]--
				if waiting[dep] == 0 {
					*ready = append(*ready, dep)
				}
			}
		}

		for !state.done() && (ready.Len() > 0 || inFlight > 0) {
			// Dispatch every ready node, cheapest id first. Placeholder
			// injection is a map lookup, keep it on the scheduler.
			for ready.Len() > 0 {
				id := popMin(ready)
				node := p.graph.Node(id)
				if _, ok := placeholderOp(node); ok {
					out, err := state.evalNode(node)
					if err != nil {
						return err
					}
					finish(node, out)
					continue
				}
				in, err := state.gather(node)
				if err != nil {
					return err
				}
				select {
				case tasks <- task{node: node, in: in}:
					inFlight++
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if inFlight == 0 {
				continue
			}
			select {
			case r := <-done:
				inFlight--
				finish(r.node, r.out)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}()

	if schedErr != nil {
		// Let the workers drain first. A failed Eval cancels the context,
		// so the scheduler often exits with a bare cancellation error; the
		// worker's error names the failing node and takes precedence.
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return nil, schedErr
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state.results()
}

func popMin(h *idHeap) graph.NodeID {
	min := 0
	for i := range *h {
		if (*h)[i] < (*h)[min] {
			min = i
		}
	}
	id := (*h)[min]
	*h = append((*h)[:min], (*h)[min+1:]...)
	return id
}

// execState tracks materialized tensors and retirement counts during one
// execution.
type execState struct {
	plan    *Plan
	inputs  map[string]*tensor.Tensor
	store   map[graph.OutputRef]*tensor.Tensor
	pending map[graph.OutputRef]int
	missing int
	out     map[graph.OutputRef]*tensor.Tensor
}

func newExecState(p *Plan, inputs map[string]*tensor.Tensor) *execState {
	pending := make(map[graph.OutputRef]int, len(p.consumers))
	for ref, n := range p.consumers {
		pending[ref] = n
	}
	return &execState{
		plan:    p,
		inputs:  inputs,
		store:   make(map[graph.OutputRef]*tensor.Tensor),
		pending: pending,
		missing: len(p.outputs),
		out:     make(map[graph.OutputRef]*tensor.Tensor, len(p.outputs)),
	}
}

// gather collects a node's input tensors from the store.
func (s *execState) gather(node *graph.Node) ([]*tensor.Tensor, error) {
	in := make([]*tensor.Tensor, len(node.Inputs))
	for i, ref := range node.Inputs {
		v, ok := s.store[ref]
		if !ok {
			return nil, evalErr(node, fmt.Errorf("input %d was not materialized", i))
		}
		in[i] = v
	}
	return in, nil
}

// evalNode produces a node's output tensors, either by injecting a
// supplied placeholder value or by running the operator.
func (s *execState) evalNode(node *graph.Node) ([]*tensor.Tensor, error) {
	if ph, ok := placeholderOp(node); ok {
		v, ok := s.inputs[node.Name]
		if !ok {
			return nil, fmt.Errorf("%w: placeholder %q has no value", ErrUnresolvedInput, node.Name)
		}
		if err := checkPlaceholderValue(ph, v); err != nil {
			return nil, fmt.Errorf("placeholder %q: %w", node.Name, err)
		}
		return []*tensor.Tensor{v}, nil
	}

	in, err := s.gather(node)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := node.Op.Eval(in)
	if err != nil {
		return nil, evalErr(node, err)
	}
	logrus.Tracef("executor: node %q (%s) took %s", node.Name, node.OpType, time.Since(start))
	return out, nil
}

// commit stores a node's outputs, captures requested results and retires
// tensors whose consumers have all run.
func (s *execState) commit(node *graph.Node, outs []*tensor.Tensor) {
	for slot, v := range outs {
		ref := graph.OutputRef{Node: node.ID, Slot: slot}
		if s.pending[ref] == 0 {
			continue // nothing in the plan reads this slot
		}
		s.store[ref] = v
	}

	for _, ref := range s.plan.outputs {
		if ref.Node != node.ID {
			continue
		}
		if _, ok := s.out[ref]; ok {
			continue
		}
		if v, ok := s.store[ref]; ok {
			s.out[ref] = v
			s.missing--
			s.release(ref)
		}
	}

	for _, ref := range node.Inputs {
		s.release(ref)
	}
}

func (s *execState) release(ref graph.OutputRef) {
	n, ok := s.pending[ref]
	if !ok {
		return
	}
	n--
	if n <= 0 {
		delete(s.pending, ref)
		delete(s.store, ref)
		return
	}
	s.pending[ref] = n
}

func (s *execState) done() bool {
	return s.missing == 0
}

func (s *execState) results() ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(s.plan.outputs))
	for i, ref := range s.plan.outputs {
		v, ok := s.out[ref]
		if !ok {
			node := s.plan.graph.Node(ref.Node)
			return nil, evalErr(node, fmt.Errorf("output slot %d was never materialized", ref.Slot))
		}
		out[i] = v
	}
	return out, nil
}

func evalErr(node *graph.Node, err error) error {
	return fmt.Errorf("%w: node %q (%s): %w", ErrEval, node.Name, node.OpType, err)
}

// checkPlaceholderValue verifies a supplied tensor against the
// placeholder's declared type and shape.
func checkPlaceholderValue(ph *ops.Placeholder, v *tensor.Tensor) error {
	if v.DType() != ph.Dtype {
		return fmt.Errorf("%w: declared %s, supplied %s", ops.ErrTypeMismatch, ph.Dtype, v.DType())
	}
	if _, err := ph.Shape.Merge(ops.ShapeOf(v.Shape())); err != nil {
		return fmt.Errorf("declared %s, supplied %v: %w", ph.Shape, v.Shape(), err)
	}
	return nil
}
