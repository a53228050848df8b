// Package tf loads serialized computation graphs and evaluates them
// without any external runtime. A loaded Model is analysed once and can
// then be executed any number of times with different inputs.
//
// Example:
//
//	model, _ := tf.Load("model.pb", tf.Options{})
//	out, _ := model.RunSingle("logits", map[string]*tensor.Tensor{"x": x})
package tf

import (
	"fmt"
	"os"

	"github.com/liautaud/tfdeploy/internal/analyser"
	"github.com/liautaud/tfdeploy/internal/graph"
	"github.com/liautaud/tfdeploy/internal/ops"
	"github.com/liautaud/tfdeploy/internal/tfpb"
)

// Registry maps operator type names to builders. A custom registry lets
// callers add operators before loading.
type Registry = ops.Registry

// NewRegistry returns a registry holding the standard operator library.
var NewRegistry = ops.NewRegistry

// Re-exported error sentinels for callers matching with errors.Is.
var (
	ErrLoad                = graph.ErrLoad
	ErrUnsupportedOperator = graph.ErrUnsupportedOperator
)

// Options configures loading.
type Options struct {
	// Registry overrides the standard operator library.
	Registry *Registry

	// Fold evaluates constant subgraphs at load time.
	Fold bool

	// MaxPasses bounds shape analysis. Zero means a safe default.
	MaxPasses int

	// Parallelism is the worker count used by Run. Zero or one runs
	// sequentially; negative selects GOMAXPROCS.
	Parallelism int
}

// Load reads and analyses a serialized graph from a file.
func Load(path string, opts Options) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return LoadBytes(data, opts)
}

// LoadBytes decodes and analyses a serialized graph.
func LoadBytes(data []byte, opts Options) (*Model, error) {
	def, err := tfpb.ParseGraphDef(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	reg := opts.Registry
	if reg == nil {
		reg = ops.NewRegistry()
	}
	g, err := graph.FromGraphDef(def, reg)
	if err != nil {
		return nil, err
	}

	a, err := analyser.Analyse(g, analyser.Options{MaxPasses: opts.MaxPasses})
	if err != nil {
		return nil, err
	}
	if opts.Fold {
		folded, err := a.Fold()
		if err != nil {
			return nil, err
		}
		g = folded
		if a, err = analyser.Analyse(g, analyser.Options{MaxPasses: opts.MaxPasses}); err != nil {
			return nil, err
		}
	}
	return newModel(g, a, opts), nil
}
