// Command tfdeploy inspects, runs and profiles serialized computation
// graphs without a TensorFlow installation.
//
// Usage:
//
//	tfdeploy inspect <model.pb> [-v]
//	tfdeploy run <model.pb> -o node [-i name=1x3xf32[:1,2,3]] [-p workers]
//	tfdeploy profile <model.pb> -o node [-n iters]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/liautaud/tfdeploy/tensor"
	"github.com/liautaud/tfdeploy/tf"
)

const defaultProfileIters = 10000

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = cmdInspect(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "profile":
		err = cmdProfile(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tfdeploy <inspect|run|profile> <model.pb> [flags]")
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (verbose *int, fold *bool) {
	verbose = fs.Int("v", 0, "verbosity: 0=warn, 1=info, 2=debug, 3=trace")
	fold = fs.Bool("fold", false, "fold constant subgraphs at load time")
	return
}

func configureLogging(verbose int) {
	switch verbose {
	case 0:
		logrus.SetLevel(logrus.WarnLevel)
	case 1:
		logrus.SetLevel(logrus.InfoLevel)
	case 2:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.TraceLevel)
	}
}

func loadModel(fs *flag.FlagSet, opts tf.Options) (*tf.Model, error) {
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one model path, got %d arguments", fs.NArg())
	}
	path := fs.Arg(0)
	logrus.Infof("loading %s", path)
	return tf.Load(path, opts)
}

func cmdInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	verbose, fold := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbose)

	model, err := loadModel(fs, tf.Options{Fold: *fold})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"ID", "NAME", "OP", "OUTPUTS"})
	for _, info := range model.Describe() {
		for slot, fact := range info.Facts {
			if slot == 0 {
				table.Append([]string{fmt.Sprint(info.ID), info.Name, info.OpType, fact})
			} else {
				table.Append([]string{"", "", "", fact})
			}
		}
	}
	table.Render()

	fmt.Printf("inputs:  %v\noutputs: %v\n", model.Inputs(), model.Outputs())
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose, fold := commonFlags(fs)
	var inputs specList
	fs.Var(&inputs, "i", "input spec name=2x3xf32[:v,v,...] (repeatable; values default to random)")
	output := fs.String("o", "", "output node name (defaults to the sole sink)")
	workers := fs.Int("p", 0, "parallel workers (0 = sequential)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbose)

	model, err := loadModel(fs, tf.Options{Fold: *fold, Parallelism: *workers})
	if err != nil {
		return err
	}
	out, err := pickOutput(model, *output)
	if err != nil {
		return err
	}
	feed, err := buildFeed(model, inputs)
	if err != nil {
		return err
	}

	result, err := model.RunSingle(out, feed)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", out, result)
	return nil
}

func cmdProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	verbose, fold := commonFlags(fs)
	var inputs specList
	fs.Var(&inputs, "i", "input spec name=2x3xf32[:v,v,...] (repeatable)")
	output := fs.String("o", "", "output node name (defaults to the sole sink)")
	iters := fs.Int("n", defaultProfileIters, "number of iterations to average over")
	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbose)

	model, err := loadModel(fs, tf.Options{Fold: *fold})
	if err != nil {
		return err
	}
	out, err := pickOutput(model, *output)
	if err != nil {
		return err
	}
	feed, err := buildFeed(model, inputs)
	if err != nil {
		return err
	}

	// Warm up once so plan construction stays out of the measurement.
	if _, err := model.RunSingle(out, feed); err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < *iters; i++ {
		if _, err := model.RunSingle(out, feed); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("%d iterations in %s (%s per run)\n", *iters, elapsed, elapsed/time.Duration(*iters))
	return nil
}

// pickOutput resolves the requested output, falling back to the model's
// only sink when none was given.
func pickOutput(model *tf.Model, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	sinks := model.Outputs()
	if len(sinks) != 1 {
		return "", fmt.Errorf("cannot auto-detect the output among %v, pass -o", sinks)
	}
	logrus.Infof("using output %q", sinks[0])
	return sinks[0], nil
}

// buildFeed turns the -i specs into tensors, generating random values
// for placeholders whose spec or declaration fixes the shape.
func buildFeed(model *tf.Model, specs specList) (map[string]*tensor.Tensor, error) {
	bySpec := make(map[string]inputSpec, len(specs))
	for _, s := range specs {
		bySpec[s.name] = s
	}

	feed := make(map[string]*tensor.Tensor)
	for _, name := range model.Inputs() {
		if s, ok := bySpec[name]; ok {
			v, err := specTensor(s)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", name, err)
			}
			feed[name] = v
			delete(bySpec, name)
			continue
		}
		dtype, shape, err := model.InputFact(name)
		if err != nil {
			return nil, fmt.Errorf("input %q needs an explicit -i spec: %w", name, err)
		}
		v, err := randomTensor(dtype, shape)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		feed[name] = v
	}
	for name := range bySpec {
		return nil, fmt.Errorf("input spec %q matches no placeholder", name)
	}
	return feed, nil
}
