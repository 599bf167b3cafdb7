// dspfit fits the parameters of a differentiable signal-processing transform so that its output
// matches the output of a ground-truth transform, both fed with the same input, using online
// gradient descent.
//
// Usage:
//
//	dspfit --input <file> --gt <file> --diff <file> [-lf|--lossfunction <l1|l2>] [-lr|--learningrate <float>]
//
// Each processed frame is reported to a CSV file (-csv, "loss.csv" by default) and, optionally, as a
// text trace on the standard output. See -help for all the flags, including the hyperparameters that can
// be configured with -set.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/dspfit/backends"
	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/gomlx/dspfit/pkg/fit/report"
	"github.com/gomlx/dspfit/pkg/session"
	"github.com/gomlx/dspfit/pkg/support/params"
	"github.com/gomlx/dspfit/ui/commandline"
	"github.com/gomlx/dspfit/ui/plots"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/dspfit/backends/default"
)

const programName = "dspfit"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// flags of one invocation of the program.
type flags struct {
	input, groundTruth, diff string
	lossFunction             string
	learningRate             float64

	csv, plot, plotPoints string
	trace, progress       bool
	plotSamples           int
	backend               string
	settings              *string
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, "Usage: %s --input <file> --gt <file> --diff <file>"+
		" [-lf|--lossfunction <loss-function>] [-lr|--learningrate <learning-rate>]\n\nFlags:\n", programName)
	fs.PrintDefaults()
}

// newFlagSet creates the flags of the program, storing their values in f. The -set flag lists the
// hyperparameters in p.
func newFlagSet(stdout io.Writer, f *flags, p *params.Params) *flag.FlagSet {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() { usage(fs) }
	fs.StringVar(&f.input, "input", "", "Description of the input transform, fed to all the other transforms.")
	fs.StringVar(&f.groundTruth, "gt", "", "Description of the ground-truth transform, whose output is the target.")
	fs.StringVar(&f.diff, "diff", "", "Description of the differentiable transform, whose parameters are fitted.")
	lossUsage := fmt.Sprintf("Loss function, one of %q. Unknown values fall back to %q.",
		fit.LossFunctionStrings(), fit.DefaultLossFunction)
	fs.StringVar(&f.lossFunction, "lf", fit.DefaultLossFunction.String(), lossUsage)
	fs.StringVar(&f.lossFunction, "lossfunction", fit.DefaultLossFunction.String(), lossUsage)
	fs.Float64Var(&f.learningRate, "lr", fit.DefaultLearningRate, "Learning rate (alpha) of the gradient descent.")
	fs.Float64Var(&f.learningRate, "learningrate", fit.DefaultLearningRate, "Learning rate (alpha) of the gradient descent.")
	fs.StringVar(&f.csv, "csv", "loss.csv", "File where to write the loss, gradients and parameter values of each frame. "+
		"If empty, no CSV is written.")
	fs.BoolVar(&f.trace, "trace", true, "Print a trace of each frame to the standard output. Ignored with -progress.")
	fs.BoolVar(&f.progress, "progress", false, "Display a progress bar, instead of the trace of each frame.")
	fs.StringVar(&f.plot, "plot", "", "If set, save an image with the loss to this file (e.g.: \"loss.png\"), and "+
		"one with the parameter values to a file with the \"_parameters\" suffix.")
	fs.StringVar(&f.plotPoints, "plot_points", "", "If set, append the plot points (JSON, one per line) to this file.")
	fs.IntVar(&f.plotSamples, "plot_samples", 1000, "Number of times the loss and parameters are sampled for plotting.")
	fs.StringVar(&f.backend, "backend", "", fmt.Sprintf("Backend configuration \"<name>[:<config>]\". "+
		"If empty, $%s is used, or the first registered backend. Registered backends: %q.",
		backends.DSPFIT_BACKEND, backends.List()))
	f.settings = commandline.CreateSettingsFlag(p, fs, "set")
	klog.InitFlags(fs)
	return fs
}

// run the program with the given arguments, and returns the exit code.
func run(args []string, stdout io.Writer) int {
	p := fit.DefaultParams()
	f := &flags{}
	fs := newFlagSet(stdout, f, p)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if f.input == "" || f.groundTruth == "" || f.diff == "" {
		_, _ = fmt.Fprintln(stdout, "Please provide input, ground truth, and differentiable transform files.")
		fs.Usage()
		return 1
	}

	err := exceptions.TryCatch[error](func() {
		paramsSet := must.M1(commandline.ParseSettings(p, *f.settings))
		fs.Visit(func(fl *flag.Flag) {
			switch fl.Name {
			case "lr", "learningrate":
				p.SetParam(fit.ParamLearningRate, f.learningRate)
				paramsSet = append(paramsSet, fit.ParamLearningRate)
			case "lf", "lossfunction":
				p.SetParam(fit.ParamLossFunction, f.lossFunction)
				paramsSet = append(paramsSet, fit.ParamLossFunction)
			}
		})
		if len(paramsSet) > 0 {
			klog.V(1).Infof("Modified settings:\n%s", commandline.SprintModifiedSettings(p, paramsSet))
		}
		fitTransform(stdout, f, p)
	})
	if err != nil {
		_, _ = fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}
	return 0
}

// fitTransform creates the session, attaches the reports and runs the fit. It panics on errors.
func fitTransform(stdout io.Writer, f *flags, p *params.Params) {
	var backend backends.Backend
	if f.backend != "" {
		backend = must.M1(backends.NewWithConfig(f.backend))
	} else {
		backend = must.M1(backends.New())
	}
	klog.V(1).Infof("Backend %q: %s", backend.Name(), backend.Description())

	s := must.M1(session.New(backend, session.Paths{
		Input:          f.input,
		GroundTruth:    f.groundTruth,
		Differentiable: f.diff,
	}, p))
	loop := s.Loop

	if f.trace && !f.progress {
		report.AttachTrace(loop, stdout)
	} else {
		must.M(report.PrintSetup(stdout, loop))
	}
	var csvReport *report.CSV
	if f.csv != "" {
		csvReport = must.M1(report.CreateCSV(f.csv))
		csvReport.Attach(loop)
		defer func() { _ = csvReport.Close() }()
	}
	if f.progress {
		commandline.Output = stdout
		stopProgressBar := commandline.AttachProgressBar(loop)
		defer stopProgressBar()
	}
	var collector *plots.Collector
	if f.plot != "" || f.plotPoints != "" {
		collector = plots.AttachCollector(loop, f.plotSamples)
	}

	state, err := s.Run()
	if csvReport != nil {
		if closeErr := csvReport.Close(); err == nil {
			err = closeErr
		}
	}
	must.M(err)
	klog.V(1).Infof("Fit finished in state %s after %d frames", state, loop.FramesProcessed)
	must.M(commandline.ReportSummary(stdout, loop))

	if collector != nil {
		if f.plotPoints != "" {
			must.M(collector.Save(f.plotPoints))
		}
		if f.plot != "" {
			points := collector.Points()
			must.M(plots.SaveImage(f.plot, "Loss", plots.MetricTypeLoss, points))
			must.M(plots.SaveImage(parametersPlotPath(f.plot), "Parameters", plots.MetricTypeParameter, points))
		}
	}
}

// parametersPlotPath returns the path of the parameters plot: the loss plot path with a "_parameters" suffix.
func parametersPlotPath(plotPath string) string {
	ext := filepath.Ext(plotPath)
	return strings.TrimSuffix(plotPath, ext) + "_parameters" + ext
}
