// Package cmd holds the cobra command tree for the canaveral CLI: `run`,
// `release`, `cache prune|status`, and `init`, built as a cobra.Command
// driven by a mitchellh/cli.ColoredUi for output.
package cmd

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/fatih/color"
	"github.com/google/chrometracing"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasilverentand/canaveral/internal/cmdutil"
	"github.com/lucasilverentand/canaveral/internal/report"
	"github.com/lucasilverentand/canaveral/internal/ui"
)

// Helper is the shared command scaffolding (logger, root resolution,
// profiling-file cleanup) every subcommand is built with.
type Helper = cmdutil.Helper

// rootOpts holds the profiling flags attached to the root command
// (--heap, --cpuprofile, --trace).
type rootOpts struct {
	heapFile  string
	cpuFile   string
	traceFile string
}

func (o *rootOpts) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.heapFile, "heap", "", "Write a pprof heap profile to this file")
	flags.StringVar(&o.cpuFile, "cpuprofile", "", "Write a pprof CPU profile to this file")
	flags.StringVar(&o.traceFile, "trace", "", "Write a Chrome-trace-format profile to this file")
}

func (o *rootOpts) apply(h *Helper) error {
	if o.cpuFile != "" {
		f, err := os.Create(o.cpuFile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		h.RegisterCleanup(closerFunc(func() error {
			pprof.StopCPUProfile()
			return f.Close()
		}))
	}
	if o.heapFile != "" {
		f, err := os.Create(o.heapFile)
		if err != nil {
			return err
		}
		h.RegisterCleanup(closerFunc(func() error {
			if err := pprof.WriteHeapProfile(f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		}))
	}
	if o.traceFile != "" {
		stop := chrometracing.Start(o.traceFile)
		h.RegisterCleanup(closerFunc(func() error {
			stop()
			return nil
		}))
	}
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewRootCommand builds the top-level `canaveral` cobra command with every
// subcommand attached, ready for Execute().
func NewRootCommand(version string) *cobra.Command {
	h := cmdutil.NewHelper(version)
	ro := &rootOpts{}
	termUI := newColoredUi()

	root := &cobra.Command{
		Use:           "canaveral",
		Short:         "Polyglot monorepo build, release, and cache orchestrator.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			h.Init()
			return ro.apply(h)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			h.Cleanup()
		},
	}
	h.AddFlags(root.PersistentFlags())
	ro.addFlags(root.PersistentFlags())

	root.AddCommand(runCmd(h, termUI))
	root.AddCommand(releaseCmd(h, termUI))
	root.AddCommand(cacheCmd(h, termUI))
	root.AddCommand(initCmd(h, termUI))
	return root
}

func newColoredUi() cli.Ui {
	return &cli.ColoredUi{
		ErrorColor: cli.UiColorRed,
		WarnColor:  cli.UiColorYellow,
		Ui: &cli.BasicUi{
			Reader:      os.Stdin,
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
		},
	}
}

// logFatal prints err through both the named logger (for --verbosity
// consumers and log aggregation) and the colored Ui error banner.
func logFatal(logger hclog.Logger, termUI cli.Ui, err error) {
	logger.Error("error", "err", err)
	termUI.Error(fmt.Sprintf("%s%s", ui.ErrorPrefix(), color.RedString(" %v", err)))
}

// newReporter builds the text or JSON reporter for a run/release
// invocation, per the --json flag.
func newReporter(jsonOutput bool) report.Reporter {
	if jsonOutput {
		return report.NewJSONReporter(os.Stdout)
	}
	return report.NewTextReporter(os.Stdout)
}
