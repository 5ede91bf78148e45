package cmd

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/mitchellh/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasilverentand/canaveral/internal/adapter"
	"github.com/lucasilverentand/canaveral/internal/config"
	"github.com/lucasilverentand/canaveral/internal/scheduler"
	"github.com/lucasilverentand/canaveral/internal/scope"
	"github.com/lucasilverentand/canaveral/internal/taskcache"
	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

type runOpts struct {
	filters         []string
	concurrency     int
	continueOnError bool
	dryRun          bool
	noCache         bool
	jsonOutput      bool
}

func addRunFlags(o *runOpts, flags *pflag.FlagSet) {
	flags.StringArrayVar(&o.filters, "filter", nil, "Restrict the run to packages matching a --filter selector (may be repeated)")
	flags.IntVar(&o.concurrency, "concurrency", 0, "Limit the number of concurrently executing tasks (0 = all logical CPUs)")
	flags.BoolVar(&o.continueOnError, "continue", false, "Continue executing later waves even after a task fails")
	flags.BoolVar(&o.dryRun, "dry-run", false, "List the execution plan without running anything")
	flags.BoolVar(&o.noCache, "no-cache", false, "Disable the task cache for this run")
	flags.BoolVar(&o.jsonOutput, "json", false, "Emit machine-readable JSON events instead of text")
}

func runCmd(h *Helper, termUI cli.Ui) *cobra.Command {
	opts := &runOpts{}
	cmd := &cobra.Command{
		Use:                   "run <task>... [<flags>]",
		Short:                 "Run one or more tasks across the workspace.",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(h, termUI, opts, args)
		},
	}
	addRunFlags(opts, cmd.Flags())
	return cmd
}

func executeRun(h *Helper, termUI cli.Ui, opts *runOpts, tasks []string) error {
	logger := h.Logger.Named("run")
	root, err := h.ResolveRoot(".")
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	ws, err := loadWorkspace(root)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	if err := ws.Graph.Validate(); err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	pipeline, err := LoadPipeline(root)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	if err := requireTasks(pipeline, tasks); err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	targetPackages, err := resolveTargetPackages(opts.filters, ws)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	dag, err := taskgraph.Build(ws.Graph, pipeline, tasks, targetPackages)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	if opts.dryRun {
		termUI.Output(dag.ExecutionPlan())
		return nil
	}

	repoCfg, err := config.ReadRepoConfigFile(config.GetRepoConfigPath(root), nil)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	schedOpts := scheduler.DefaultOptions(root)
	schedOpts.ContinueOnError = opts.continueOnError
	schedOpts.UseCache = !opts.noCache
	if opts.concurrency > 0 {
		schedOpts.Concurrency = opts.concurrency
	} else if c := repoCfg.Concurrency(); c > 0 {
		schedOpts.Concurrency = c
	}

	var cache *taskcache.Cache
	if schedOpts.UseCache {
		cacheDir := taskcache.DefaultDir(root)
		if d := repoCfg.CacheDir(); d != "" {
			if !filepath.IsAbs(d) {
				d = filepath.Join(root, d)
			}
			cacheDir = d
		}
		cache, err = taskcache.New(cacheDir)
		if err != nil {
			logFatal(logger, termUI, err)
			return err
		}
	}

	reporter := newReporter(opts.jsonOutput)
	adapters := adapter.NewRegistry()
	sched := scheduler.New(schedOpts, cache, reporter, adapters)

	results := sched.Execute(context.Background(), dag)
	for _, r := range results {
		if r.Status == scheduler.StatusFailed {
			return errors.Errorf("task %s failed", r.ID)
		}
	}
	return nil
}

func resolveTargetPackages(filters []string, l *loaded) ([]string, error) {
	if len(filters) == 0 {
		names := make([]string, 0, len(l.Packages))
		for _, p := range l.Packages {
			names = append(names, p.Name)
		}
		sort.Strings(names)
		return names, nil
	}

	selectors := make([]scope.Selector, 0, len(filters))
	for _, f := range filters {
		s, err := scope.ParseSelector(f, ".")
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, s)
	}

	resolved, err := scope.Resolve(selectors, l.Packages, l.Graph, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, resolved.Cardinality())
	for _, n := range resolved.ToSlice() {
		names = append(names, n.(string))
	}
	sort.Strings(names)
	return names, nil
}
