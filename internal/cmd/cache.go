package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mitchellh/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasilverentand/canaveral/internal/config"
	"github.com/lucasilverentand/canaveral/internal/taskcache"
)

func cacheCmd(h *Helper, termUI cli.Ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or maintain the task cache.",
	}
	cmd.AddCommand(cachePruneCmd(h, termUI))
	cmd.AddCommand(cacheStatusCmd(h, termUI))
	return cmd
}

type cachePruneOpts struct {
	maxAge time.Duration
}

func cachePruneCmd(h *Helper, termUI cli.Ui) *cobra.Command {
	opts := &cachePruneOpts{}
	cmd := &cobra.Command{
		Use:                   "prune [<flags>]",
		Short:                 "Remove cache entries older than --max-age.",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeCachePrune(h, termUI, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.maxAge, "max-age", 7*24*time.Hour, "Remove entries older than this duration (e.g. 168h)")
	return cmd
}

func executeCachePrune(h *Helper, termUI cli.Ui, opts *cachePruneOpts) error {
	logger := h.Logger.Named("cache")
	root, err := h.ResolveRoot(".")
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	cache, err := openCache(root)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " pruning cache entries..."
	s.Start()
	stats, err := cache.Prune(opts.maxAge)
	s.Stop()
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	termUI.Output(fmt.Sprintf("pruned %d of %d entries (%d kept)", stats.Removed, stats.Total, stats.Kept))
	return nil
}

func cacheStatusCmd(h *Helper, termUI cli.Ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "status",
		Short:                 "Report the cache's entry count and on-disk size.",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeCacheStatus(h, termUI)
		},
	}
	return cmd
}

func executeCacheStatus(h *Helper, termUI cli.Ui) error {
	logger := h.Logger.Named("cache")
	root, err := h.ResolveRoot(".")
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	cache, err := openCache(root)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	stats, err := cache.Status()
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	termUI.Output(fmt.Sprintf("%d entries, %s total", stats.Entries, stats.FormattedSize()))
	return nil
}

func openCache(root string) (*taskcache.Cache, error) {
	repoCfg, err := config.ReadRepoConfigFile(config.GetRepoConfigPath(root), pflag.NewFlagSet("cache", pflag.ContinueOnError))
	if err != nil {
		return nil, err
	}
	dir := taskcache.DefaultDir(root)
	if d := repoCfg.CacheDir(); d != "" {
		if !filepath.IsAbs(d) {
			d = filepath.Join(root, d)
		}
		dir = d
	}
	return taskcache.New(dir)
}
