package cmd

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasilverentand/canaveral/internal/change"
	"github.com/lucasilverentand/canaveral/internal/config"
	"github.com/lucasilverentand/canaveral/internal/hooks"
	"github.com/lucasilverentand/canaveral/internal/version"
)

type releaseOpts struct {
	releaseType   string
	from          string
	to            string
	sinceTag      string
	tagMatch      string
	noTransitive  bool
	dryRun        bool
}

func addReleaseFlags(o *releaseOpts, flags *pflag.FlagSet) {
	flags.StringVar(&o.releaseType, "type", "patch", "Release type: major, minor, patch, prerelease")
	flags.StringVar(&o.from, "from", "", "Git ref to diff from (defaults to every tracked file when empty)")
	flags.StringVar(&o.to, "to", "HEAD", "Git ref to diff to")
	flags.StringVar(&o.sinceTag, "since-tag", "", "Derive changed files since the most recent tag matching this pattern instead of --from/--to")
	flags.StringVar(&o.tagMatch, "tag-match", "", "Glob pattern passed to `git describe --match` when using --since-tag")
	flags.BoolVar(&o.noTransitive, "no-transitive", false, "Only bump packages with direct changes, skip dependency-change propagation")
	flags.BoolVar(&o.dryRun, "dry-run", false, "Compute bumps and run hooks without writing versions or creating a tag")
}

func releaseCmd(h *Helper, termUI cli.Ui) *cobra.Command {
	opts := &releaseOpts{}
	cmd := &cobra.Command{
		Use:                   "release [<flags>]",
		Short:                 "Detect changed packages and compute their next version.",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRelease(h, termUI, opts)
		},
	}
	addReleaseFlags(opts, cmd.Flags())
	return cmd
}

func parseReleaseType(s string) (version.ReleaseType, error) {
	switch s {
	case "major":
		return version.Major, nil
	case "minor":
		return version.Minor, nil
	case "patch":
		return version.Patch, nil
	case "prerelease":
		return version.Prerelease, nil
	default:
		return 0, errors.Errorf("unknown release type %q (want major, minor, patch, or prerelease)", s)
	}
}

func executeRelease(h *Helper, termUI cli.Ui, opts *releaseOpts) error {
	logger := h.Logger.Named("release")
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

	releaseType, err := parseReleaseType(opts.releaseType)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	detector := change.NewDetector(root).WithTransitive(!opts.noTransitive)

	var changed []*change.Package
	if opts.sinceTag != "" {
		changed, err = detector.DetectChangesSinceTag(ws.Packages, opts.tagMatch, ws.Graph)
	} else {
		var files []string
		files, err = detector.GetChangedFilesGit(opts.from, opts.to)
		if err == nil {
			changed, err = detector.DetectChanges(ws.Packages, files, ws.Graph)
		}
	}
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	if len(changed) == 0 {
		termUI.Output("no changed packages detected; nothing to release")
		return nil
	}

	repoCfg, err := config.ReadRepoConfigFile(config.GetRepoConfigPath(root), nil)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	strategy := version.NewStrategy(repoCfg.VersioningMode()).
		WithGroups(repoCfg.Groups()).
		WithBumpDependents(true)

	bumps, err := strategy.CalculateBumps(ws.Packages, changed, releaseType, ws.Graph)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	hookRunner, err := LoadHooks(root)
	if err != nil {
		logFatal(logger, termUI, err)
		return err
	}

	for _, b := range bumps {
		tag := strategy.TagName(b.Package, b.NewVersion)
		ctx := hooks.Context{
			Version:         b.NewVersion,
			PreviousVersion: b.CurrentVersion,
			Package:         b.Package,
			ReleaseType:     b.ReleaseType.String(),
			Tag:             tag,
			DryRun:          opts.dryRun,
		}

		if err := runHookStage(hookRunner, hooks.PreVersion, ctx, logger, termUI); err != nil {
			return err
		}

		termUI.Output(fmt.Sprintf("%s: %s -> %s (%s)", b.Package, b.CurrentVersion, b.NewVersion, b.Reason))

		if err := runHookStage(hookRunner, hooks.PostVersion, ctx, logger, termUI); err != nil {
			return err
		}
	}

	return nil
}

func runHookStage(runner *hooks.Runner, stage hooks.Stage, ctx hooks.Context, logger hclog.Logger, termUI cli.Ui) error {
	if !runner.HasHooks(stage) {
		return nil
	}
	if _, err := runner.Run(stage, ctx); err != nil {
		logFatal(logger, termUI, err)
		return err
	}
	return nil
}
