package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
	"github.com/lucasilverentand/canaveral/internal/errs"
	"github.com/lucasilverentand/canaveral/internal/workspace"
)

// loaded bundles the workspace model every run/release command builds on:
// the detected workspace, every discovered package, and the package
// dependency graph derived from them.
type loaded struct {
	Workspace *workspace.Workspace
	Packages  []*discovery.DiscoveredPackage
	Graph     *depgraph.Graph
}

// loadWorkspace runs the Detector → Discovery → Graph pipeline against
// root.
func loadWorkspace(root string) (*loaded, error) {
	ws, err := workspace.Detect(root)
	if err != nil {
		return nil, errors.Wrap(err, "workspace detection failed")
	}
	if ws == nil {
		return nil, &errs.WorkspaceError{Detail: "no recognized workspace marker found at " + root}
	}

	packages, _, err := discovery.Discover(ws)
	if err != nil {
		var perPackage *multierror.Error
		if !errors.As(err, &perPackage) {
			return nil, errors.Wrap(err, "package discovery failed")
		}
		hclog.L().Named("discovery").Debug("omitted packages that failed to parse", "error", perPackage)
	}

	graph, err := depgraph.Build(packages)
	if err != nil {
		return nil, errors.Wrap(err, "dependency graph construction failed")
	}

	return &loaded{Workspace: ws, Packages: packages, Graph: graph}, nil
}
