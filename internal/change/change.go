// Package change maps a set of changed files to the workspace packages they
// touch, then marks every package with a direct dependency on a directly
// changed one as DependencyChanged (one level; dependents of those are not
// followed further).
package change

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

// Reason explains why a package is included in a change set.
type Reason int

const (
	// DirectChanges means one or more of the package's own files changed.
	DirectChanges Reason = iota
	// DependencyChanged means a package this one depends on changed.
	DependencyChanged
	// Forced means the package was included regardless of file changes
	// (e.g. a Fixed versioning group forces every member to bump together).
	Forced
	// ConventionalCommit means a conventional-commit message on this
	// package's path requires a version bump even absent other evidence.
	ConventionalCommit
)

// String renders reason the way CLI output and changelog entries do.
func (r Reason) String() string {
	switch r {
	case DirectChanges:
		return "direct changes"
	case DependencyChanged:
		return "dependency changed"
	case Forced:
		return "forced"
	case ConventionalCommit:
		return "conventional commit"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Package is a workspace package considered changed by a single
// change-detection run.
type Package struct {
	Name          string
	Path          string
	ChangedFiles  []string
	Reason        Reason
	DependencyRef string // set when Reason == DependencyChanged
	Commits       []string
}

// Detector maps changed files to packages and propagates the change set
// along the dependency graph.
type Detector struct {
	Root              string
	IncludeTransitive bool
	ChangeFilter      *Filter
}

// NewDetector creates a Detector with transitive propagation enabled, which
// matches the default most release workflows want, and the default change
// filter (docs/metadata-only files never trigger a release on their own).
func NewDetector(root string) *Detector {
	return &Detector{Root: root, IncludeTransitive: true, ChangeFilter: DefaultFilter()}
}

// WithTransitive returns a copy of d with transitive propagation toggled.
func (d Detector) WithTransitive(include bool) *Detector {
	d.IncludeTransitive = include
	return &d
}

// WithFilter returns a copy of d using filter instead of the default change
// filter. A nil filter disables filtering entirely (every changed file is
// mapped).
func (d Detector) WithFilter(filter *Filter) *Detector {
	d.ChangeFilter = filter
	return &d
}

// DetectChanges maps changedFiles onto packages and, when IncludeTransitive
// is set, propagates the result along graph in the dependency direction: a
// package is marked changed if any package it depends on changed, not the
// other way around. Propagating toward dependents instead would misattribute
// upstream churn to downstream consumers without ever flagging a package
// whose own dependency moved.
func (d *Detector) DetectChanges(packages []*discovery.DiscoveredPackage, changedFiles []string, graph *depgraph.Graph) ([]*Package, error) {
	filtered := changedFiles
	if d.ChangeFilter != nil {
		filtered = make([]string, 0, len(changedFiles))
		for _, f := range changedFiles {
			if d.ChangeFilter.Matches(f) {
				filtered = append(filtered, f)
			}
		}
	}

	fileToPackage := d.mapFilesToPackages(packages, filtered)

	byName := make(map[string]*discovery.DiscoveredPackage, len(packages))
	for _, pkg := range packages {
		byName[pkg.Name] = pkg
	}

	changed := make(map[string]*Package)
	for file, pkgName := range fileToPackage {
		pkg := byName[pkgName]
		entry, ok := changed[pkgName]
		if !ok {
			entry = &Package{Name: pkgName, Path: pkg.Path, Reason: DirectChanges}
			changed[pkgName] = entry
		}
		entry.ChangedFiles = append(entry.ChangedFiles, file)
	}

	if d.IncludeTransitive && graph != nil {
		directlyChanged := make(map[string]bool, len(changed))
		for name := range changed {
			directlyChanged[name] = true
		}

		for _, pkg := range packages {
			if _, ok := changed[pkg.Name]; ok {
				continue
			}
			dependencies := graph.GetDependencies(pkg.Name)
			for dep := range directlyChanged {
				if dependencies.Contains(dep) {
					changed[pkg.Name] = &Package{
						Name:          pkg.Name,
						Path:          pkg.Path,
						Reason:        DependencyChanged,
						DependencyRef: dep,
					}
					break
				}
			}
		}
	}

	out := make([]*Package, 0, len(changed))
	for _, pkg := range changed {
		out = append(out, pkg)
	}
	return out, nil
}

func (d *Detector) mapFilesToPackages(packages []*discovery.DiscoveredPackage, changedFiles []string) map[string]string {
	mappings := make(map[string]string)
	for _, file := range changedFiles {
		relFile := file
		if filepath.IsAbs(file) {
			if rel, err := filepath.Rel(d.Root, file); err == nil {
				relFile = rel
			}
		}
		relFile = filepath.ToSlash(relFile)

		for _, pkg := range packages {
			pkgRel := pkg.Path
			if filepath.IsAbs(pkgRel) {
				if rel, err := filepath.Rel(d.Root, pkgRel); err == nil {
					pkgRel = rel
				}
			}
			pkgRel = filepath.ToSlash(pkgRel)
			if pkgRel == "." || strings.HasPrefix(relFile, pkgRel+"/") || relFile == pkgRel {
				mappings[relFile] = pkg.Name
				break
			}
		}
	}
	return mappings
}

// GetChangedFilesGit returns the files that differ between fromRef (or, if
// empty, every file git tracks) and toRef.
func (d *Detector) GetChangedFilesGit(fromRef, toRef string) ([]string, error) {
	var args []string
	if fromRef != "" {
		args = []string{"diff", "--name-only", fromRef, toRef}
	} else {
		args = []string{"ls-files"}
	}

	output, err := runGit(d.Root, args...)
	if err != nil {
		return nil, errors.Wrap(err, "running git")
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// DetectChangesSinceTag finds the latest tag matching tagPattern (or the
// latest tag of any name, or the whole history if there are no tags) and
// runs DetectChanges against everything that has changed since.
func (d *Detector) DetectChangesSinceTag(packages []*discovery.DiscoveredPackage, tagPattern string, graph *depgraph.Graph) ([]*Package, error) {
	args := []string{"describe", "--tags", "--abbrev=0"}
	if tagPattern != "" {
		args = append(args, "--match="+tagPattern)
	}

	var fromRef string
	if output, err := runGit(d.Root, args...); err == nil {
		fromRef = strings.TrimSpace(output)
	}

	changedFiles, err := d.GetChangedFilesGit(fromRef, "HEAD")
	if err != nil {
		return nil, err
	}
	return d.DetectChanges(packages, changedFiles, graph)
}

// runGit runs a git subcommand in dir, retrying with backoff on transient
// failures (e.g. packed-refs lock contention from a concurrent git process)
// rather than failing a change-detection run outright.
func runGit(dir string, args ...string) (string, error) {
	var output []byte
	operation := func() error {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.Output()
		if err != nil {
			return err
		}
		output = out
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return string(output), nil
}

// Filter decides whether a changed file should count toward triggering a
// release at all (docs-only changes are excluded by default).
type Filter struct {
	Include []glob.Glob
	Exclude []glob.Glob
}

// DefaultFilter mirrors the conventional "anything except docs/metadata"
// policy: everything is included except markdown, READMEs, changelogs,
// licenses, and .gitignore.
func DefaultFilter() *Filter {
	include := compileAll("**/*")
	exclude := compileAll("**/*.md", "**/README*", "**/CHANGELOG*", "**/LICENSE*", "**/.gitignore")
	return &Filter{Include: include, Exclude: exclude}
}

func compileAll(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		if g, err := glob.Compile(p, '/'); err == nil {
			out = append(out, g)
		}
	}
	return out
}

// Matches reports whether file should be treated as a change-triggering
// file under f's include/exclude patterns (excludes win).
func (f *Filter) Matches(file string) bool {
	file = filepath.ToSlash(file)
	for _, g := range f.Exclude {
		if g.Match(file) {
			return false
		}
	}
	for _, g := range f.Include {
		if g.Match(file) {
			return true
		}
	}
	return false
}
