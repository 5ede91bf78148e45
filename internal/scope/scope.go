// Package scope resolves a run's --filter selectors (pnpm-style package
// selectors, generalized here to also filter task names) into the concrete
// set of packages and tasks a run or release applies to.
package scope

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	mapset "github.com/deckarep/golang-set"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

// Selector is one parsed --filter argument: a package name/path match, plus
// which direction (if any) to expand along the dependency graph.
type Selector struct {
	IncludeDependencies bool
	IncludeDependents   bool
	ExcludeSelf         bool
	Exclude             bool
	// MatchDependencies is set when Diff was written as "...[ref]" rather
	// than "[ref]": it scopes the diff to packages that are dependents of
	// whatever changed since ref, rather than matching changed packages
	// directly by name.
	MatchDependencies bool
	ParentDir         string
	NamePattern       string
	Diff              string
	Raw               string
}

// IsValid reports whether the selector matched something parseable (a
// diff ref, a directory, or a name pattern).
func (s Selector) IsValid() bool {
	return s.Diff != "" || s.ParentDir != "" || s.NamePattern != ""
}

var selectorRegex = regexp.MustCompile(`^([^.](?:[^{}[\]]*[^{}[\].])?)?(\{[^}]+\})?((?:\.{3})?\[[^\]]+\])?$`)

// ParseSelector parses one --filter argument using the pnpm-compatible
// grammar: an optional leading "!" excludes instead of includes; a
// trailing "..." (optionally preceded by "^") includes dependencies; a
// leading "..." (optionally followed by "^") includes dependents; the
// remainder is a bare name pattern, a "{dir}" path match, or a
// "[...ref]"/"[ref]" diff match. prefix is joined onto any "{dir}" match,
// so a selector can be written relative to the invocation directory.
func ParseSelector(raw string, prefix string) (Selector, error) {
	if raw == "" {
		return Selector{}, errEmptySelector
	}

	selector := raw
	exclude := false
	if selector[0] == '!' {
		selector = selector[1:]
		exclude = true
	}

	excludeSelf := false
	includeDependencies := strings.HasSuffix(selector, "...")
	if includeDependencies {
		selector = selector[:len(selector)-3]
		if strings.HasSuffix(selector, "^") {
			excludeSelf = true
			selector = selector[:len(selector)-1]
		}
	}

	includeDependents := strings.HasPrefix(selector, "...")
	if includeDependents {
		selector = selector[3:]
		if strings.HasPrefix(selector, "^") {
			excludeSelf = true
			selector = selector[1:]
		}
	}

	matches := selectorRegex.FindAllStringSubmatch(selector, -1)

	if len(matches) == 0 {
		if isSelectorByLocation(selector) {
			return Selector{
				Exclude:             exclude,
				IncludeDependencies: includeDependencies,
				IncludeDependents:   includeDependents,
				ParentDir:           filepath.Join(prefix, selector),
				Raw:                 raw,
			}, nil
		}
		return Selector{
			Exclude:             exclude,
			ExcludeSelf:         excludeSelf,
			IncludeDependencies: includeDependencies,
			IncludeDependents:   includeDependents,
			NamePattern:         selector,
			Raw:                 raw,
		}, nil
	}

	var diff, parentDir, namePattern string
	matchDependencies := false
	if len(matches[0]) > 0 {
		if len(matches[0][1]) > 0 {
			namePattern = matches[0][1]
		}
		if len(matches[0][2]) > 0 {
			dir := matches[0][2]
			parentDir = filepath.Join(prefix, dir[1:len(dir)-1])
		}
		if len(matches[0][3]) > 0 {
			diff = matches[0][3]
			if strings.HasPrefix(diff, "...") {
				if parentDir == "" && namePattern == "" {
					return Selector{}, errCantMatchDependencies
				}
				matchDependencies = true
				diff = diff[3:]
			}
			diff = diff[1 : len(diff)-1]
		}
	}

	return Selector{
		Diff:                diff,
		Exclude:             exclude,
		ExcludeSelf:         excludeSelf,
		IncludeDependencies: includeDependencies,
		IncludeDependents:   includeDependents,
		MatchDependencies:   matchDependencies,
		NamePattern:         namePattern,
		ParentDir:           parentDir,
		Raw:                 raw,
	}, nil
}

var errCantMatchDependencies = selectorError("cannot use match dependencies without specifying either a directory or package")

func isSelectorByLocation(selector string) bool {
	if len(selector) == 0 || selector[0] != '.' {
		return false
	}
	if len(selector) == 1 || selector[1] == '/' || selector[1] == '\\' {
		return true
	}
	if len(selector) < 2 || selector[1] != '.' {
		return false
	}
	return len(selector) == 2 || selector[2] == '/' || selector[2] == '\\'
}

type selectorError string

func (e selectorError) Error() string { return string(e) }

const errEmptySelector = selectorError("empty filter selector")

// DiffResolver resolves a selector's diff ref (e.g. "main", "HEAD~5") to
// the set of package names it considers changed. Callers typically back
// this with internal/change.Detector.
type DiffResolver func(ref string) (mapset.Set, error)

// matchesDirect reports whether pkg is matched by s's name/dir component,
// ignoring dependency/dependent expansion.
func matchesDirect(s Selector, pkg *discovery.DiscoveredPackage) bool {
	if s.NamePattern != "" {
		g, err := glob.Compile(s.NamePattern)
		if err != nil {
			return s.NamePattern == pkg.Name
		}
		return g.Match(pkg.Name)
	}
	if s.ParentDir != "" {
		return pkg.Path == s.ParentDir || strings.HasPrefix(pkg.Path+"/", s.ParentDir+"/")
	}
	return false
}

// Resolve expands selectors against packages and graph into the final set
// of package names a run applies to. Include selectors are unioned;
// exclude selectors (leading "!") are subtracted from the accumulated
// result after every include selector has been resolved, matching pnpm's
// filter semantics where exclusions always win regardless of order.
func Resolve(selectors []Selector, packages []*discovery.DiscoveredPackage, graph *depgraph.Graph, diff DiffResolver) (mapset.Set, error) {
	included := mapset.NewSet()
	excluded := mapset.NewSet()

	for _, s := range selectors {
		matched := mapset.NewSet()

		if s.Diff != "" {
			if diff == nil {
				return nil, errSelectorNeedsDiffResolver
			}
			changed, err := diff(s.Diff)
			if err != nil {
				return nil, err
			}
			if s.MatchDependencies {
				affected := mapset.NewSet()
				for _, name := range changed.ToSlice() {
					if graph != nil {
						affected = affected.Union(graph.GetAffected(name.(string)))
					}
				}
				for _, pkg := range packages {
					if matchesDirect(s, pkg) && affected.Contains(pkg.Name) {
						matched.Add(pkg.Name)
					}
				}
			} else {
				matched = matched.Union(changed)
			}
		} else {
			for _, pkg := range packages {
				if matchesDirect(s, pkg) {
					matched.Add(pkg.Name)
				}
			}
		}

		expanded := mapset.NewSet()
		for _, name := range matched.ToSlice() {
			pkgName := name.(string)
			if !s.ExcludeSelf {
				expanded.Add(pkgName)
			}
			if s.IncludeDependencies && graph != nil {
				expanded = expanded.Union(graph.GetAllDependencies(pkgName))
			}
			if s.IncludeDependents && graph != nil {
				expanded = expanded.Union(graph.GetAffected(pkgName))
			}
		}

		if s.Exclude {
			excluded = excluded.Union(expanded)
		} else {
			included = included.Union(expanded)
		}
	}

	if included.Cardinality() == 0 && len(selectors) > 0 {
		allExcluding := true
		for _, s := range selectors {
			if !s.Exclude {
				allExcluding = false
				break
			}
		}
		if allExcluding {
			for _, pkg := range packages {
				included.Add(pkg.Name)
			}
		}
	}

	return included.Difference(excluded), nil
}

const errSelectorNeedsDiffResolver = selectorError("selector uses a diff ref but no DiffResolver was provided")

// TaskFilter is one task-name filter: a glob pattern over task names,
// optionally negated.
type TaskFilter struct {
	Pattern string
	Exclude bool
}

// ParseTaskFilter parses a single task-name filter string. A leading "!"
// excludes matching task names instead of including them.
func ParseTaskFilter(raw string) TaskFilter {
	if strings.HasPrefix(raw, "!") {
		return TaskFilter{Pattern: raw[1:], Exclude: true}
	}
	return TaskFilter{Pattern: raw}
}

// ResolveTasks expands taskFilters against the full set of known task
// names (as read from the pipeline file). With no filters, every task is
// included.
func ResolveTasks(filters []TaskFilter, allTaskNames []string) ([]string, error) {
	if len(filters) == 0 {
		return allTaskNames, nil
	}

	included := mapset.NewSet()
	excluded := mapset.NewSet()
	hasInclude := false
	for _, f := range filters {
		g, err := glob.Compile(f.Pattern)
		if err != nil {
			return nil, err
		}
		for _, name := range allTaskNames {
			if g.Match(name) {
				if f.Exclude {
					excluded.Add(name)
				} else {
					included.Add(name)
					hasInclude = true
				}
			}
		}
	}

	if !hasInclude {
		for _, name := range allTaskNames {
			included.Add(name)
		}
	}

	result := included.Difference(excluded)
	out := make([]string, 0, result.Cardinality())
	for _, name := range allTaskNames {
		if result.Contains(name) {
			out = append(out, name)
		}
	}
	return out, nil
}
