package version

import (
	"sort"

	"github.com/Masterminds/semver"
	"github.com/hashicorp/go-hclog"

	"github.com/lucasilverentand/canaveral/internal/change"
	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

// Bump is a single package's calculated version change.
type Bump struct {
	Package        string
	CurrentVersion string
	NewVersion     string
	ReleaseType    ReleaseType
	Reason         string
}

// Strategy calculates version bumps for a set of changed packages according
// to a Mode.
type Strategy struct {
	Mode          Mode
	Groups        map[string][]string
	BumpDependents bool
	logger        hclog.Logger
}

// NewStrategy builds a Strategy for the given mode with sensible defaults
// (no groups, dependents not auto-bumped).
func NewStrategy(mode Mode) *Strategy {
	return &Strategy{
		Mode:   mode,
		Groups: map[string][]string{},
		logger: hclog.L().Named("version"),
	}
}

// WithGroups attaches named package groups, used by Grouped mode.
func (s *Strategy) WithGroups(groups map[string][]string) *Strategy {
	s.Groups = groups
	return s
}

// WithBumpDependents toggles whether packages whose dependency was bumped
// are themselves given an automatic patch bump.
func (s *Strategy) WithBumpDependents(bump bool) *Strategy {
	s.BumpDependents = bump
	return s
}

// CalculateBumps dispatches to the mode-specific bump calculation.
func (s *Strategy) CalculateBumps(packages []*discovery.DiscoveredPackage, changes []*change.Package, releaseType ReleaseType, graph *depgraph.Graph) ([]*Bump, error) {
	s.logger.Debug("calculating version bumps", "mode", s.Mode.String(), "changes", len(changes))

	var bumps []*Bump
	var err error
	switch s.Mode {
	case Independent:
		bumps, err = s.calculateIndependentBumps(packages, changes, releaseType, graph)
	case Fixed:
		bumps, err = s.calculateFixedBumps(packages, changes, releaseType)
	case Grouped:
		bumps, err = s.calculateGroupedBumps(packages, changes, releaseType, graph)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("version bumps calculated", "count", len(bumps))
	return bumps, nil
}

func packageByName(packages []*discovery.DiscoveredPackage, name string) *discovery.DiscoveredPackage {
	for _, pkg := range packages {
		if pkg.Name == name {
			return pkg
		}
	}
	return nil
}

func changedNameSet(changes []*change.Package) map[string]bool {
	out := make(map[string]bool, len(changes))
	for _, c := range changes {
		out[c.Name] = true
	}
	return out
}

func (s *Strategy) calculateIndependentBumps(packages []*discovery.DiscoveredPackage, changes []*change.Package, releaseType ReleaseType, graph *depgraph.Graph) ([]*Bump, error) {
	var bumps []*Bump
	changedNames := changedNameSet(changes)

	for _, c := range changes {
		pkg := packageByName(packages, c.Name)
		if pkg == nil {
			continue
		}
		newVersion, err := BumpVersion(pkg.Version, releaseType)
		if err != nil {
			return nil, err
		}
		bumps = append(bumps, &Bump{
			Package:        pkg.Name,
			CurrentVersion: pkg.Version,
			NewVersion:     newVersion,
			ReleaseType:    releaseType,
			Reason:         c.Reason.String(),
		})
	}

	if s.BumpDependents && graph != nil {
		for _, pkg := range packages {
			if changedNames[pkg.Name] {
				continue
			}
			deps := graph.GetDependencies(pkg.Name)
			bumped := false
			for _, name := range deps.ToSlice() {
				if changedNames[name.(string)] {
					bumped = true
					break
				}
			}
			if !bumped {
				continue
			}
			newVersion, err := BumpVersion(pkg.Version, Patch)
			if err != nil {
				return nil, err
			}
			bumps = append(bumps, &Bump{
				Package:        pkg.Name,
				CurrentVersion: pkg.Version,
				NewVersion:     newVersion,
				ReleaseType:    Patch,
				Reason:         "dependency updated",
			})
		}
	}

	return bumps, nil
}

func maxVersion(packages []*discovery.DiscoveredPackage, filter func(*discovery.DiscoveredPackage) bool) string {
	var best *semver.Version
	for _, pkg := range packages {
		if filter != nil && !filter(pkg) {
			continue
		}
		v, err := semver.NewVersion(pkg.Version)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "0.0.0"
	}
	return best.String()
}

func (s *Strategy) calculateFixedBumps(packages []*discovery.DiscoveredPackage, changes []*change.Package, releaseType ReleaseType) ([]*Bump, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	changedNames := changedNameSet(changes)
	current := maxVersion(packages, nil)
	newVersion, err := BumpVersion(current, releaseType)
	if err != nil {
		return nil, err
	}

	bumps := make([]*Bump, 0, len(packages))
	for _, pkg := range packages {
		reason := "fixed versioning"
		if changedNames[pkg.Name] {
			reason = "direct changes"
		}
		bumps = append(bumps, &Bump{
			Package:        pkg.Name,
			CurrentVersion: pkg.Version,
			NewVersion:     newVersion,
			ReleaseType:    releaseType,
			Reason:         reason,
		})
	}
	return bumps, nil
}

func (s *Strategy) calculateGroupedBumps(packages []*discovery.DiscoveredPackage, changes []*change.Package, releaseType ReleaseType, graph *depgraph.Graph) ([]*Bump, error) {
	var bumps []*Bump
	changedNames := changedNameSet(changes)

	groupNames := make([]string, 0, len(s.Groups))
	for name := range s.Groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	inAnyGroup := make(map[string]bool)
	for _, members := range s.Groups {
		for _, m := range members {
			inAnyGroup[m] = true
		}
	}

	for _, groupName := range groupNames {
		members := s.Groups[groupName]
		hasChanges := false
		for _, m := range members {
			if changedNames[m] {
				hasChanges = true
				break
			}
		}
		if !hasChanges {
			continue
		}

		current := maxVersion(packages, func(pkg *discovery.DiscoveredPackage) bool {
			for _, m := range members {
				if m == pkg.Name {
					return true
				}
			}
			return false
		})
		newVersion, err := BumpVersion(current, releaseType)
		if err != nil {
			return nil, err
		}

		for _, member := range members {
			pkg := packageByName(packages, member)
			if pkg == nil {
				continue
			}
			reason := "group '" + groupName + "' updated"
			if changedNames[pkg.Name] {
				reason = "direct changes"
			}
			bumps = append(bumps, &Bump{
				Package:        pkg.Name,
				CurrentVersion: pkg.Version,
				NewVersion:     newVersion,
				ReleaseType:    releaseType,
				Reason:         reason,
			})
		}
	}

	for _, c := range changes {
		if inAnyGroup[c.Name] {
			continue
		}
		pkg := packageByName(packages, c.Name)
		if pkg == nil {
			continue
		}
		newVersion, err := BumpVersion(pkg.Version, releaseType)
		if err != nil {
			return nil, err
		}
		bumps = append(bumps, &Bump{
			Package:        pkg.Name,
			CurrentVersion: pkg.Version,
			NewVersion:     newVersion,
			ReleaseType:    releaseType,
			Reason:         c.Reason.String(),
		})
	}

	if s.BumpDependents && graph != nil {
		bumped := make(map[string]bool, len(bumps))
		for _, b := range bumps {
			bumped[b.Package] = true
		}
		for _, pkg := range packages {
			if bumped[pkg.Name] || inAnyGroup[pkg.Name] {
				continue
			}
			deps := graph.GetDependencies(pkg.Name)
			hasBumpedDep := false
			for _, name := range deps.ToSlice() {
				if bumped[name.(string)] {
					hasBumpedDep = true
					break
				}
			}
			if !hasBumpedDep {
				continue
			}
			newVersion, err := BumpVersion(pkg.Version, Patch)
			if err != nil {
				return nil, err
			}
			bumps = append(bumps, &Bump{
				Package:        pkg.Name,
				CurrentVersion: pkg.Version,
				NewVersion:     newVersion,
				ReleaseType:    Patch,
				Reason:         "dependency updated",
			})
		}
	}

	return bumps, nil
}

// TagName formats the release tag for a package version under this
// strategy's mode: "v<version>" for Fixed, "<package>@<version>" for
// Independent and Grouped.
func (s *Strategy) TagName(pkg, ver string) string {
	if s.Mode == Fixed {
		return "v" + ver
	}
	return pkg + "@" + ver
}
