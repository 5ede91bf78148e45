package version

import "fmt"

// ReleaseType is the kind of bump requested for a package.
type ReleaseType int

const (
	// Major is a breaking-change release.
	Major ReleaseType = iota
	// Minor is a backward-compatible feature release.
	Minor
	// Patch is a backward-compatible fix release.
	Patch
	// Prerelease appends/increments an alpha.N-style prerelease tag.
	Prerelease
	// Custom performs no automatic version arithmetic; the caller supplies
	// the new version directly.
	Custom
)

func (r ReleaseType) String() string {
	switch r {
	case Major:
		return "major"
	case Minor:
		return "minor"
	case Patch:
		return "patch"
	case Prerelease:
		return "prerelease"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("ReleaseType(%d)", int(r))
}

// Mode controls how versions are shared (or not) across a workspace.
type Mode int

const (
	// Independent gives each package its own version.
	Independent Mode = iota
	// Fixed gives every package in the workspace the same version.
	Fixed
	// Grouped shares a version within named groups of packages, and falls
	// back to Independent for anything outside a group.
	Grouped
)

func (m Mode) String() string {
	switch m {
	case Independent:
		return "independent"
	case Fixed:
		return "fixed"
	case Grouped:
		return "grouped"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}
