// Package workspace detects the kind of polyglot monorepo rooted at a given
// directory by probing a fixed, deterministic sequence of marker files.
package workspace

import "fmt"

// Kind identifies the tool/ecosystem that owns a workspace's package layout.
type Kind int

const (
	// Cargo is a Rust Cargo workspace (or a single Cargo package).
	Cargo Kind = iota
	// Npm is a plain npm-workspaces repo.
	Npm
	// Yarn is an npm-workspaces repo with a yarn.lock present.
	Yarn
	// Pnpm is a pnpm-workspace.yaml-driven repo.
	Pnpm
	// Lerna is a lerna.json-driven repo.
	Lerna
	// Nx is an nx.json-driven repo.
	Nx
	// Turbo is a turbo.json + package.json workspaces repo.
	Turbo
	// Python is a pyproject.toml-driven repo (poetry or hatch).
	Python
	// Custom is a canaveral.yaml-declared workspace with no recognized
	// ecosystem manifest.
	Custom
)

const (
	cargoString  = "cargo"
	npmString    = "npm"
	yarnString   = "yarn"
	pnpmString   = "pnpm"
	lernaString  = "lerna"
	nxString     = "nx"
	turboString  = "turbo"
	pythonString = "python"
	customString = "custom"
)

// String renders the kind the way it appears in logs and CLI output.
func (k Kind) String() string {
	switch k {
	case Cargo:
		return cargoString
	case Npm:
		return npmString
	case Yarn:
		return yarnString
	case Pnpm:
		return pnpmString
	case Lerna:
		return lernaString
	case Nx:
		return nxString
	case Turbo:
		return turboString
	case Python:
		return pythonString
	case Custom:
		return customString
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ManifestName returns the canonical per-package manifest file name for
// this workspace kind.
func (k Kind) ManifestName() string {
	switch k {
	case Cargo:
		return "Cargo.toml"
	case Python:
		return "pyproject.toml"
	case Custom:
		return "canaveral.toml"
	default:
		return "package.json"
	}
}

// Workspace is a detected monorepo root: its kind, the root path, and the
// glob patterns under which member packages live.
type Workspace struct {
	Root             string
	Kind             Kind
	PackagePatterns  []string
	IsSinglePackage  bool
}

// New builds a Workspace with empty patterns; callers fill PackagePatterns
// from the detector that matched.
func New(root string, kind Kind) *Workspace {
	return &Workspace{Root: root, Kind: kind}
}
