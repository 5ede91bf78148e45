// Package discovery expands a detected workspace's package patterns into
// concrete packages, parsing each one's manifest and then resolving which
// of its declared dependencies point at other packages in the same
// workspace.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/karrick/godirwalk"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/lucasilverentand/canaveral/internal/workspace"
)

// DiscoveredPackage is one workspace member as found on disk.
type DiscoveredPackage struct {
	Name                  string
	Version               string
	Path                  string
	ManifestPath          string
	PackageType           string
	Private               bool
	WorkspaceDependencies []string
}

// Stats summarizes a discovery pass for logging/diagnostics.
type Stats struct {
	PatternsExpanded int
	PackagesFound    int
	ParseErrors      int
}

// Discover walks ws.PackagePatterns relative to ws.Root, parses every
// manifest it finds, and resolves workspace-local dependencies in a second
// pass. Per-package parse failures are recorded in the returned error (as a
// *multierror.Error) but do not stop discovery of the rest of the workspace.
func Discover(ws *workspace.Workspace) ([]*DiscoveredPackage, *Stats, error) {
	stats := &Stats{}
	manifestName := ws.Kind.ManifestName()

	var manifestPaths []string
	for _, pattern := range ws.PackagePatterns {
		stats.PatternsExpanded++
		paths, err := expandPattern(ws.Root, pattern, manifestName)
		if err != nil {
			return nil, stats, errors.Wrapf(err, "expanding pattern %q", pattern)
		}
		manifestPaths = append(manifestPaths, paths...)
	}

	var merr *multierror.Error
	var packages []*DiscoveredPackage
	seen := make(map[string]bool)
	for _, manifestPath := range manifestPaths {
		if seen[manifestPath] {
			continue
		}
		seen[manifestPath] = true

		pkg, err := parseManifest(ws.Kind, manifestPath)
		if err != nil {
			stats.ParseErrors++
			merr = multierror.Append(merr, errors.Wrapf(err, "parsing %s", manifestPath))
			continue
		}
		if pkg == nil {
			continue
		}
		packages = append(packages, pkg)
	}

	allNames := make([]string, 0, len(packages))
	for _, pkg := range packages {
		allNames = append(allNames, pkg.Name)
	}

	for _, pkg := range packages {
		deps, err := findWorkspaceDeps(ws.Kind, pkg.ManifestPath, allNames)
		if err != nil {
			stats.ParseErrors++
			merr = multierror.Append(merr, errors.Wrapf(err, "resolving dependencies for %s", pkg.Name))
			continue
		}
		pkg.WorkspaceDependencies = deps
	}

	stats.PackagesFound = len(packages)

	sort.Slice(packages, func(i, j int) bool { return packages[i].Name < packages[j].Name })

	return packages, stats, merr.ErrorOrNil()
}

// expandPattern resolves one glob pattern to the set of manifest files it
// covers: "." means the root itself, a path to an existing manifest file is
// taken directly, and anything else is matched as a glob against
// directories under root, probing manifestName inside each match.
func expandPattern(root, pattern, manifestName string) ([]string, error) {
	if pattern == "." {
		manifest := filepath.Join(root, manifestName)
		if fileExists(manifest) {
			return []string{manifest}, nil
		}
		return nil, nil
	}

	full := filepath.Join(root, pattern)
	if fileExists(full) && filepath.Base(full) == manifestName {
		return []string{full}, nil
	}

	g, err := glob.Compile(filepath.ToSlash(pattern), '/')
	if err != nil {
		return nil, errors.Wrapf(err, "compiling glob %q", pattern)
	}

	var matches []string
	err = godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() || path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(rel, ".git") || strings.Contains(rel, "/.git/") {
				return godirwalk.SkipThis
			}
			if strings.Contains(rel, "node_modules") {
				return godirwalk.SkipThis
			}
			if g.Match(rel) {
				manifest := filepath.Join(path, manifestName)
				if fileExists(manifest) {
					matches = append(matches, manifest)
				}
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	return matches, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func parseManifest(kind workspace.Kind, manifestPath string) (*DiscoveredPackage, error) {
	switch kind {
	case workspace.Cargo:
		return parseCargoManifest(manifestPath)
	case workspace.Python:
		return parsePythonManifest(manifestPath)
	case workspace.Custom:
		return nil, nil
	default:
		return parseNpmManifest(manifestPath)
	}
}

type cargoPackageManifest struct {
	Package *struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Publish *bool  `toml:"publish"`
	} `toml:"package"`
}

func parseCargoManifest(manifestPath string) (*DiscoveredPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest cargoPackageManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	if manifest.Package == nil {
		return nil, nil
	}
	private := manifest.Package.Publish != nil && !*manifest.Package.Publish
	return &DiscoveredPackage{
		Name:         manifest.Package.Name,
		Version:      manifest.Package.Version,
		Path:         filepath.Dir(manifestPath),
		ManifestPath: manifestPath,
		PackageType:  "cargo",
		Private:      private,
	}, nil
}

type npmPackageManifest struct {
	Name    *string `json:"name"`
	Version *string `json:"version"`
	Private *bool   `json:"private"`
}

func parseNpmManifest(manifestPath string) (*DiscoveredPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest npmPackageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	if manifest.Name == nil || manifest.Version == nil {
		return nil, nil
	}
	private := manifest.Private != nil && *manifest.Private
	return &DiscoveredPackage{
		Name:         *manifest.Name,
		Version:      *manifest.Version,
		Path:         filepath.Dir(manifestPath),
		ManifestPath: manifestPath,
		PackageType:  "npm",
		Private:      private,
	}, nil
}

type pyPackageManifest struct {
	Project *struct {
		Name    string  `toml:"name"`
		Version *string `toml:"version"`
	} `toml:"project"`
}

func parsePythonManifest(manifestPath string) (*DiscoveredPackage, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest pyPackageManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	if manifest.Project == nil {
		return nil, nil
	}
	version := "0.0.0"
	if manifest.Project.Version != nil {
		version = *manifest.Project.Version
	}
	return &DiscoveredPackage{
		Name:         manifest.Project.Name,
		Version:      version,
		Path:         filepath.Dir(manifestPath),
		ManifestPath: manifestPath,
		PackageType:  "python",
		Private:      false,
	}, nil
}

func findWorkspaceDeps(kind workspace.Kind, manifestPath string, allNames []string) ([]string, error) {
	switch kind {
	case workspace.Cargo:
		return findCargoWorkspaceDeps(manifestPath, allNames)
	case workspace.Python:
		return findPythonWorkspaceDeps(manifestPath, allNames)
	case workspace.Custom:
		return nil, nil
	default:
		return findNpmWorkspaceDeps(manifestPath, allNames)
	}
}

func dedupSorted(names, allNames []string) []string {
	allowed := make(map[string]bool, len(allNames))
	for _, n := range allNames {
		allowed[n] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		if allowed[n] && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func findCargoWorkspaceDeps(manifestPath string, allNames []string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest struct {
		Dependencies      map[string]interface{} `toml:"dependencies"`
		DevDependencies   map[string]interface{} `toml:"dev-dependencies"`
		BuildDependencies map[string]interface{} `toml:"build-dependencies"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	var names []string
	for _, section := range []map[string]interface{}{manifest.Dependencies, manifest.DevDependencies, manifest.BuildDependencies} {
		for name := range section {
			names = append(names, name)
		}
	}
	return dedupSorted(names, allNames), nil
}

func findNpmWorkspaceDeps(manifestPath string, allNames []string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest struct {
		Dependencies     map[string]string `json:"dependencies"`
		DevDependencies  map[string]string `json:"devDependencies"`
		PeerDependencies map[string]string `json:"peerDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	var names []string
	for _, section := range []map[string]string{manifest.Dependencies, manifest.DevDependencies, manifest.PeerDependencies} {
		for name := range section {
			names = append(names, name)
		}
	}
	return dedupSorted(names, allNames), nil
}

var pyDepNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+`)

func findPythonWorkspaceDeps(manifestPath string, allNames []string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest struct {
		Project *struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	if manifest.Project == nil {
		return nil, nil
	}
	var names []string
	for _, dep := range manifest.Project.Dependencies {
		name := pyDepNameRe.FindString(dep)
		if name != "" {
			names = append(names, name)
		}
	}
	return dedupSorted(names, allNames), nil
}
