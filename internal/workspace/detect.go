package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Detect probes path for a fixed, ordered set of markers (Cargo.toml,
// pnpm-workspace.yaml, lerna.json, nx.json, turbo.json with package.json,
// package.json, pyproject.toml) and returns the first match. A nil Workspace and nil error
// both mean "no recognized workspace here"; callers may then treat path as
// a non-monorepo directory. Malformed manifests are treated as a miss for
// that probe and detection falls through to the next one rather than
// failing outright.
func Detect(path string) (*Workspace, error) {
	probes := []func(string) (*Workspace, error){
		detectCargo,
		detectPnpm,
		detectLerna,
		detectNx,
		detectTurbo,
		detectNpmYarn,
		detectPython,
	}
	for _, probe := range probes {
		ws, err := probe(path)
		if err != nil {
			return nil, err
		}
		if ws != nil {
			return ws, nil
		}
	}
	return nil, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

type cargoManifest struct {
	Workspace *cargoWorkspaceSection `toml:"workspace"`
	Package   map[string]interface{} `toml:"package"`
}

type cargoWorkspaceSection struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
}

func detectCargo(root string) (*Workspace, error) {
	manifest := filepath.Join(root, "Cargo.toml")
	if !exists(manifest) {
		return nil, nil
	}
	data, err := readFile(manifest)
	if err != nil {
		return nil, err
	}
	var cargo cargoManifest
	if err := toml.Unmarshal(data, &cargo); err != nil {
		// Malformed manifest: fall through rather than abort detection.
		return nil, nil
	}
	if cargo.Workspace != nil {
		ws := New(root, Cargo)
		ws.PackagePatterns = cargo.Workspace.Members
		return ws, nil
	}
	if cargo.Package != nil {
		ws := New(root, Cargo)
		ws.PackagePatterns = []string{"."}
		ws.IsSinglePackage = true
		return ws, nil
	}
	return nil, nil
}

func detectPnpm(root string) (*Workspace, error) {
	manifest := filepath.Join(root, "pnpm-workspace.yaml")
	if !exists(manifest) {
		return nil, nil
	}
	data, err := readFile(manifest)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil
	}
	ws := New(root, Pnpm)
	if len(cfg.Packages) > 0 {
		ws.PackagePatterns = cfg.Packages
	} else {
		ws.PackagePatterns = []string{"packages/*"}
	}
	return ws, nil
}

func detectLerna(root string) (*Workspace, error) {
	manifest := filepath.Join(root, "lerna.json")
	if !exists(manifest) {
		return nil, nil
	}
	data, err := readFile(manifest)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil
	}
	ws := New(root, Lerna)
	if len(cfg.Packages) > 0 {
		ws.PackagePatterns = cfg.Packages
	} else {
		ws.PackagePatterns = []string{"packages/*"}
	}
	return ws, nil
}

func detectNx(root string) (*Workspace, error) {
	manifest := filepath.Join(root, "nx.json")
	if !exists(manifest) {
		return nil, nil
	}
	ws := New(root, Nx)
	ws.PackagePatterns = []string{"packages/*", "apps/*", "libs/*"}
	return ws, nil
}

type packageJSONWorkspaces struct {
	Name       *string         `json:"name"`
	Workspaces json.RawMessage `json:"workspaces"`
}

func parseWorkspacesField(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

func detectTurbo(root string) (*Workspace, error) {
	turboJSON := filepath.Join(root, "turbo.json")
	if !exists(turboJSON) {
		return nil, nil
	}
	packageJSON := filepath.Join(root, "package.json")
	if !exists(packageJSON) {
		return nil, nil
	}
	data, err := readFile(packageJSON)
	if err != nil {
		return nil, err
	}
	var pkg packageJSONWorkspaces
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, nil
	}
	patterns := parseWorkspacesField(pkg.Workspaces)
	if patterns == nil {
		patterns = []string{"packages/*", "apps/*"}
	}
	ws := New(root, Turbo)
	ws.PackagePatterns = patterns
	return ws, nil
}

func detectNpmYarn(root string) (*Workspace, error) {
	packageJSON := filepath.Join(root, "package.json")
	if !exists(packageJSON) {
		return nil, nil
	}
	data, err := readFile(packageJSON)
	if err != nil {
		return nil, err
	}
	var pkg packageJSONWorkspaces
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, nil
	}

	kind := Npm
	if exists(filepath.Join(root, "yarn.lock")) {
		kind = Yarn
	}

	patterns := parseWorkspacesField(pkg.Workspaces)
	if patterns != nil {
		ws := New(root, kind)
		ws.PackagePatterns = patterns
		return ws, nil
	}

	if pkg.Name != nil {
		ws := New(root, kind)
		ws.PackagePatterns = []string{"."}
		ws.IsSinglePackage = true
		return ws, nil
	}

	return nil, nil
}

type pyProjectManifest struct {
	Project map[string]interface{} `toml:"project"`
	Tool    *pyProjectTool          `toml:"tool"`
}

type pyProjectTool struct {
	Poetry *struct {
		Packages []struct {
			Include string `toml:"include"`
		} `toml:"packages"`
	} `toml:"poetry"`
	Hatch *struct {
		Build *struct {
			Packages []string `toml:"packages"`
		} `toml:"build"`
	} `toml:"hatch"`
}

func detectPython(root string) (*Workspace, error) {
	manifest := filepath.Join(root, "pyproject.toml")
	if !exists(manifest) {
		return nil, nil
	}
	data, err := readFile(manifest)
	if err != nil {
		return nil, err
	}
	var pyproj pyProjectManifest
	if err := toml.Unmarshal(data, &pyproj); err != nil {
		return nil, nil
	}

	var patterns []string
	if pyproj.Tool != nil {
		if pyproj.Tool.Poetry != nil {
			for _, p := range pyproj.Tool.Poetry.Packages {
				patterns = append(patterns, p.Include)
			}
		}
		if pyproj.Tool.Hatch != nil && pyproj.Tool.Hatch.Build != nil {
			patterns = append(patterns, pyproj.Tool.Hatch.Build.Packages...)
		}
	}

	if len(patterns) == 0 && pyproj.Project != nil {
		ws := New(root, Python)
		ws.PackagePatterns = []string{"."}
		ws.IsSinglePackage = true
		return ws, nil
	}

	if len(patterns) > 0 {
		ws := New(root, Python)
		ws.PackagePatterns = patterns
		return ws, nil
	}

	return nil, nil
}
