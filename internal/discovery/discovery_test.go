package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverCargoPackages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), `
[workspace]
members = ["crates/*"]
`)
	writeFile(t, filepath.Join(dir, "crates/pkg-a/Cargo.toml"), `
[package]
name = "pkg-a"
version = "1.0.0"
`)
	writeFile(t, filepath.Join(dir, "crates/pkg-b/Cargo.toml"), `
[package]
name = "pkg-b"
version = "2.0.0"

[dependencies]
pkg-a = { path = "../pkg-a" }
`)

	ws, err := workspace.Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)

	packages, stats, err := Discover(ws)
	require.NoError(t, err)
	require.Len(t, packages, 2)
	assert.Equal(t, 2, stats.PackagesFound)

	byName := map[string]*DiscoveredPackage{}
	for _, pkg := range packages {
		byName[pkg.Name] = pkg
	}

	assert.Equal(t, "1.0.0", byName["pkg-a"].Version)
	assert.Equal(t, "2.0.0", byName["pkg-b"].Version)
	assert.Contains(t, byName["pkg-b"].WorkspaceDependencies, "pkg-a")
}

func TestDiscoverNpmPackages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"my-monorepo","workspaces":["packages/*"]}`)
	writeFile(t, filepath.Join(dir, "packages/core/package.json"), `{"name":"@my/core","version":"1.0.0"}`)
	writeFile(t, filepath.Join(dir, "packages/utils/package.json"), `{
		"name": "@my/utils",
		"version": "1.0.0",
		"dependencies": {"@my/core": "workspace:*"}
	}`)

	ws, err := workspace.Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)

	packages, _, err := Discover(ws)
	require.NoError(t, err)
	require.Len(t, packages, 2)

	var utils *DiscoveredPackage
	for _, pkg := range packages {
		if pkg.Name == "@my/utils" {
			utils = pkg
		}
	}
	require.NotNil(t, utils)
	assert.Contains(t, utils.WorkspaceDependencies, "@my/core")
}

func TestDiscoverSkipsMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"root","workspaces":["packages/*"]}`)
	writeFile(t, filepath.Join(dir, "packages/good/package.json"), `{"name":"good","version":"1.0.0"}`)
	writeFile(t, filepath.Join(dir, "packages/bad/package.json"), `not json`)

	ws, err := workspace.Detect(dir)
	require.NoError(t, err)

	packages, stats, err := Discover(ws)
	require.Error(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, "good", packages[0].Name)
	assert.Equal(t, 1, stats.ParseErrors)
}
