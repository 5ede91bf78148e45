package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDetectCargoWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", `
[workspace]
members = ["crates/*", "tools/*"]
`)

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Cargo, ws.Kind)
	assert.Equal(t, []string{"crates/*", "tools/*"}, ws.PackagePatterns)
	assert.False(t, ws.IsSinglePackage)
}

func TestDetectCargoSinglePackage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", `
[package]
name = "solo"
version = "0.1.0"
`)

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Cargo, ws.Kind)
	assert.True(t, ws.IsSinglePackage)
}

func TestDetectNpmWorkspaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"root","workspaces":["packages/*"]}`)

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Npm, ws.Kind)
	assert.Equal(t, []string{"packages/*"}, ws.PackagePatterns)
}

func TestDetectYarnWorkspaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"root","workspaces":{"packages":["packages/*"]}}`)
	writeFile(t, dir, "yarn.lock", "")

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Yarn, ws.Kind)
	assert.Equal(t, []string{"packages/*"}, ws.PackagePatterns)
}

func TestDetectPnpmWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pnpm-workspace.yaml", "packages:\n  - 'packages/*'\n")

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Pnpm, ws.Kind)
	assert.Equal(t, []string{"packages/*"}, ws.PackagePatterns)
}

func TestDetectSinglePackage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"solo","version":"1.0.0"}`)

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.True(t, ws.IsSinglePackage)
	assert.Equal(t, []string{"."}, ws.PackagePatterns)
}

func TestDetectTurboPrefersOverPlainWorkspaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "turbo.json", `{}`)
	writeFile(t, dir, "package.json", `{"name":"root","workspaces":["apps/*"]}`)

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Turbo, ws.Kind)
	assert.Equal(t, []string{"apps/*"}, ws.PackagePatterns)
}

func TestDetectNone(t *testing.T) {
	dir := t.TempDir()
	ws, err := Detect(dir)
	require.NoError(t, err)
	assert.Nil(t, ws)
}

func TestDetectMalformedManifestFallsThrough(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", "not valid { toml")
	writeFile(t, dir, "package.json", `{"name":"root","workspaces":["packages/*"]}`)

	ws, err := Detect(dir)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, Npm, ws.Kind)
}

func TestWorkspaceTypeDisplay(t *testing.T) {
	cases := map[Kind]string{
		Cargo: "cargo", Npm: "npm", Yarn: "yarn", Pnpm: "pnpm",
		Lerna: "lerna", Nx: "nx", Turbo: "turbo", Python: "python", Custom: "custom",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
