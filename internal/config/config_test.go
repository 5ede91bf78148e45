package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/version"
)

func TestReadRepoConfigFileDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := GetRepoConfigPath(dir)

	rc, err := ReadRepoConfigFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, defaultCacheDir, rc.CacheDir())
	require.Equal(t, 0, rc.Concurrency())
	require.Equal(t, version.Independent, rc.VersioningMode())
	require.Empty(t, rc.Groups())
}

func TestRepoConfigWriteAndReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := GetRepoConfigPath(dir)

	rc, err := ReadRepoConfigFile(path, nil)
	require.NoError(t, err)
	rc.v.Set("cacheDir", "custom/cache")
	rc.v.Set("versioningMode", "fixed")
	require.NoError(t, rc.Write())

	reread, err := ReadRepoConfigFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, "custom/cache", reread.CacheDir())
	require.Equal(t, version.Fixed, reread.VersioningMode())
}

func TestRepoConfigVersioningModeUnknownDefaultsToIndependent(t *testing.T) {
	dir := t.TempDir()
	path := GetRepoConfigPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"versioningMode":"bogus"}`), 0o644))

	rc, err := ReadRepoConfigFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, version.Independent, rc.VersioningMode())
}

func TestUserConfigTelemetryDisabledRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	uc, err := ReadUserConfigFile(path)
	require.NoError(t, err)
	require.False(t, uc.TelemetryDisabled())

	require.NoError(t, uc.SetTelemetryDisabled(true))

	reread, err := ReadUserConfigFile(path)
	require.NoError(t, err)
	require.True(t, reread.TelemetryDisabled())
}
