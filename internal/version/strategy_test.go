package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/change"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

func samplePackages() []*discovery.DiscoveredPackage {
	return []*discovery.DiscoveredPackage{
		{Name: "core", Version: "1.0.0"},
		{Name: "utils", Version: "1.2.0", WorkspaceDependencies: []string{"core"}},
		{Name: "cli", Version: "2.0.0", WorkspaceDependencies: []string{"core", "utils"}},
	}
}

func sampleChanges() []*change.Package {
	return []*change.Package{
		{Name: "core", Path: "packages/core", ChangedFiles: []string{"packages/core/src/index.ts"}, Reason: change.DirectChanges},
	}
}

func TestIndependentVersioning(t *testing.T) {
	strategy := NewStrategy(Independent)
	bumps, err := strategy.CalculateBumps(samplePackages(), sampleChanges(), Minor, nil)
	require.NoError(t, err)
	require.Len(t, bumps, 1)
	assert.Equal(t, "core", bumps[0].Package)
	assert.Equal(t, "1.1.0", bumps[0].NewVersion)
}

func TestFixedVersioning(t *testing.T) {
	strategy := NewStrategy(Fixed)
	bumps, err := strategy.CalculateBumps(samplePackages(), sampleChanges(), Minor, nil)
	require.NoError(t, err)
	require.Len(t, bumps, 3)
	for _, b := range bumps {
		assert.Equal(t, "2.1.0", b.NewVersion)
	}
}

func TestGroupedVersioning(t *testing.T) {
	strategy := NewStrategy(Grouped).WithGroups(map[string][]string{
		"core-group": {"core", "utils"},
	})
	bumps, err := strategy.CalculateBumps(samplePackages(), sampleChanges(), Minor, nil)
	require.NoError(t, err)

	byName := map[string]*Bump{}
	for _, b := range bumps {
		byName[b.Package] = b
	}
	require.Contains(t, byName, "core")
	require.Contains(t, byName, "utils")
	assert.Equal(t, byName["core"].NewVersion, byName["utils"].NewVersion)
	assert.Equal(t, "1.3.0", byName["core"].NewVersion)
	assert.NotContains(t, byName, "cli")
}

func TestTagNames(t *testing.T) {
	independent := NewStrategy(Independent)
	fixed := NewStrategy(Fixed)
	assert.Equal(t, "core@1.0.0", independent.TagName("core", "1.0.0"))
	assert.Equal(t, "v1.0.0", fixed.TagName("core", "1.0.0"))
}

func TestBumpVersion(t *testing.T) {
	v, err := BumpVersion("1.0.0", Major)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v)

	v, err = BumpVersion("1.0.0", Minor)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v)

	v, err = BumpVersion("1.0.0", Patch)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", v)
}

func TestBumpVersionPrerelease(t *testing.T) {
	v, err := BumpVersion("1.0.0", Prerelease)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1-alpha.0", v)

	v, err = BumpVersion("1.0.1-alpha.0", Prerelease)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1-alpha.1", v)
}
