package change

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

func testPackages() []*discovery.DiscoveredPackage {
	return []*discovery.DiscoveredPackage{
		{Name: "pkg-a", Version: "1.0.0", Path: "packages/pkg-a"},
		{Name: "pkg-b", Version: "1.0.0", Path: "packages/pkg-b", WorkspaceDependencies: []string{"pkg-a"}},
	}
}

func TestMapFilesToPackages(t *testing.T) {
	d := NewDetector("/repo")
	mappings := d.mapFilesToPackages(testPackages(), []string{
		"packages/pkg-a/src/index.js",
		"packages/pkg-b/src/utils.js",
	})
	assert.Len(t, mappings, 2)
	assert.Equal(t, "pkg-a", mappings["packages/pkg-a/src/index.js"])
	assert.Equal(t, "pkg-b", mappings["packages/pkg-b/src/utils.js"])
}

func TestDetectDirectChanges(t *testing.T) {
	d := NewDetector("/repo").WithTransitive(false)
	changes, err := d.DetectChanges(testPackages(), []string{"packages/pkg-a/src/index.js"}, nil)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "pkg-a", changes[0].Name)
	assert.Equal(t, DirectChanges, changes[0].Reason)
}

func TestDetectTransitivePropagationFollowsDependencies(t *testing.T) {
	packages := testPackages()
	g, err := depgraph.Build(packages)
	require.NoError(t, err)

	d := NewDetector("/repo")
	changes, err := d.DetectChanges(packages, []string{"packages/pkg-a/src/index.js"}, g)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	byName := map[string]*Package{}
	for _, c := range changes {
		byName[c.Name] = c
	}
	assert.Equal(t, DirectChanges, byName["pkg-a"].Reason)
	assert.Equal(t, DependencyChanged, byName["pkg-b"].Reason)
	assert.Equal(t, "pkg-a", byName["pkg-b"].DependencyRef)
}

func TestDetectTransitivePropagationDoesNotFlagUpstream(t *testing.T) {
	// A change to the downstream package (pkg-b) must never mark its
	// dependency (pkg-a) as changed: propagation only flows toward
	// dependents of a change, never toward dependencies.
	packages := testPackages()
	g, err := depgraph.Build(packages)
	require.NoError(t, err)

	d := NewDetector("/repo")
	changes, err := d.DetectChanges(packages, []string{"packages/pkg-b/src/utils.js"}, g)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "pkg-b", changes[0].Name)
}

func TestChangeFilter(t *testing.T) {
	f := DefaultFilter()
	assert.True(t, f.Matches("src/index.js"))
	assert.True(t, f.Matches("lib/utils.rs"))
	assert.False(t, f.Matches("README.md"))
	assert.False(t, f.Matches("CHANGELOG.md"))
}

func TestChangeReasonDisplay(t *testing.T) {
	assert.Equal(t, "direct changes", DirectChanges.String())
	assert.Equal(t, "dependency changed", DependencyChanged.String())
}
