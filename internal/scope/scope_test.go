package scope

import (
	"testing"

	mapset "github.com/deckarep/golang-set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

func fixturePackages() []*discovery.DiscoveredPackage {
	return []*discovery.DiscoveredPackage{
		{Name: "core", Path: "packages/core", WorkspaceDependencies: nil},
		{Name: "utils", Path: "packages/utils", WorkspaceDependencies: []string{"core"}},
		{Name: "app", Path: "apps/app", WorkspaceDependencies: []string{"utils"}},
	}
}

func fixtureGraph(t *testing.T) *depgraph.Graph {
	t.Helper()
	g, err := depgraph.Build(fixturePackages())
	require.NoError(t, err)
	return g
}

func TestParseSelectorBareName(t *testing.T) {
	s, err := ParseSelector("core", "")
	require.NoError(t, err)
	assert.Equal(t, "core", s.NamePattern)
	assert.False(t, s.Exclude)
	assert.False(t, s.IncludeDependencies)
}

func TestParseSelectorExclude(t *testing.T) {
	s, err := ParseSelector("!core", "")
	require.NoError(t, err)
	assert.Equal(t, "core", s.NamePattern)
	assert.True(t, s.Exclude)
}

func TestParseSelectorIncludeDependencies(t *testing.T) {
	s, err := ParseSelector("app...", "")
	require.NoError(t, err)
	assert.Equal(t, "app", s.NamePattern)
	assert.True(t, s.IncludeDependencies)
	assert.False(t, s.ExcludeSelf)
}

func TestParseSelectorIncludeDependenciesExcludeSelf(t *testing.T) {
	s, err := ParseSelector("app^...", "")
	require.NoError(t, err)
	assert.Equal(t, "app", s.NamePattern)
	assert.True(t, s.IncludeDependencies)
	assert.True(t, s.ExcludeSelf)
}

func TestParseSelectorIncludeDependents(t *testing.T) {
	s, err := ParseSelector("...core", "")
	require.NoError(t, err)
	assert.Equal(t, "core", s.NamePattern)
	assert.True(t, s.IncludeDependents)
}

func TestParseSelectorByLocation(t *testing.T) {
	s, err := ParseSelector("./packages/core", "")
	require.NoError(t, err)
	assert.Equal(t, "packages/core", s.ParentDir)
	assert.Empty(t, s.NamePattern)
}

func TestParseSelectorEmptyIsError(t *testing.T) {
	_, err := ParseSelector("", "")
	assert.Error(t, err)
}

func TestResolveBareNameSelectsOnlyThatPackage(t *testing.T) {
	s, err := ParseSelector("utils", "")
	require.NoError(t, err)

	result, err := Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("utils"), result)
}

func TestResolveIncludeDependenciesAddsTransitiveDeps(t *testing.T) {
	s, err := ParseSelector("app...", "")
	require.NoError(t, err)

	result, err := Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("app", "utils", "core"), result)
}

func TestResolveIncludeDependenciesExcludeSelfOmitsOriginalMatch(t *testing.T) {
	s, err := ParseSelector("app^...", "")
	require.NoError(t, err)

	result, err := Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("utils", "core"), result)
}

func TestResolveIncludeDependentsAddsDownstreamPackages(t *testing.T) {
	s, err := ParseSelector("...core", "")
	require.NoError(t, err)

	result, err := Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("core", "utils", "app"), result)
}

func TestResolveExcludeSubtractsFromIncluded(t *testing.T) {
	all, err := ParseSelector("app...", "")
	require.NoError(t, err)
	excludeUtils, err := ParseSelector("!utils", "")
	require.NoError(t, err)

	result, err := Resolve([]Selector{all, excludeUtils}, fixturePackages(), fixtureGraph(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("app", "core"), result)
}

func TestResolveAllExcludingSelectorsStartFromEverything(t *testing.T) {
	excludeCore, err := ParseSelector("!core", "")
	require.NoError(t, err)

	result, err := Resolve([]Selector{excludeCore}, fixturePackages(), fixtureGraph(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("utils", "app"), result)
}

func TestResolveDiffSelectorUsesResolver(t *testing.T) {
	s, err := ParseSelector("[main]", "")
	require.NoError(t, err)
	require.Equal(t, "main", s.Diff)
	require.False(t, s.MatchDependencies)

	resolver := func(ref string) (mapset.Set, error) {
		assert.Equal(t, "main", ref)
		return mapset.NewSetWith("core"), nil
	}

	result, err := Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), resolver)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("core"), result)
}

func TestResolveDiffSelectorWithoutResolverErrors(t *testing.T) {
	s, err := ParseSelector("[main]", "")
	require.NoError(t, err)

	_, err = Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), nil)
	assert.Error(t, err)
}

func TestResolveMatchDependenciesScopesToAffectedWithinNamedPackage(t *testing.T) {
	s, err := ParseSelector("app...[main]", "")
	require.NoError(t, err)
	require.True(t, s.MatchDependencies)
	require.Equal(t, "main", s.Diff)

	resolver := func(ref string) (mapset.Set, error) {
		return mapset.NewSetWith("core"), nil
	}

	result, err := Resolve([]Selector{s}, fixturePackages(), fixtureGraph(t), resolver)
	require.NoError(t, err)
	assert.Equal(t, mapset.NewSetWith("app"), result)
}

func TestParseTaskFilterExclude(t *testing.T) {
	f := ParseTaskFilter("!lint")
	assert.Equal(t, "lint", f.Pattern)
	assert.True(t, f.Exclude)
}

func TestResolveTasksNoFiltersReturnsAll(t *testing.T) {
	out, err := ResolveTasks(nil, []string{"build", "test", "lint"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "test", "lint"}, out)
}

func TestResolveTasksIncludeFilter(t *testing.T) {
	out, err := ResolveTasks([]TaskFilter{ParseTaskFilter("build")}, []string{"build", "test", "lint"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, out)
}

func TestResolveTasksExcludeFilter(t *testing.T) {
	out, err := ResolveTasks([]TaskFilter{ParseTaskFilter("!lint")}, []string{"build", "test", "lint"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "test"}, out)
}
