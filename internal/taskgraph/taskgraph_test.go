package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/discovery"
)

func buildGraph(t *testing.T) *depgraph.Graph {
	t.Helper()
	packages := []*discovery.DiscoveredPackage{
		{Name: "core", Version: "1.0.0"},
		{Name: "utils", Version: "1.0.0", WorkspaceDependencies: []string{"core"}},
		{Name: "app", Version: "1.0.0", WorkspaceDependencies: []string{"core", "utils"}},
	}
	g, err := depgraph.Build(packages)
	require.NoError(t, err)
	return g
}

func TestBuildWaveAssignment(t *testing.T) {
	g := buildGraph(t)
	pipeline := map[string]*Definition{
		"build": {Name: "build", Command: "npm run build", DependsOnPackages: true},
		"test":  {Name: "test", Command: "npm test", DependsOn: []string{"build"}},
	}

	dag, err := Build(g, pipeline, []string{"build", "test"}, []string{"core", "utils", "app"})
	require.NoError(t, err)

	assert.Equal(t, 0, dag.Get(NewTaskID("core", "build")).Wave)
	assert.Equal(t, 1, dag.Get(NewTaskID("utils", "build")).Wave)
	assert.Equal(t, 1, dag.Get(NewTaskID("core", "test")).Wave)
	assert.Equal(t, 2, dag.Get(NewTaskID("app", "build")).Wave)
	assert.Equal(t, 2, dag.Get(NewTaskID("utils", "test")).Wave)
	assert.Equal(t, 3, dag.Get(NewTaskID("app", "test")).Wave)
}

func TestBuildIndependentTasksShareWave(t *testing.T) {
	g := buildGraph(t)
	pipeline := map[string]*Definition{
		"build": {Name: "build", Command: "npm run build", DependsOnPackages: true},
		"lint":  {Name: "lint", Command: "npm run lint"},
	}

	dag, err := Build(g, pipeline, []string{"build", "lint"}, []string{"core"})
	require.NoError(t, err)

	assert.Equal(t, 0, dag.Get(NewTaskID("core", "build")).Wave)
	assert.Equal(t, 0, dag.Get(NewTaskID("core", "lint")).Wave)
}

func TestBuildUnknownTaskFails(t *testing.T) {
	g := buildGraph(t)
	pipeline := map[string]*Definition{
		"build": {Name: "build", Command: "npm run build"},
	}

	_, err := Build(g, pipeline, []string{"nonexistent"}, []string{"core"})
	assert.Error(t, err)
}

func TestExecutionPlanListsWavesAndTasks(t *testing.T) {
	g := buildGraph(t)
	pipeline := map[string]*Definition{
		"build": {Name: "build", Command: "npm run build", DependsOnPackages: true},
	}

	dag, err := Build(g, pipeline, []string{"build"}, []string{"core", "utils"})
	require.NoError(t, err)

	plan := dag.ExecutionPlan()
	assert.Contains(t, plan, "Wave 0")
	assert.Contains(t, plan, "core:build")
	assert.Contains(t, plan, "utils:build")
}
