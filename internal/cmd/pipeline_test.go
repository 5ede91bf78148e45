package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/hooks"
)

func TestLoadPipelineMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	pipeline, err := LoadPipeline(dir)
	require.NoError(t, err)
	require.Empty(t, pipeline)
}

func TestLoadPipelineParsesTasks(t *testing.T) {
	dir := t.TempDir()
	doc := `{
		// comment, since this is jsonc
		"pipeline": {
			"build": {"command": "build", "dependsOnPackages": true, "outputs": ["dist/**"]},
			"test": {"command": "test", "dependsOn": ["build"]}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, pipelineFileName), []byte(doc), 0o644))

	pipeline, err := LoadPipeline(dir)
	require.NoError(t, err)
	require.Len(t, pipeline, 2)
	require.Equal(t, "build", pipeline["build"].Command)
	require.True(t, pipeline["build"].DependsOnPackages)
	require.Equal(t, []string{"dist/**"}, pipeline["build"].Outputs)
	require.Equal(t, []string{"build"}, pipeline["test"].DependsOn)
}

func TestRequireTasksErrorsOnUnknownTask(t *testing.T) {
	pipeline, err := LoadPipeline(t.TempDir())
	require.NoError(t, err)
	err = requireTasks(pipeline, []string{"build"})
	require.Error(t, err)
}

func TestLoadHooksMissingFileReturnsEmptyRunner(t *testing.T) {
	dir := t.TempDir()
	runner, err := LoadHooks(dir)
	require.NoError(t, err)
	require.False(t, runner.HasHooks(hooks.PreVersion))
}

func TestLoadHooksParsesConfig(t *testing.T) {
	dir := t.TempDir()
	doc := `{"hooks": {"pre-version": [{"command": "echo hi", "fail_on_error": true}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, hooksFileName), []byte(doc), 0o644))

	runner, err := LoadHooks(dir)
	require.NoError(t, err)
	require.True(t, runner.HasHooks(hooks.PreVersion))
}

func TestTaskNamesReturnsEveryDeclaredTask(t *testing.T) {
	dir := t.TempDir()
	doc := `{"pipeline": {"build": {"command": "build"}, "lint": {"command": "lint"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, pipelineFileName), []byte(doc), 0o644))

	pipeline, err := LoadPipeline(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"build", "lint"}, TaskNames(pipeline))
}
