package hooks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllStagesOrderPutsPostReleaseLast(t *testing.T) {
	stages := AllStages()
	require.Len(t, stages, 12)
	assert.Equal(t, PreRelease, stages[0])
	assert.Equal(t, PostRelease, stages[len(stages)-1])
}

func TestContextToEnvProjectsCustomFields(t *testing.T) {
	ctx := Context{
		Version:         "1.2.3",
		PreviousVersion: "1.2.2",
		Package:         "core",
		ReleaseType:     "minor",
		Tag:             "core@1.2.3",
		DryRun:          true,
		Custom:          map[string]string{"changelog_url": "https://example.com"},
	}
	env := ctx.ToEnv()
	assert.Equal(t, "1.2.3", env["CANAVERAL_VERSION"])
	assert.Equal(t, "true", env["CANAVERAL_DRY_RUN"])
	assert.Equal(t, "https://example.com", env["CANAVERAL_CHANGELOG_URL"])
}

func TestRunExecutesHooksInOrder(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(dir)
	runner.Register(PreRelease, NewHook("echo one"))
	runner.Register(PreRelease, NewHook("echo two"))

	results, err := runner.Run(PreRelease, Context{Version: "1.0.0"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Stdout, "one")
	assert.Contains(t, results[1].Stdout, "two")
}

func TestRunStopsStageOnFailOnError(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(dir)
	runner.Register(PreCommit, NewHook("exit 1").WithFailOnError(true))
	runner.Register(PreCommit, NewHook("echo should-not-run"))

	results, err := runner.Run(PreCommit, Context{})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestRunContinuesStageWhenFailOnErrorFalse(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(dir)
	runner.Register(PreCommit, NewHook("exit 1").WithFailOnError(false))
	runner.Register(PreCommit, NewHook("echo continued"))

	results, err := runner.Run(PreCommit, Context{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestRunEnforcesTimeout(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(dir)
	runner.Register(PreTag, NewHook("sleep 5").WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := runner.Run(PreTag, Context{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestHookConfigUnmarshalsBareString(t *testing.T) {
	var c HookConfig
	require.NoError(t, json.Unmarshal([]byte(`"echo hi"`), &c))
	assert.Equal(t, "echo hi", c.Command)
	assert.True(t, c.FailOnError)
}

func TestHookConfigUnmarshalsObjectForm(t *testing.T) {
	var c HookConfig
	require.NoError(t, json.Unmarshal([]byte(`{"command":"echo hi","fail_on_error":false}`), &c))
	assert.Equal(t, "echo hi", c.Command)
	assert.False(t, c.FailOnError)
}

func TestBuildRunnerRejectsUnknownStage(t *testing.T) {
	cfg := Config{Hooks: map[string][]HookConfig{"not-a-stage": {{Command: "echo hi"}}}}
	_, err := BuildRunner(cfg, t.TempDir())
	assert.Error(t, err)
}

func TestBuildRunnerRegistersConfiguredHooks(t *testing.T) {
	cfg := Config{Hooks: map[string][]HookConfig{
		string(PrePublish): {{Command: "echo hi", FailOnError: true}},
	}}
	runner, err := BuildRunner(cfg, t.TempDir())
	require.NoError(t, err)
	assert.True(t, runner.HasHooks(PrePublish))
}
