// Package hooks runs user-configured shell commands at fixed points in the
// release lifecycle (before/after versioning, changelog generation,
// committing, tagging, and publishing), injecting release context as
// CANAVERAL_* environment variables.
package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/crlf"
	"github.com/hashicorp/go-hclog"

	"github.com/lucasilverentand/canaveral/internal/errs"
)

// Stage names a point in the release lifecycle a hook can attach to.
type Stage string

const (
	PreRelease    Stage = "pre-release"
	PostRelease   Stage = "post-release"
	PreVersion    Stage = "pre-version"
	PostVersion   Stage = "post-version"
	PreChangelog  Stage = "pre-changelog"
	PostChangelog Stage = "post-changelog"
	PreCommit     Stage = "pre-commit"
	PostCommit    Stage = "post-commit"
	PreTag        Stage = "pre-tag"
	PostTag       Stage = "post-tag"
	PrePublish    Stage = "pre-publish"
	PostPublish   Stage = "post-publish"
)

// AllStages lists every stage in the order a release walks through them.
// PostRelease is last, mirroring the wrapping pre/post-release pair around
// every other stage rather than sitting next to PreRelease.
func AllStages() []Stage {
	return []Stage{
		PreRelease, PreVersion, PostVersion, PreChangelog, PostChangelog,
		PreCommit, PostCommit, PreTag, PostTag, PrePublish, PostPublish, PostRelease,
	}
}

// Hook is one configured command bound to a stage.
type Hook struct {
	Command     string
	Cwd         string
	Env         map[string]string
	FailOnError bool
	Timeout     time.Duration
	Description string
}

// NewHook builds a Hook that runs command, failing the release on a
// non-zero exit by default.
func NewHook(command string) *Hook {
	return &Hook{Command: command, FailOnError: true}
}

// WithCwd sets the hook's working directory, overriding the runner's base
// directory.
func (h *Hook) WithCwd(cwd string) *Hook { h.Cwd = cwd; return h }

// WithEnv sets additional environment variables; these take precedence
// over the context-derived CANAVERAL_* variables on conflict.
func (h *Hook) WithEnv(env map[string]string) *Hook { h.Env = env; return h }

// WithFailOnError toggles whether a non-zero exit halts remaining hooks at
// this stage and fails the release.
func (h *Hook) WithFailOnError(fail bool) *Hook { h.FailOnError = fail; return h }

// WithTimeout bounds how long the hook's process is allowed to run before
// it is killed.
func (h *Hook) WithTimeout(timeout time.Duration) *Hook { h.Timeout = timeout; return h }

// WithDescription attaches a human-readable label shown in reporter output.
func (h *Hook) WithDescription(desc string) *Hook { h.Description = desc; return h }

// Result is the outcome of running a single hook.
type Result struct {
	Stage    Stage
	Command  string
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Context carries the release facts a hook's environment is derived from.
type Context struct {
	Version         string
	PreviousVersion string
	Package         string
	ReleaseType     string
	Tag             string
	DryRun          bool
	Custom          map[string]string
}

// ToEnv projects ctx into the CANAVERAL_* environment variables every hook
// receives: fixed names for the built-in fields, CANAVERAL_<KEY> (upper-
// cased) for each Custom entry.
func (c Context) ToEnv() map[string]string {
	env := map[string]string{
		"CANAVERAL_VERSION":          c.Version,
		"CANAVERAL_PREVIOUS_VERSION": c.PreviousVersion,
		"CANAVERAL_PACKAGE":          c.Package,
		"CANAVERAL_RELEASE_TYPE":     c.ReleaseType,
		"CANAVERAL_TAG":              c.Tag,
		"CANAVERAL_DRY_RUN":          strconv.FormatBool(c.DryRun),
	}
	for k, v := range c.Custom {
		env["CANAVERAL_"+strings.ToUpper(k)] = v
	}
	return env
}

// Runner holds the hooks registered per stage and executes them in
// registration order, stopping a stage at the first FailOnError failure.
type Runner struct {
	hooks   map[Stage][]*Hook
	baseDir string
	logger  hclog.Logger
}

// NewRunner builds an empty Runner. Hooks without their own Cwd run in
// baseDir.
func NewRunner(baseDir string) *Runner {
	return &Runner{hooks: map[Stage][]*Hook{}, baseDir: baseDir, logger: hclog.L().Named("hooks")}
}

// Register attaches hook to stage.
func (r *Runner) Register(stage Stage, hook *Hook) {
	r.hooks[stage] = append(r.hooks[stage], hook)
}

// RegisterAll attaches every hook in hooks to stage, in order.
func (r *Runner) RegisterAll(stage Stage, hooks []*Hook) {
	for _, h := range hooks {
		r.Register(stage, h)
	}
}

// GetHooks returns the hooks registered for stage.
func (r *Runner) GetHooks(stage Stage) []*Hook {
	return r.hooks[stage]
}

// HasHooks reports whether any hook is registered for stage.
func (r *Runner) HasHooks(stage Stage) bool {
	return len(r.hooks[stage]) > 0
}

// Run executes every hook registered for stage in order. If a hook with
// FailOnError set exits non-zero or is killed for exceeding its timeout,
// Run returns immediately with a HookExecutionFailed error; hooks already
// completed in this call still appear in the returned results, but
// remaining hooks in the stage do not run.
func (r *Runner) Run(stage Stage, ctx Context) ([]*Result, error) {
	hooks := r.hooks[stage]
	if len(hooks) == 0 {
		return nil, nil
	}

	contextEnv := ctx.ToEnv()
	results := make([]*Result, 0, len(hooks))
	for _, hook := range hooks {
		result, err := r.executeHook(stage, hook, contextEnv)
		results = append(results, result)
		if err != nil {
			return results, err
		}
		if !result.Success && hook.FailOnError {
			return results, &errs.HookExecutionFailed{
				Stage:   string(stage),
				Command: hook.Command,
				Cause:   fmt.Errorf("exit code %d", result.ExitCode),
			}
		}
	}
	return results, nil
}

func (r *Runner) executeHook(stage Stage, hook *Hook, contextEnv map[string]string) (*Result, error) {
	cwd := hook.Cwd
	if cwd == "" {
		cwd = r.baseDir
	}

	env := os.Environ()
	merged := make(map[string]string, len(contextEnv)+len(hook.Env))
	for k, v := range contextEnv {
		merged[k] = v
	}
	for k, v := range hook.Env {
		merged[k] = v
	}
	for k, v := range merged {
		env = append(env, k+"="+v)
	}

	shell, shellFlag := "sh", "-c"
	if runtime.GOOS == "windows" {
		shell, shellFlag = "cmd", "/C"
	}

	cmd := exec.Command(shell, shellFlag, hook.Command)
	cmd.Dir = cwd
	cmd.Env = env
	setProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = crlf.NewWriter(&stdoutBuf)
	cmd.Stderr = crlf.NewWriter(&stderrBuf)

	r.logger.Debug("running hook", "stage", stage, "command", hook.Command)
	start := time.Now()

	if err := cmd.Start(); err != nil {
		return &Result{Stage: stage, Command: hook.Command, Success: false, ExitCode: -1, Duration: time.Since(start)}, nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	if hook.Timeout > 0 {
		select {
		case waitErr = <-done:
		case <-time.After(hook.Timeout):
			killProcessGroup(cmd)
			<-done
			return &Result{
				Stage:    stage,
				Command:  hook.Command,
				Success:  false,
				ExitCode: -1,
				Stdout:   stdoutBuf.String(),
				Stderr:   stderrBuf.String(),
				Duration: time.Since(start),
			}, &errs.HookExecutionFailed{Stage: string(stage), Command: hook.Command, Cause: fmt.Errorf("timed out after %s", hook.Timeout)}
		}
	} else {
		waitErr = <-done
	}

	exitCode := 0
	success := true
	if waitErr != nil {
		success = false
		exitCode = -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	return &Result{
		Stage:    stage,
		Command:  hook.Command,
		Success:  success,
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}, nil
}

func setProcessGroup(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		cmd.Process.Kill()
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// Config is the on-disk shape of a hooks file: stage name to a list of
// hook configs.
type Config struct {
	Hooks map[string][]HookConfig `json:"hooks"`
}

// HookConfig is one hook as read from configuration, before being turned
// into a Hook. A bare string in the config file unmarshals as
// {Command: <string>, FailOnError: true}.
type HookConfig struct {
	Command     string            `json:"command"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	FailOnError bool              `json:"fail_on_error"`
	TimeoutMs   int64             `json:"timeout_ms,omitempty"`
	Description string            `json:"description,omitempty"`
}

// UnmarshalJSON accepts either a bare command string or the full object
// form, matching the reference config's `From<String>` sugar.
func (c *HookConfig) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Command = s
		c.FailOnError = true
		return nil
	}
	type alias HookConfig
	var a alias
	a.FailOnError = true
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = HookConfig(a)
	return nil
}

// ToHook converts a parsed HookConfig into a runnable Hook.
func (c HookConfig) ToHook() *Hook {
	h := NewHook(c.Command).
		WithCwd(c.Cwd).
		WithEnv(c.Env).
		WithFailOnError(c.FailOnError).
		WithDescription(c.Description)
	if c.TimeoutMs > 0 {
		h.WithTimeout(time.Duration(c.TimeoutMs) * time.Millisecond)
	}
	return h
}

// BuildRunner turns a parsed Config into a Runner rooted at baseDir, with
// every configured hook registered under its stage.
func BuildRunner(cfg Config, baseDir string) (*Runner, error) {
	runner := NewRunner(baseDir)
	for stageName, configs := range cfg.Hooks {
		stage := Stage(stageName)
		if !isKnownStage(stage) {
			return nil, &errs.ConfigError{Cause: fmt.Errorf("unknown hook stage %q", stageName)}
		}
		for _, c := range configs {
			runner.Register(stage, c.ToHook())
		}
	}
	return runner, nil
}

func isKnownStage(stage Stage) bool {
	for _, s := range AllStages() {
		if s == stage {
			return true
		}
	}
	return false
}
