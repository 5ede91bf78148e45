// Package cmdutil holds the shared command-line scaffolding every canaveral
// subcommand builds on: a named logger, working-directory/workspace-root
// resolution, and profiling-file cleanup registration. There is no
// remote-cache client and no auth token here; credential stores are an
// external collaborator's concern.
package cmdutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/yookoala/realpath"

	"github.com/lucasilverentand/canaveral/internal/workspace"
)

// Helper bundles the state a cobra command needs to build its logger and
// locate the workspace it's operating on, plus a cleanup list for any
// profiling files opened along the way.
type Helper struct {
	Version        string
	Logger         hclog.Logger
	UserConfigPath string

	verbosity int
	cleanups  []io.Closer
}

// NewHelper builds a Helper for one CLI invocation, named by the binary's
// version string (surfaced via --version and in the root logger).
func NewHelper(version string) *Helper {
	return &Helper{
		Version: version,
		Logger:  hclog.Default(),
	}
}

// AddFlags registers the global flags every subcommand shares.
func (h *Helper) AddFlags(flags *pflag.FlagSet) {
	flags.CountVarP(&h.verbosity, "verbosity", "v", "Increase logging verbosity (-v, -vv, -vvv)")
}

// Init finalizes logger configuration from the parsed verbosity flag. Call
// after cobra has parsed flags, before running command logic.
func (h *Helper) Init() {
	level := hclog.Warn
	switch {
	case h.verbosity >= 2:
		level = hclog.Trace
	case h.verbosity == 1:
		level = hclog.Debug
	}
	h.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "canaveral",
		Level: level,
	})

	if h.UserConfigPath == "" {
		if path, err := DefaultUserConfigPath(); err == nil {
			h.UserConfigPath = path
		}
	}
}

// RegisterCleanup appends c to the list of closers run by Cleanup, in the
// order registered (profiling files are opened and must be flushed/closed
// in the same order across a run).
func (h *Helper) RegisterCleanup(c io.Closer) {
	h.cleanups = append(h.cleanups, c)
}

// Cleanup closes every registered cleanup, logging (but not returning) any
// individual failure so a profiling-file error never masks the command's
// real exit status.
func (h *Helper) Cleanup() {
	for _, c := range h.cleanups {
		if err := c.Close(); err != nil {
			h.Logger.Error("cleanup failed", "error", err)
		}
	}
}

// ResolveRoot finds the workspace root starting from cwd: it resolves
// symlinks (github.com/yookoala/realpath; workspace.Detect itself resolves
// none) and then walks upward until
// workspace.Detect succeeds or the filesystem root is reached.
func (h *Helper) ResolveRoot(cwd string) (string, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve working directory")
	}
	resolved, err := realpath.Realpath(abs)
	if err != nil {
		resolved = abs
	}

	dir := resolved
	for {
		ws, err := workspace.Detect(dir)
		if err != nil {
			return "", errors.Wrapf(err, "failed to probe %s for a workspace", dir)
		}
		if ws != nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Errorf("no workspace found at or above %s", resolved)
		}
		dir = parent
	}
}

// DefaultUserConfigPath returns ~/.canaveral/config.json, resolved via
// github.com/mitchellh/go-homedir.
func DefaultUserConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, ".canaveral", "config.json"), nil
}

// EnsureParentDir creates path's parent directory if it doesn't exist,
// used before writing a config file.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
