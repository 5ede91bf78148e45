// Package adapter defines the two capability boundaries the core publishes
// to external collaborators (package-manager/framework adapters and
// artifact stores) and a small in-memory registry used to resolve
// commandless "framework adapter" tasks at schedule time. Concrete
// adapters (npm, cargo, maven, gomod, docker, python, ...) and concrete
// stores (App Store Connect, Google Play, npm registry, crates.io, ...)
// are implemented by collaborators outside this module; this package only
// publishes the interfaces they satisfy.
package adapter

import (
	"sync"

	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

// PackageInfo is what an adapter reports about a package it recognizes.
type PackageInfo struct {
	Name         string
	Version      string
	PackageType  string
	ManifestPath string
	Private      bool
}

// PublishOptions configures a publish_with_options call.
type PublishOptions struct {
	DryRun   bool
	Registry string
	Tag      string
	Extras   map[string]string
}

// ValidationResult is returned by ValidatePublishable.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Adapter is the package-manager/framework capability the core consumes.
// Implementations may shell out; the core does not inspect what they run.
type Adapter interface {
	Detect(path string) (bool, error)
	ManifestNames() []string
	GetInfo(path string) (*PackageInfo, error)
	GetVersion(path string) (string, error)
	SetVersion(path, version string) error
	PublishWithOptions(path string, opts PublishOptions) error
	ValidatePublishable(path string) (*ValidationResult, error)
	CheckAuth(credentials map[string]string) (bool, error)
	Build(path string) error
	Test(path string) error
	Clean(path string) error
	Fmt(path string, check bool) error
	Lint(path string) error
	// Pack produces a distributable artifact and returns its path, or ""
	// when the adapter has nothing to pack.
	Pack(path string) (string, error)
}

// Store is the upload/verify/list capability the core consumes for
// publishing release artifacts to an external distribution channel.
type Store interface {
	Upload(artifactPath string, opts PublishOptions) error
	Verify(reference string) (bool, error)
	List(prefix string) ([]string, error)
}

// Registry tracks the Adapter instances a host process has registered and
// resolves commandless ("framework adapter") tasks to a concrete shell
// command, satisfying internal/scheduler.AdapterResolver. Resolution is a
// static lookup populated ahead of a run (typically while loading the
// pipeline file, once each package's adapter has been detected) rather
// than something computed mid-schedule, since Adapter methods are Go calls
// and the scheduler's execution model is shell commands throughout.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	commands map[taskgraph.TaskID]string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: map[taskgraph.TaskID]string{}}
}

// RegisterAdapter makes a adapter available to DetectFor.
func (r *Registry) RegisterAdapter(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// DetectFor returns the first registered adapter that recognizes path.
func (r *Registry) DetectFor(path string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if ok, err := a.Detect(path); err == nil && ok {
			return a, true
		}
	}
	return nil, false
}

// BindCommand records the concrete shell command a framework-adapter task
// resolves to. Callers typically derive command by detecting the
// package's adapter and mapping the task name to its native equivalent
// (e.g. an npm package's "build" task resolving to "npm run build").
func (r *Registry) BindCommand(id taskgraph.TaskID, command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[id] = command
}

// Resolve implements internal/scheduler.AdapterResolver: it returns the
// command bound to id, or ok=false if nothing was bound, in which case the
// scheduler marks the task Skipped with reason "framework adapter not
// resolved" per the task cache/scheduler contract.
func (r *Registry) Resolve(id taskgraph.TaskID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}
