package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

type fakeAdapter struct {
	manifest string
}

func (f *fakeAdapter) Detect(path string) (bool, error) { return path == "/repo/core", nil }
func (f *fakeAdapter) ManifestNames() []string           { return []string{f.manifest} }
func (f *fakeAdapter) GetInfo(path string) (*PackageInfo, error) {
	return &PackageInfo{Name: "core", Version: "1.0.0"}, nil
}
func (f *fakeAdapter) GetVersion(path string) (string, error)      { return "1.0.0", nil }
func (f *fakeAdapter) SetVersion(path, version string) error       { return nil }
func (f *fakeAdapter) PublishWithOptions(path string, opts PublishOptions) error { return nil }
func (f *fakeAdapter) ValidatePublishable(path string) (*ValidationResult, error) {
	return &ValidationResult{}, nil
}
func (f *fakeAdapter) CheckAuth(credentials map[string]string) (bool, error) { return true, nil }
func (f *fakeAdapter) Build(path string) error                              { return nil }
func (f *fakeAdapter) Test(path string) error                               { return nil }
func (f *fakeAdapter) Clean(path string) error                              { return nil }
func (f *fakeAdapter) Fmt(path string, check bool) error                    { return nil }
func (f *fakeAdapter) Lint(path string) error                               { return nil }
func (f *fakeAdapter) Pack(path string) (string, error)                     { return "", nil }

func TestDetectForReturnsFirstMatchingAdapter(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterAdapter(&fakeAdapter{manifest: "package.json"})

	a, ok := reg.DetectFor("/repo/core")
	require.True(t, ok)
	assert.Equal(t, []string{"package.json"}, a.ManifestNames())

	_, ok = reg.DetectFor("/repo/other")
	assert.False(t, ok)
}

func TestResolveReturnsBoundCommand(t *testing.T) {
	reg := NewRegistry()
	id := taskgraph.NewTaskID("core", "build")
	reg.BindCommand(id, "npm run build")

	cmd, ok := reg.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, "npm run build", cmd)
}

func TestResolveMissReturnsFalse(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Resolve(taskgraph.NewTaskID("core", "build"))
	assert.False(t, ok)
}
