package cmdutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRootFindsMarkerAtRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"root","workspaces":["packages/*"]}`), 0o644))

	h := NewHelper("test")
	root, err := h.ResolveRoot(dir)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved, root)
}

func TestResolveRootWalksUpward(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pnpm-workspace.yaml"), []byte("packages:\n  - packages/*\n"), 0o644))
	nested := filepath.Join(dir, "packages", "core", "src")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	h := NewHelper("test")
	root, err := h.ResolveRoot(nested)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved, root)
}

func TestResolveRootErrorsWhenNoMarkerFound(t *testing.T) {
	dir := t.TempDir()
	h := NewHelper("test")
	_, err := h.ResolveRoot(dir)
	require.Error(t, err)
}

func TestCleanupRunsRegisteredClosersInOrder(t *testing.T) {
	h := NewHelper("test")
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		h.RegisterCleanup(closerFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}
	h.Cleanup()
	require.Equal(t, []int{0, 1, 2}, order)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
