// Package taskcache is the content-addressed task cache: a deterministic
// SHA-256 fingerprint over a task's identity, command, environment, and
// input files, used to memoize captured stdout/stderr and restore the
// output files a task produced without re-running it.
package taskcache

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/zstd"
	"github.com/gobwas/glob"
	"github.com/hashicorp/go-hclog"
	"github.com/karrick/godirwalk"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/nightlyone/lockfile"

	"github.com/lucasilverentand/canaveral/internal/errs"
	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

// Key is a hex-encoded 256-bit digest identifying one task execution.
type Key string

// Entry is the persisted record of a memoized task execution.
type Entry struct {
	Key         Key      `json:"key"`
	TaskID      string   `json:"task_id"`
	OutputFiles []string `json:"output_files"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
	DurationMs  int64    `json:"duration_ms"`
	CreatedAt   string   `json:"created_at"`
}

// Cache is a SHA-256 content-addressed, filesystem-backed task cache
// rooted under <workspace-root>/.canaveral/cache (or wherever Dir points).
type Cache struct {
	Dir    string
	logger hclog.Logger
}

// New builds a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &errs.CacheError{Op: "mkdir", Cause: err}
	}
	return &Cache{Dir: dir, logger: hclog.L().Named("cache")}, nil
}

// DefaultDir is "<root>/.canaveral/cache", the cache location every
// workspace gets unless the user config overrides it.
func DefaultDir(root string) string {
	return filepath.Join(root, ".canaveral", "cache")
}

// ComputeKey derives the deterministic cache key for a task: identity,
// command, sorted env, then sorted (relative-path, file-hash) pairs over
// every regular file the task's input globs (or "**/*" by default) match
// under the package directory. Any single-byte change anywhere in that
// input set changes the digest.
func ComputeKey(id taskgraph.TaskID, def *taskgraph.Definition, rootDir string) (Key, error) {
	h := sha256.New()

	fmt.Fprintf(h, "%s:%s", id.Package, id.Task)
	if def.Command != "" {
		io.WriteString(h, def.Command)
	}

	envKeys := make([]string, 0, len(def.Env))
	for k := range def.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		fmt.Fprintf(h, "%s=%s", k, def.Env[k])
	}

	inputGlobs := def.Inputs
	if len(inputGlobs) == 0 {
		inputGlobs = []string{"**/*"}
	}

	pkgDir := filepath.Join(rootDir, id.Package)
	fileHashes, err := hashInputFiles(pkgDir, rootDir, inputGlobs)
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(fileHashes))
	for p := range fileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(h, "%s%s", p, fileHashes[p])
	}

	return Key(hex.EncodeToString(h.Sum(nil))), nil
}

// hashInputFiles walks pkgDir (when it exists), honoring pkgDir's own
// .gitignore, and returns a relative-path (from rootDir)
// to hex-SHA-256 map for every regular file matched by any glob in
// patterns.
func hashInputFiles(pkgDir, rootDir string, patterns []string) (map[string]string, error) {
	out := make(map[string]string)
	if _, err := os.Stat(pkgDir); err != nil {
		return out, nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}

	ignore := loadIgnore(pkgDir)

	var candidates []string
	err := godirwalk.Walk(pkgDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			relToPkg, err := filepath.Rel(pkgDir, path)
			if err != nil {
				return nil
			}
			relToPkg = filepath.ToSlash(relToPkg)
			if relToPkg == "." {
				return nil
			}
			if strings.HasPrefix(relToPkg, ".git/") || strings.Contains(relToPkg, "/node_modules/") || strings.HasPrefix(relToPkg, "node_modules/") {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if ignore != nil && ignore.MatchesPath(relToPkg) {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if de.IsDir() {
				return nil
			}
			if !matchesAny(globs, relToPkg) {
				return nil
			}
			candidates = append(candidates, path)
			return nil
		},
	})
	if err != nil {
		return nil, &errs.CacheError{Op: "walk", Cause: err}
	}

	// Digest matched files concurrently: an errgroup of NumCPU workers feeds
	// a shared map behind a mutex, rather than hashing the (potentially
	// large) input set serially.
	var mu sync.Mutex
	g := new(errgroup.Group)
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	for _, path := range candidates {
		path := path
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			contents, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			sum := sha256.Sum256(contents)
			relToRoot, err := filepath.Rel(rootDir, path)
			if err != nil {
				relToRoot = path
			}
			mu.Lock()
			out[filepath.ToSlash(relToRoot)] = hex.EncodeToString(sum[:])
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &errs.CacheError{Op: "hash", Cause: err}
	}
	return out, nil
}

func loadIgnore(pkgDir string) *gitignore.GitIgnore {
	path := filepath.Join(pkgDir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ignore, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return ignore
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (c *Cache) entryDir(key Key) string {
	return filepath.Join(c.Dir, string(key))
}

// Lookup returns the cached entry for key, or nil if there is no valid
// entry (a miss is not an error). If the entry declares output files, the
// accompanying outputs.tar.gz must also exist for the entry to be valid.
func (c *Cache) Lookup(key Key) (*Entry, error) {
	metaPath := filepath.Join(c.entryDir(key), "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Debug("cache miss", "key", key)
			return nil, nil
		}
		return nil, &errs.CacheError{Key: string(key), Op: "read", Cause: err}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &errs.CacheError{Key: string(key), Op: "decode", Cause: err}
	}

	if len(entry.OutputFiles) > 0 {
		archive := filepath.Join(c.entryDir(key), "outputs.tar.gz")
		if _, err := os.Stat(archive); err != nil {
			return nil, nil
		}
	}

	c.logger.Debug("cache hit", "key", key)
	return &entry, nil
}

// Store persists a completed task's captured output, collecting every file
// matched by def.Outputs under the package directory, archiving them into
// outputs.tar.gz, and writing metadata.json. Publication is guarded by a
// per-key lockfile so concurrent writers of the same key don't corrupt each
// other's entry: a writer that cannot take the lock stores nothing and
// returns a CacheError.
func (c *Cache) Store(id taskgraph.TaskID, def *taskgraph.Definition, rootDir, stdout, stderr string, duration time.Duration) (Key, error) {
	key, err := ComputeKey(id, def, rootDir)
	if err != nil {
		return "", err
	}

	dir := c.entryDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &errs.CacheError{Key: string(key), Op: "mkdir", Cause: err}
	}

	lock, err := lockfile.New(filepath.Join(dir, ".lock"))
	if err != nil {
		return "", &errs.CacheError{Key: string(key), Op: "lock", Cause: err}
	}
	if err := lock.TryLock(); err != nil {
		return "", &errs.CacheError{Key: string(key), Op: "lock", Cause: err}
	}
	defer lock.Unlock()

	pkgDir := filepath.Join(rootDir, id.Package)
	outputFiles, err := collectOutputs(pkgDir, rootDir, def.Outputs)
	if err != nil {
		return "", err
	}

	if len(outputFiles) > 0 {
		if err := writeOutputsArchive(filepath.Join(dir, "outputs.tar.gz"), rootDir, outputFiles); err != nil {
			c.logger.Warn("failed to archive outputs, caching stdout/stderr only", "key", key, "error", err)
			outputFiles = nil
		}
	}

	entry := Entry{
		Key:         key,
		TaskID:      id.String(),
		OutputFiles: outputFiles,
		Stdout:      stdout,
		Stderr:      stderr,
		DurationMs:  duration.Milliseconds(),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", &errs.CacheError{Key: string(key), Op: "encode", Cause: err}
	}

	tmp := filepath.Join(dir, "metadata.json.tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return "", &errs.CacheError{Key: string(key), Op: "write", Cause: err}
	}
	if err := os.Rename(tmp, filepath.Join(dir, "metadata.json")); err != nil {
		return "", &errs.CacheError{Key: string(key), Op: "publish", Cause: err}
	}

	return key, nil
}

func collectOutputs(pkgDir, rootDir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}

	var out []string
	if _, err := os.Stat(pkgDir); err != nil {
		return nil, nil
	}
	err := godirwalk.Walk(pkgDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(pkgDir, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if !matchesAny(globs, rel) {
				return nil
			}
			relToRoot, err := filepath.Rel(rootDir, path)
			if err != nil {
				relToRoot = path
			}
			out = append(out, filepath.ToSlash(relToRoot))
			return nil
		},
	})
	if err != nil {
		return nil, &errs.CacheError{Op: "collect-outputs", Cause: err}
	}
	sort.Strings(out)
	return out, nil
}

// writeOutputsArchive tars every file in outputFiles (paths relative to
// rootDir) and zstd-compresses the result into destPath.
func writeOutputsArchive(destPath, rootDir string, outputFiles []string) error {
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for _, rel := range outputFiles {
		full := filepath.Join(rootDir, rel)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			continue
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		contents, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		if _, err := tw.Write(contents); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}

	compressed, err := zstd.Compress(nil, raw.Bytes())
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, compressed, 0o644)
}

// RestoreOutputs extracts entry's outputs.tar.gz back into place under
// rootDir, when the entry declares any output files.
func (c *Cache) RestoreOutputs(key Key, entry *Entry, rootDir string) error {
	if len(entry.OutputFiles) == 0 {
		return nil
	}
	archivePath := filepath.Join(c.entryDir(key), "outputs.tar.gz")
	compressed, err := os.ReadFile(archivePath)
	if err != nil {
		return &errs.CacheError{Key: string(key), Op: "read-archive", Cause: err}
	}
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return &errs.CacheError{Key: string(key), Op: "decompress", Cause: err}
	}

	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &errs.CacheError{Key: string(key), Op: "extract", Cause: err}
		}
		dest := filepath.Join(rootDir, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return &errs.CacheError{Key: string(key), Op: "extract", Cause: err}
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return &errs.CacheError{Key: string(key), Op: "extract", Cause: err}
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return &errs.CacheError{Key: string(key), Op: "extract", Cause: err}
		}
		f.Close()
	}
	return nil
}

// PruneStats summarizes a Prune run.
type PruneStats struct {
	Total   int
	Removed int
	Kept    int
}

// Prune removes every cache entry older than maxAge.
func (c *Cache) Prune(maxAge time.Duration) (*PruneStats, error) {
	stats := &PruneStats{}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, &errs.CacheError{Op: "readdir", Cause: err}
	}

	cutoff := time.Now().Add(-maxAge)
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		stats.Total++
		metaPath := filepath.Join(c.Dir, de.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			stats.Kept++
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			stats.Kept++
			continue
		}
		created, err := time.Parse(time.RFC3339, entry.CreatedAt)
		if err != nil || !created.Before(cutoff) {
			stats.Kept++
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.Dir, de.Name())); err == nil {
			stats.Removed++
		} else {
			stats.Kept++
		}
	}

	c.logger.Info("cache prune complete", "total", stats.Total, "removed", stats.Removed, "kept", stats.Kept)
	return stats, nil
}

// Stats summarizes the cache's current footprint.
type Stats struct {
	Entries   int
	TotalSize int64
}

// FormattedSize renders TotalSize in human-readable units.
func (s Stats) FormattedSize() string {
	const unit = 1024.0
	size := float64(s.TotalSize)
	switch {
	case s.TotalSize < unit:
		return fmt.Sprintf("%d B", s.TotalSize)
	case size < unit*unit:
		return fmt.Sprintf("%.1f KB", size/unit)
	case size < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", size/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", size/(unit*unit*unit))
	}
}

// Status reports the number of cache entries and their total on-disk size.
func (c *Cache) Status() (Stats, error) {
	var stats Stats
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, &errs.CacheError{Op: "readdir", Cause: err}
	}
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		stats.Entries++
		files, err := os.ReadDir(filepath.Join(c.Dir, de.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if info, err := f.Info(); err == nil {
				stats.TotalSize += info.Size()
			}
		}
	}
	return stats, nil
}
