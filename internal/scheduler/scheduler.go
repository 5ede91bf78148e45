// Package scheduler executes a task DAG wave by wave: every task in a wave
// runs concurrently (bounded by Options.Concurrency), and a wave only
// starts once every task in the previous wave has finished. Within a wave a
// failed task does not stop its siblings: the current wave runs to
// completion, and every task in all subsequent waves is marked Skipped
// unless ContinueOnError is set.
package scheduler

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/andybalholm/crlf"
	"github.com/google/uuid"
	gatedio "github.com/hashicorp/go-gatedio"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/lucasilverentand/canaveral/internal/errs"
	"github.com/lucasilverentand/canaveral/internal/report"
	"github.com/lucasilverentand/canaveral/internal/taskcache"
	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

// Status is a task's terminal state after a scheduler run attempts it.
type Status int

const (
	// StatusSuccess means the task's command ran and exited zero.
	StatusSuccess Status = iota
	// StatusCacheHit means a valid cache entry was restored instead of
	// running the command.
	StatusCacheHit
	// StatusFailed means the task's command ran and exited non-zero, or
	// could not be started.
	StatusFailed
	// StatusSkipped means the task never ran: dry run, an unresolved
	// framework adapter, or an upstream failure in a prior wave.
	StatusSkipped
)

// IsSuccess reports whether status represents a usable result (ran
// successfully or was restored from cache).
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusCacheHit
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCacheHit:
		return "cache_hit"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is one task's outcome from a scheduler run.
type Result struct {
	ID       taskgraph.TaskID
	Status   Status
	Duration time.Duration
	Stdout   string
	Stderr   string
	Err      error
}

// AdapterResolver resolves a commandless (framework-adapter) task to a
// concrete shell command. internal/adapter implements this; scheduler only
// depends on the interface to avoid a import cycle.
type AdapterResolver interface {
	Resolve(id taskgraph.TaskID) (command string, ok bool)
}

// Options configures one Execute call.
type Options struct {
	Concurrency     int
	ContinueOnError bool
	UseCache        bool
	DryRun          bool
	RootDir         string
}

// DefaultOptions returns Options with concurrency set to the number of
// logical CPUs (falling back to 4, mirroring the reference scheduler's
// std::thread::available_parallelism fallback).
func DefaultOptions(rootDir string) Options {
	n := runtime.NumCPU()
	if n < 1 {
		n = 4
	}
	return Options{Concurrency: n, RootDir: rootDir}
}

// Scheduler runs a taskgraph.Graph's waves against a real shell, optionally
// consulting a task cache and an adapter resolver, and emits every
// lifecycle event to a Reporter.
type Scheduler struct {
	Options  Options
	Cache    *taskcache.Cache
	Reporter report.Reporter
	Adapter  AdapterResolver

	logger hclog.Logger
}

// New builds a Scheduler. cache and adapter may be nil (no caching, no
// framework-adapter resolution); reporter must not be nil.
func New(opts Options, cache *taskcache.Cache, reporter report.Reporter, adapter AdapterResolver) *Scheduler {
	return &Scheduler{
		Options:  opts,
		Cache:    cache,
		Reporter: reporter,
		Adapter:  adapter,
		logger:   hclog.L().Named("scheduler"),
	}
}

// Execute runs every task in dag, wave by wave, and returns results ordered
// to match dag.Sorted() (topological order), regardless of the order in
// which goroutines within a wave actually finished.
func (s *Scheduler) Execute(ctx context.Context, dag *taskgraph.Graph) []*Result {
	runID := uuid.NewString()
	start := time.Now()
	results := make(map[taskgraph.TaskID]*Result, dag.Len())
	var resultsMu sync.Mutex

	hasFailed := false

	for waveIdx, wave := range dag.Waves() {
		if hasFailed && !s.Options.ContinueOnError {
			for _, id := range wave {
				s.Reporter.TaskSkipped(id, "upstream task failed")
				resultsMu.Lock()
				results[id] = &Result{ID: id, Status: StatusSkipped}
				resultsMu.Unlock()
			}
			continue
		}

		s.Reporter.WaveStarted(waveIdx, len(wave))

		sem := make(chan struct{}, s.concurrency())
		var wg sync.WaitGroup
		for _, id := range wave {
			id := id
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				result := s.executeTask(ctx, dag, id)
				resultsMu.Lock()
				results[id] = result
				if result.Status == StatusFailed {
					hasFailed = true
				}
				resultsMu.Unlock()
			}()
		}
		wg.Wait()
	}

	ordered := make([]*Result, 0, len(results))
	succeeded, failed, cached := 0, 0, 0
	for _, id := range dag.Sorted() {
		r, ok := results[id]
		if !ok {
			r = &Result{ID: id, Status: StatusSkipped}
		}
		ordered = append(ordered, r)
		switch r.Status {
		case StatusSuccess:
			succeeded++
		case StatusCacheHit:
			succeeded++
			cached++
		case StatusFailed:
			failed++
		}
	}

	s.Reporter.RunCompleted(report.Summary{
		RunID:     runID,
		Total:     len(ordered),
		Succeeded: succeeded,
		Failed:    failed,
		Cached:    cached,
		Duration:  time.Since(start),
	})

	return ordered
}

func (s *Scheduler) concurrency() int {
	if s.Options.Concurrency > 0 {
		return s.Options.Concurrency
	}
	return 1
}

func (s *Scheduler) executeTask(ctx context.Context, dag *taskgraph.Graph, id taskgraph.TaskID) *Result {
	node := dag.Get(id)
	def := node.Definition

	command := def.Command
	if command == "" {
		if s.Adapter != nil {
			if resolved, ok := s.Adapter.Resolve(id); ok {
				command = resolved
			}
		}
		if command == "" {
			s.Reporter.TaskSkipped(id, "framework adapter not resolved")
			return &Result{ID: id, Status: StatusSkipped}
		}
	}

	s.Reporter.TaskStarted(id, command)

	if s.Options.DryRun {
		s.Reporter.TaskSkipped(id, "dry run")
		return &Result{ID: id, Status: StatusSkipped}
	}

	var cacheKey taskcache.Key
	cacheable := s.Options.UseCache && s.Cache != nil && len(def.Outputs) > 0
	if cacheable {
		key, err := taskcache.ComputeKey(id, def, s.Options.RootDir)
		if err != nil {
			s.logger.Warn("failed to compute cache key, running uncached", "task", id, "error", err)
			cacheable = false
		} else {
			cacheKey = key
			if entry, err := s.Cache.Lookup(key); err == nil && entry != nil {
				if err := s.Cache.RestoreOutputs(key, entry, s.Options.RootDir); err == nil {
					duration := time.Duration(entry.DurationMs) * time.Millisecond
					s.Reporter.TaskCompleted(id, true, duration)
					return &Result{ID: id, Status: StatusCacheHit, Duration: duration, Stdout: entry.Stdout, Stderr: entry.Stderr}
				}
			}
		}
	}

	start := time.Now()
	stdout, stderr, err := s.runCommand(ctx, id, command)
	duration := time.Since(start)

	if err != nil {
		tail := stderr
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		failure := &errs.TaskFailure{TaskID: id.String(), ExitCode: exitCode, StderrTail: tail}
		s.Reporter.TaskFailed(id, duration, failure)
		return &Result{ID: id, Status: StatusFailed, Duration: duration, Stdout: stdout, Stderr: stderr, Err: failure}
	}

	if cacheable {
		if _, err := s.Cache.Store(id, def, s.Options.RootDir, stdout, stderr, duration); err != nil {
			s.logger.Warn("failed to store cache entry", "task", id, "key", cacheKey, "error", err)
		}
	}

	s.Reporter.TaskCompleted(id, false, duration)
	return &Result{ID: id, Status: StatusSuccess, Duration: duration, Stdout: stdout, Stderr: stderr}
}

// runCommand runs command in a shell rooted at the workspace root,
// streaming each output line to the reporter as it arrives while also
// recording the full stdout/stderr for cache storage. Child output is
// passed through crlf.NewReader first so a stray \r left by a
// Windows-built tool doesn't end up embedded in cached output or reporter
// lines; the recording buffer itself is hashicorp/go-gatedio's
// concurrency-safe Buffer, since the two stream-reader goroutines and the
// scheduler goroutine all touch it.
func (s *Scheduler) runCommand(ctx context.Context, id taskgraph.TaskID, command string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.Options.RootDir

	stdoutBuf := gatedio.NewByteBuffer()
	stderrBuf := gatedio.NewByteBuffer()

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", err
	}

	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go s.streamLines(&wg, stdoutPipe, stdoutBuf, id, false)
	go s.streamLines(&wg, stderrPipe, stderrBuf, id, true)
	wg.Wait()

	err = cmd.Wait()
	return stdoutBuf.String(), stderrBuf.String(), err
}

func (s *Scheduler) streamLines(wg *sync.WaitGroup, pipe io.Reader, buf *gatedio.Buffer, id taskgraph.TaskID, isStderr bool) {
	defer wg.Done()
	tee := io.TeeReader(crlf.NewReader(pipe), buf)
	scanner := bufio.NewScanner(tee)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.Reporter.TaskOutput(id, scanner.Text(), isStderr)
	}
}
