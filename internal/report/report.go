// Package report turns scheduler lifecycle events into human- or
// machine-readable output: a colorized, grouped text stream for
// interactive terminals, or newline-delimited JSON for CI and scripting.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/lucasilverentand/canaveral/internal/taskgraph"
)

// Reporter receives scheduler lifecycle events in the order they occur.
// Implementations must be safe for concurrent use: tasks within a wave run
// on separate goroutines and report concurrently.
type Reporter interface {
	WaveStarted(wave, taskCount int)
	TaskStarted(id taskgraph.TaskID, command string)
	TaskOutput(id taskgraph.TaskID, line string, isStderr bool)
	TaskCompleted(id taskgraph.TaskID, cached bool, duration time.Duration)
	TaskFailed(id taskgraph.TaskID, duration time.Duration, cause error)
	TaskSkipped(id taskgraph.TaskID, reason string)
	RunCompleted(summary Summary)
}

// Summary aggregates one run's outcome across every scheduled task.
type Summary struct {
	RunID     string        `json:"run_id,omitempty"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cached    int           `json:"cached"`
	Duration  time.Duration `json:"-"`
	DurationMs int64        `json:"duration_ms"`
}

// TextReporter renders events as a scrolling, colorized, grouped-by-task
// stream, the way interactive `canaveral run` output reads. Color is
// disabled automatically when Out is not a terminal.
type TextReporter struct {
	Out     io.Writer
	NoColor bool

	mu sync.Mutex
}

// NewTextReporter builds a TextReporter writing to out, disabling color
// automatically unless out is a terminal.
func NewTextReporter(out io.Writer) *TextReporter {
	noColor := true
	if f, ok := out.(interface{ Fd() uintptr }); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &TextReporter{Out: out, NoColor: noColor}
}

func (r *TextReporter) dim(s string) string {
	if r.NoColor {
		return s
	}
	return color.New(color.Faint).Sprint(s)
}

func (r *TextReporter) bold(s string) string {
	if r.NoColor {
		return s
	}
	return color.New(color.Bold).Sprint(s)
}

func (r *TextReporter) WaveStarted(wave, taskCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "%s\n", r.dim(fmt.Sprintf("• Wave %d (%d tasks)", wave, taskCount)))
}

func (r *TextReporter) TaskStarted(id taskgraph.TaskID, command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "%s %s\n", r.bold(id.String()), r.dim(command))
}

func (r *TextReporter) TaskOutput(id taskgraph.TaskID, line string, isStderr bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "%s %s\n", r.dim(id.String()+":"), line)
}

func (r *TextReporter) TaskCompleted(id taskgraph.TaskID, cached bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "done"
	if cached {
		status = "cache hit"
	}
	marker := ">>>"
	if !r.NoColor {
		marker = color.GreenString(">>>")
	}
	fmt.Fprintf(r.Out, "%s %s %s %s\n", marker, id, status, r.dim(duration.Round(time.Millisecond).String()))
}

func (r *TextReporter) TaskFailed(id taskgraph.TaskID, duration time.Duration, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marker := "!!!"
	msg := fmt.Sprintf("%v", cause)
	if !r.NoColor {
		marker = color.RedString("!!!")
		msg = color.RedString("%v", cause)
	}
	fmt.Fprintf(r.Out, "%s %s failed %s\n", marker, id, msg)
}

func (r *TextReporter) TaskSkipped(id taskgraph.TaskID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "%s %s (%s)\n", r.dim("---"), id, reason)
}

func (r *TextReporter) RunCompleted(summary Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.Out, "\n%s %d successful, %d cached, %d failed, %d total %s\n",
		r.bold("Tasks:"), summary.Succeeded, summary.Cached, summary.Failed, summary.Total,
		r.dim(summary.Duration.Round(time.Millisecond).String()))
	if summary.RunID != "" {
		fmt.Fprintf(r.Out, "%s\n", r.dim(fmt.Sprintf("  Run: %s", summary.RunID)))
	}
}

// event is the wire shape every JSONReporter line takes.
type event struct {
	Type      string        `json:"type"`
	Wave      int           `json:"wave,omitempty"`
	TaskCount int           `json:"task_count,omitempty"`
	TaskID    string        `json:"task_id,omitempty"`
	Command   string        `json:"command,omitempty"`
	Line      string        `json:"line,omitempty"`
	Stderr    bool          `json:"stderr,omitempty"`
	Cached    bool          `json:"cached,omitempty"`
	DurationMs int64        `json:"duration_ms,omitempty"`
	Error     string        `json:"error,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Summary   *Summary      `json:"summary,omitempty"`
}

// JSONReporter emits one newline-delimited JSON object per event, for CI
// logs and scripted consumers.
type JSONReporter struct {
	Out io.Writer
	mu  sync.Mutex
}

// NewJSONReporter builds a JSONReporter writing to out.
func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{Out: out}
}

func (r *JSONReporter) emit(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	r.Out.Write(append(data, '\n'))
}

func (r *JSONReporter) WaveStarted(wave, taskCount int) {
	r.emit(event{Type: "wave_started", Wave: wave, TaskCount: taskCount})
}

func (r *JSONReporter) TaskStarted(id taskgraph.TaskID, command string) {
	r.emit(event{Type: "task_started", TaskID: id.String(), Command: command})
}

func (r *JSONReporter) TaskOutput(id taskgraph.TaskID, line string, isStderr bool) {
	r.emit(event{Type: "task_output", TaskID: id.String(), Line: line, Stderr: isStderr})
}

func (r *JSONReporter) TaskCompleted(id taskgraph.TaskID, cached bool, duration time.Duration) {
	r.emit(event{Type: "task_completed", TaskID: id.String(), Cached: cached, DurationMs: duration.Milliseconds()})
}

func (r *JSONReporter) TaskFailed(id taskgraph.TaskID, duration time.Duration, cause error) {
	r.emit(event{Type: "task_failed", TaskID: id.String(), DurationMs: duration.Milliseconds(), Error: cause.Error()})
}

func (r *JSONReporter) TaskSkipped(id taskgraph.TaskID, reason string) {
	r.emit(event{Type: "task_skipped", TaskID: id.String(), Reason: reason})
}

func (r *JSONReporter) RunCompleted(summary Summary) {
	summary.DurationMs = summary.Duration.Milliseconds()
	r.emit(event{Type: "run_completed", Summary: &summary})
}

// CollectingReporter records every event in memory, in arrival order, for
// callers (such as tests) that need the full event history rather than a
// live stream.
type CollectingReporter struct {
	mu      sync.Mutex
	Events  []string
	Results map[taskgraph.TaskID]TaskOutcome
}

// TaskOutcome is the terminal state CollectingReporter recorded for a task.
type TaskOutcome struct {
	Status   string // "completed", "failed", "skipped"
	Cached   bool
	Duration time.Duration
	Cause    error
	Reason   string
}

// NewCollectingReporter builds an empty CollectingReporter.
func NewCollectingReporter() *CollectingReporter {
	return &CollectingReporter{Results: map[taskgraph.TaskID]TaskOutcome{}}
}

func (r *CollectingReporter) WaveStarted(wave, taskCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, fmt.Sprintf("wave_started:%d:%d", wave, taskCount))
}

func (r *CollectingReporter) TaskStarted(id taskgraph.TaskID, command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "task_started:"+id.String())
}

func (r *CollectingReporter) TaskOutput(id taskgraph.TaskID, line string, isStderr bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "task_output:"+id.String())
}

func (r *CollectingReporter) TaskCompleted(id taskgraph.TaskID, cached bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "task_completed:"+id.String())
	r.Results[id] = TaskOutcome{Status: "completed", Cached: cached, Duration: duration}
}

func (r *CollectingReporter) TaskFailed(id taskgraph.TaskID, duration time.Duration, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "task_failed:"+id.String())
	r.Results[id] = TaskOutcome{Status: "failed", Duration: duration, Cause: cause}
}

func (r *CollectingReporter) TaskSkipped(id taskgraph.TaskID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, "task_skipped:"+id.String())
	r.Results[id] = TaskOutcome{Status: "skipped", Reason: reason}
}

func (r *CollectingReporter) RunCompleted(summary Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, fmt.Sprintf("run_completed:%d:%d:%d", summary.Total, summary.Succeeded, summary.Failed))
}
