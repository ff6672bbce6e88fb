// Package service wires the hygeia components into a Session that owns the
// caches, the engine bridge and the run tracker for one process.
package service

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of an engine run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DefaultMaxRuns bounds how many finished runs the tracker remembers.
const DefaultMaxRuns = 100

// Run is one engine invocation as seen by the tracker.
type Run struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"` // "fit", "bootnet", "nct" or "lasso"
	AnalysisID  string        `json:"analysis_id"`
	Status      RunStatus     `json:"status"`
	Timeout     time.Duration `json:"timeout"`
	ExitCode    int           `json:"exit_code"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// Snapshot returns a thread-safe copy of run state.
func (r *Run) Snapshot() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Run{
		ID:          r.ID,
		Kind:        r.Kind,
		AnalysisID:  r.AnalysisID,
		Status:      r.Status,
		Timeout:     r.Timeout,
		ExitCode:    r.ExitCode,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Elapsed is the run's wall-clock time so far, or in total once finished.
func (r *Run) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// Fraction reports elapsed time against the timeout in [0, 1]. A finished run
// reports 1.
func (r *Run) Fraction() float64 {
	r.mu.RLock()
	done := r.CompletedAt != nil
	timeout := r.Timeout
	r.mu.RUnlock()

	if done {
		return 1
	}
	if timeout <= 0 {
		return 0
	}
	return min(float64(r.Elapsed())/float64(timeout), 1)
}

// RunTracker keeps an in-memory record of engine runs.
type RunTracker struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	maxRuns int
	logger  *slog.Logger
}

// NewRunTracker creates a tracker remembering at most maxRuns runs.
func NewRunTracker(maxRuns int, logger *slog.Logger) *RunTracker {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunTracker{runs: make(map[string]*Run), maxRuns: maxRuns, logger: logger}
}

// Start registers a pending run.
func (t *RunTracker) Start(kind, analysisID string, timeout time.Duration) *Run {
	run := &Run{
		ID:         uuid.New().String()[:8],
		Kind:       kind,
		AnalysisID: analysisID,
		Status:     RunStatusPending,
		Timeout:    timeout,
		StartedAt:  time.Now(),
	}

	t.mu.Lock()
	t.runs[run.ID] = run
	t.evictLocked()
	t.mu.Unlock()

	t.logger.Debug("run created", "run_id", run.ID, "kind", kind, "analysis_id", analysisID)
	return run
}

// evictLocked drops the oldest finished runs above the limit. Caller must
// hold the write lock.
func (t *RunTracker) evictLocked() {
	if len(t.runs) <= t.maxRuns {
		return
	}
	finished := make([]*Run, 0, len(t.runs))
	for _, r := range t.runs {
		if r.Snapshot().CompletedAt != nil {
			finished = append(finished, r)
		}
	}
	slices.SortFunc(finished, func(a, b *Run) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	for _, r := range finished {
		if len(t.runs) <= t.maxRuns {
			break
		}
		delete(t.runs, r.ID)
	}
}

// SetRunning marks a run as running.
func (t *RunTracker) SetRunning(run *Run) {
	run.mu.Lock()
	run.Status = RunStatusRunning
	run.mu.Unlock()
}

// Complete marks a run as completed.
func (t *RunTracker) Complete(run *Run, exitCode int) {
	run.mu.Lock()
	run.Status = RunStatusCompleted
	run.ExitCode = exitCode
	now := time.Now()
	run.CompletedAt = &now
	run.mu.Unlock()

	t.logger.Info("run completed", "run_id", run.ID, "kind", run.Kind, "duration_ms", run.Elapsed().Milliseconds())
}

// Fail marks a run as failed with err.
func (t *RunTracker) Fail(run *Run, exitCode int, err error) {
	run.mu.Lock()
	run.Status = RunStatusFailed
	run.ExitCode = exitCode
	run.Error = err.Error()
	now := time.Now()
	run.CompletedAt = &now
	run.mu.Unlock()

	t.logger.Warn("run failed", "run_id", run.ID, "kind", run.Kind, "error", err)
}

// Get retrieves a run by ID.
func (t *RunTracker) Get(id string) *Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runs[id]
}

// List returns snapshots of all runs, most recent first.
func (t *RunTracker) List() []*Run {
	t.mu.RLock()
	runs := make([]*Run, 0, len(t.runs))
	for _, r := range t.runs {
		runs = append(runs, r.Snapshot())
	}
	t.mu.RUnlock()

	slices.SortFunc(runs, func(a, b *Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return runs
}
