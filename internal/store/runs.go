package store

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoRuns is returned when no run has been recorded yet.
	ErrNoRuns = errors.New("no runs recorded")
)

// RunResult is the recorded outcome of one ETL run.
type RunResult struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Stage      string    `json:"stage"` // last stage reached
	Rows       int       `json:"rows"`  // rows loaded on success
	Error      string    `json:"error,omitempty"`
}

// Succeeded reports whether the run completed without error.
func (r RunResult) Succeeded() bool {
	return r.Error == ""
}

// RunHistory is a concurrency-safe in-memory record of recent run outcomes.
type RunHistory struct {
	mu sync.RWMutex

	runs []RunResult

	// retention configuration
	maxCount int           // max number of retained results (0 = unlimited)
	maxAge   time.Duration // max age of retained results (0 = unlimited)
}

// NewRunHistory creates a RunHistory with optional retention limits.
// If maxCount is <= 0, it is treated as unlimited.
func NewRunHistory(maxCount int, maxAge time.Duration) *RunHistory {
	return &RunHistory{
		maxCount: maxCount,
		maxAge:   maxAge,
	}
}

// Append records a run outcome and enforces retention.
func (h *RunHistory) Append(result RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs = append(h.runs, result)

	// Enforce retention by count.
	if h.maxCount > 0 && len(h.runs) > h.maxCount {
		over := len(h.runs) - h.maxCount
		h.runs = h.runs[over:]
	}

	// Enforce retention by age.
	if h.maxAge > 0 {
		cutoff := time.Now().Add(-h.maxAge)
		i := 0
		for ; i < len(h.runs); i++ {
			if !h.runs[i].StartedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			h.runs = h.runs[i:]
		}
	}
}

// Latest returns the most recently recorded run.
func (h *RunHistory) Latest() (RunResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.runs) == 0 {
		return RunResult{}, ErrNoRuns
	}
	return h.runs[len(h.runs)-1], nil
}

// Recent returns up to limit results, newest first.
func (h *RunHistory) Recent(limit int) []RunResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.runs)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]RunResult, 0, n)
	for i := len(h.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.runs[i])
	}
	return out
}
