// Package async runs index rebuilds in the background with progress
// tracking, de-duplication of concurrent requests and a circuit breaker for
// automatic recovery.
package async

import (
	"sync"
	"time"
)

// Status represents the overall rebuild state.
type Status string

const (
	// StatusIdle indicates no rebuild has run yet.
	StatusIdle Status = "idle"
	// StatusRebuilding indicates a rebuild is in progress.
	StatusRebuilding Status = "rebuilding"
	// StatusReady indicates the last rebuild completed.
	StatusReady Status = "ready"
	// StatusError indicates the last rebuild failed.
	StatusError Status = "error"
)

// Stage represents the current stage of a rebuild.
type Stage string

const (
	// StageListing indicates entities are being read from the source.
	StageListing Stage = "listing"
	// StageIndexing indicates documents are being written.
	StageIndexing Stage = "indexing"
)

// ProgressSnapshot is an immutable snapshot of rebuild progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	Total          int     `json:"total"`
	Done           int     `json:"done"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Runs           int     `json:"runs"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of rebuild progress.
type Progress struct {
	mu sync.RWMutex

	status       Status
	stage        Stage
	total        int
	done         int
	runs         int
	startTime    time.Time
	errorMessage string
}

// NewProgress creates an idle progress tracker.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

// Begin resets the tracker for a new rebuild.
func (p *Progress) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusRebuilding
	p.stage = StageListing
	p.total = 0
	p.done = 0
	p.runs++
	p.startTime = time.Now()
	p.errorMessage = ""
}

// SetStage updates the current stage and its total count.
func (p *Progress) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.done = 0
}

// Update records the number of items done in the current stage.
func (p *Progress) Update(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
}

// SetError marks the rebuild as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the rebuild as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.stage = ""
}

// IsRebuilding returns true while a rebuild is in progress.
func (p *Progress) IsRebuilding() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRebuilding
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.total > 0 {
		progressPct = float64(p.done) / float64(p.total) * 100.0
	}
	var elapsed int
	if !p.startTime.IsZero() {
		elapsed = int(time.Since(p.startTime).Seconds())
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		Total:          p.total,
		Done:           p.done,
		ProgressPct:    progressPct,
		ElapsedSeconds: elapsed,
		Runs:           p.runs,
		ErrorMessage:   p.errorMessage,
	}
}
