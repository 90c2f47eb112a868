package scan

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrScanInProgress is returned when a scan is requested while another
	// holds the engine.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("scan engine closed")
)

// State is the position of a scan in its lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateHoming      State = "homing"
	StatePositioning State = "positioning"
	StateSampling    State = "sampling"
	StateCompleted   State = "completed"
	StateAborted     State = "aborted"
	StateFailed      State = "failed"
)

// Terminal reports whether s ends a scan.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Failure carries the cause of a failed scan and the phase it failed in.
type Failure struct {
	Phase State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("scan failed while %s: %v", f.Phase, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Report is the outcome of one scan invocation. Result is set only when State
// is StateCompleted and Err only when State is StateFailed.
type Report struct {
	State  State
	Result *Result
	Err    error
}

// Status is a snapshot of the engine for callers polling an asynchronous
// scan.
type Status struct {
	State       State      `json:"state"`
	Kind        Kind       `json:"kind,omitempty"`
	ScanID      string     `json:"scan_id,omitempty"`
	RowsDone    int        `json:"rows_done"`
	RowsTotal   int        `json:"rows_total"`
	PointsDone  int        `json:"points_done"`
	PointsTotal int        `json:"points_total"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Remaining is the estimated time left, extrapolated from the time taken
	// by the points measured so far.
	Remaining time.Duration `json:"remaining_ns,omitempty"`

	Error  string  `json:"error,omitempty"`
	Result *Result `json:"-"`
}

// ProgressFunc receives the 0-based index of each completed outer row of a
// raster scan.
type ProgressFunc func(row int)

func estimateRemaining(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	return time.Duration(float64(elapsed) * float64(total-done) / float64(done))
}
