// Package scan sequences stage moves and sample reads into line and raster
// scans.
//
// An Engine owns the stage model and the sampler for its whole life. Scans are
// serialised: a second scan requested while one is running is rejected with
// ErrScanInProgress. Cancellation is cooperative; the flag set by
// RequestCancel is polled before every measurement and after every completed
// raster row, never while a move or sample is in flight.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/sampler"
	"github.com/banshee-data/stagescan/internal/stage"
	"github.com/banshee-data/stagescan/internal/timeutil"
)

// Config tunes an Engine. Zero values select defaults.
type Config struct {
	// Envelope is the stage travel that geometries are validated against.
	Envelope geometry.Envelope

	// HomingDirection selects the endstop HomeAllAxes drives to: negative
	// for the minimum, positive for the maximum.
	HomingDirection int

	// SettleTime is waited after every move before sampling.
	SettleTime time.Duration

	Clock timeutil.Clock

	// OnResult, when set, is called with a copy of every completed scan
	// result.
	OnResult func(*Result)

	// Metrics may be nil.
	Metrics *monitoring.Metrics
}

// Engine runs scans against one stage and one sampler.
type Engine struct {
	model   *stage.Model
	sampler sampler.Sampler
	cfg     Config
	clock   timeutil.Clock
	logf    func(format string, v ...interface{})

	scanMu sync.Mutex // held for the duration of a scan or homing run
	cancel atomic.Bool
	closed atomic.Bool
	wg     sync.WaitGroup

	mu      sync.RWMutex
	status  Status
	started time.Time
	stop    context.CancelFunc
}

// NewEngine returns an engine driving model and reading from smp.
func NewEngine(model *stage.Model, smp sampler.Sampler, cfg Config) *Engine {
	if cfg.Envelope == (geometry.Envelope{}) {
		cfg.Envelope = geometry.DefaultEnvelope()
	}
	if cfg.HomingDirection == 0 {
		cfg.HomingDirection = -1
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{
		model:   model,
		sampler: smp,
		cfg:     cfg,
		clock:   clock,
		logf:    monitoring.Prefixed("scan"),
		status:  Status{State: StateIdle},
	}
}

// Model returns the stage model driven by the engine.
func (e *Engine) Model() *stage.Model { return e.model }

// Envelope returns the travel envelope geometries are validated against.
func (e *Engine) Envelope() geometry.Envelope { return e.cfg.Envelope }

// Run2D performs a raster scan and blocks until it completes, aborts or
// fails. X is the outer axis: every row is a sweep along Y, and progress is
// called with the index of each completed row.
func (e *Engine) Run2D(ctx context.Context, r geometry.Raster, p Params, progress ProgressFunc) Report {
	if err := e.acquire(); err != nil {
		return Report{State: StateFailed, Err: &Failure{Phase: StateIdle, Err: err}}
	}
	defer e.scanMu.Unlock()
	return e.run2D(ctx, e.begin2D(r, p), r, p, progress)
}

// Run1D performs a line scan along l.Axis with the other axis held at
// l.OffAxis, and blocks until it completes, aborts or fails.
func (e *Engine) Run1D(ctx context.Context, l geometry.Line, p Params) Report {
	if err := e.acquire(); err != nil {
		return Report{State: StateFailed, Err: &Failure{Phase: StateIdle, Err: err}}
	}
	defer e.scanMu.Unlock()
	return e.run1D(ctx, e.begin1D(l, p), l, p)
}

// Start2D starts a raster scan on a worker goroutine and returns once the
// engine has been claimed. State reports the new scan's ID as soon as Start2D
// returns. ctx bounds the scan, not the call.
func (e *Engine) Start2D(ctx context.Context, r geometry.Raster, p Params) error {
	return e.startAsync(ctx, func() func(context.Context) {
		res := e.begin2D(r, p)
		return func(ctx context.Context) { e.run2D(ctx, res, r, p, nil) }
	})
}

// Start1D starts a line scan on a worker goroutine.
func (e *Engine) Start1D(ctx context.Context, l geometry.Line, p Params) error {
	return e.startAsync(ctx, func() func(context.Context) {
		res := e.begin1D(l, p)
		return func(ctx context.Context) { e.run1D(ctx, res, l, p) }
	})
}

// startAsync claims the engine, runs prepare on the caller's goroutine and
// the function it returns on a worker.
func (e *Engine) startAsync(ctx context.Context, prepare func() func(context.Context)) error {
	if err := e.acquire(); err != nil {
		return err
	}
	run := prepare()
	scanCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.stop = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.scanMu.Unlock()
		defer cancel()
		run(scanCtx)
	}()
	return nil
}

// RequestCancel asks the running scan to stop at its next poll point. It is
// idempotent and a no-op when idle, since the flag is cleared when a scan
// starts.
func (e *Engine) RequestCancel() {
	e.cancel.Store(true)
}

// HomeAllAxes homes axis x then axis y towards the configured endstop.
func (e *Engine) HomeAllAxes() error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.scanMu.Unlock()

	e.setState(StateHoming)
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		if err := e.model.Home(axis, e.cfg.HomingDirection); err != nil {
			e.cfg.Metrics.Homed(err)
			e.finishIdle(err)
			return err
		}
	}
	e.cfg.Metrics.Homed(nil)
	e.finishIdle(nil)
	return nil
}

// Reconnect reopens the stage link, and the sampler transport when the
// sampler supports it. Every axis must be homed afterwards.
func (e *Engine) Reconnect() error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.scanMu.Unlock()
	if err := e.model.Reconnect(); err != nil {
		return err
	}
	e.logf("stage reconnected, homing required")
	if rc, ok := e.sampler.(sampler.Reconnecter); ok {
		if err := rc.Reconnect(); err != nil {
			return err
		}
		e.logf("sampler reconnected")
	}
	return nil
}

// State returns a snapshot of the current or most recent scan. The snapshot
// carries its own copy of the last completed result.
func (e *Engine) State() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Result = s.Result.Clone()
	if !s.State.Terminal() && s.State != StateIdle {
		s.Remaining = estimateRemaining(e.clock.Since(e.started), s.PointsDone, s.PointsTotal)
	}
	return s
}

// Close stops any running scan, waits for it to finish and releases the
// instrument handle. Later calls return ErrClosed from every scan entry point.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel.Store(true)
	e.mu.Lock()
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.scanMu.Lock()
	defer e.scanMu.Unlock()
	return e.model.Close()
}

func (e *Engine) acquire() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.scanMu.TryLock() {
		return ErrScanInProgress
	}
	if e.closed.Load() {
		e.scanMu.Unlock()
		return ErrClosed
	}
	return nil
}

func (e *Engine) begin2D(r geometry.Raster, p Params) *Result {
	nx, ny := r.Points()
	res := e.begin(Kind2D, p, nx, nx*ny)
	raster := r
	res.Raster = &raster
	return res
}

func (e *Engine) begin1D(l geometry.Line, p Params) *Result {
	res := e.begin(Kind1D, p, 0, l.Points())
	line := l
	res.Line = &line
	return res
}

func (e *Engine) run2D(ctx context.Context, res *Result, r geometry.Raster, p Params, progress ProgressFunc) Report {
	e.setState(StateValidating)
	if err := validateParams(p); err != nil {
		return e.fail(StateValidating, err)
	}
	if err := geometry.Validate2D(r, e.cfg.Envelope); err != nil {
		return e.fail(StateValidating, err)
	}
	// Bounded by geometry.MaxPoints once validated.
	nx, ny := r.Points()
	e.logf("starting 2D scan %s: %dx%d points from (%g, %g)", res.ID, nx, ny, r.Start[stage.X], r.Start[stage.Y])

	e.setState(StatePositioning)
	if err := e.model.MoveAbsolute(stage.X, r.Start[stage.X]); err != nil {
		return e.fail(StatePositioning, err)
	}
	e.settle()

	res.Grid = make([][]float64, 0, nx)
	for i := 0; i < nx; i++ {
		row, aborted, err := e.sweep(ctx, stage.Y, r.Start[stage.Y], r.Step[stage.Y], ny, p)
		if err != nil {
			return e.fail(StateSampling, err)
		}
		if aborted {
			return e.abort(res)
		}
		res.Grid = append(res.Grid, row)
		e.rowDone(i + 1)
		if progress != nil {
			progress(i)
		}
		if e.shouldStop(ctx) {
			return e.abort(res)
		}
		if i < nx-1 {
			e.setState(StatePositioning)
			if err := e.model.MoveRelative(stage.X, r.Step[stage.X]); err != nil {
				return e.fail(StatePositioning, err)
			}
			e.settle()
		}
	}
	return e.complete(res)
}

func (e *Engine) run1D(ctx context.Context, res *Result, l geometry.Line, p Params) Report {
	e.setState(StateValidating)
	if err := validateParams(p); err != nil {
		return e.fail(StateValidating, err)
	}
	if err := geometry.Validate1D(l, e.cfg.Envelope); err != nil {
		return e.fail(StateValidating, err)
	}
	n := l.Points()
	e.logf("starting 1D scan %s: %d points along %s from %g, %s held at %g",
		res.ID, n, l.Axis, l.Start, l.Axis.Other(), l.OffAxis)

	e.setState(StatePositioning)
	if err := e.model.MoveAbsolute(l.Axis.Other(), l.OffAxis); err != nil {
		return e.fail(StatePositioning, err)
	}

	values, aborted, err := e.sweep(ctx, l.Axis, l.Start, l.Step, n, p)
	if err != nil {
		return e.fail(StateSampling, err)
	}
	if aborted {
		return e.abort(res)
	}
	res.Values = values
	return e.complete(res)
}

// sweep measures n points along axis from start. It reports aborted when the
// cancel flag or ctx is observed before a measurement.
func (e *Engine) sweep(ctx context.Context, axis stage.Axis, start, step float64, n int, p Params) ([]float64, bool, error) {
	e.setState(StatePositioning)
	if err := e.model.MoveAbsolute(axis, start); err != nil {
		return nil, false, &Failure{Phase: StatePositioning, Err: err}
	}
	values := make([]float64, 0, n)
	for j := 0; j < n; j++ {
		if j > 0 {
			e.setState(StatePositioning)
			if err := e.model.MoveRelative(axis, step); err != nil {
				return nil, false, &Failure{Phase: StatePositioning, Err: err}
			}
		}
		e.settle()
		if e.shouldStop(ctx) {
			return nil, true, nil
		}

		e.setState(StateSampling)
		v, err := aggregate.Collect(e.sampler, p.SampleCount, p.Statistic)
		if err != nil {
			return nil, false, &Failure{Phase: StateSampling, Err: err}
		}
		values = append(values, v)
		e.pointDone()
	}
	return values, false, nil
}

// shouldStop consumes a pending cancel request. A closed engine always stops.
func (e *Engine) shouldStop(ctx context.Context) bool {
	if e.cancel.CompareAndSwap(true, false) || e.closed.Load() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (e *Engine) settle() {
	if e.cfg.SettleTime > 0 {
		e.clock.Sleep(e.cfg.SettleTime)
	}
}

func validateParams(p Params) error {
	if !p.Statistic.Valid() {
		return fmt.Errorf("%w: %q", aggregate.ErrInvalidStatistic, string(p.Statistic))
	}
	if p.SampleCount <= 0 {
		return fmt.Errorf("%w: %d", aggregate.ErrInvalidSampleCount, p.SampleCount)
	}
	return nil
}

func (e *Engine) begin(kind Kind, p Params, rows, points int) *Result {
	e.cancel.Store(false)
	now := e.clock.Now()
	res := &Result{
		ID:          uuid.NewString(),
		Kind:        kind,
		SampleCount: p.SampleCount,
		Statistic:   p.Statistic,
		StartedAt:   now,
	}

	e.mu.Lock()
	e.started = now
	e.status = Status{
		State:       StateValidating,
		Kind:        kind,
		ScanID:      res.ID,
		RowsTotal:   rows,
		PointsTotal: points,
		StartedAt:   &now,
	}
	e.mu.Unlock()
	e.cfg.Metrics.ScanStarted()
	return res
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.status.State = s
	e.mu.Unlock()
}

func (e *Engine) pointDone() {
	e.mu.Lock()
	e.status.PointsDone++
	e.mu.Unlock()
	e.cfg.Metrics.PointMeasured()
}

func (e *Engine) rowDone(rows int) {
	e.mu.Lock()
	e.status.RowsDone = rows
	total := e.status.RowsTotal
	remaining := estimateRemaining(e.clock.Since(e.started), e.status.PointsDone, e.status.PointsTotal)
	e.mu.Unlock()
	e.logf("row %d/%d complete, %s remaining", rows, total, remaining.Round(time.Second))
}

func (e *Engine) complete(res *Result) Report {
	now := e.clock.Now()
	res.CompletedAt = now

	e.mu.Lock()
	e.status.State = StateCompleted
	e.status.FinishedAt = &now
	e.status.Result = res.Clone()
	e.mu.Unlock()
	e.cfg.Metrics.ScanFinished(string(res.Kind), string(StateCompleted), now.Sub(res.StartedAt).Seconds())

	e.logf("scan %s completed: %d measurements", res.ID, res.Measurements())
	if e.cfg.OnResult != nil {
		e.cfg.OnResult(res.Clone())
	}
	return Report{State: StateCompleted, Result: res}
}

func (e *Engine) abort(res *Result) Report {
	now := e.clock.Now()
	e.mu.Lock()
	e.status.State = StateAborted
	e.status.FinishedAt = &now
	e.mu.Unlock()
	e.cfg.Metrics.ScanFinished(string(res.Kind), string(StateAborted), 0)

	e.logf("scan %s aborted", res.ID)
	return Report{State: StateAborted}
}

func (e *Engine) fail(phase State, err error) Report {
	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Phase: phase, Err: err}
	}
	now := e.clock.Now()
	e.mu.Lock()
	e.status.State = StateFailed
	e.status.FinishedAt = &now
	e.status.Error = f.Error()
	kind := e.status.Kind
	e.mu.Unlock()
	e.cfg.Metrics.ScanFinished(string(kind), string(StateFailed), 0)

	e.logf("scan failed: %v", f)
	return Report{State: StateFailed, Err: f}
}

// finishIdle returns the engine to idle after a homing run, recording err.
func (e *Engine) finishIdle(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = StateIdle
	e.status.Error = ""
	if err != nil {
		e.status.Error = err.Error()
	}
}
