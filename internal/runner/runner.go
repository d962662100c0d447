// Package runner executes configurations through a solver one at a time and
// streams the outcomes in input order.
package runner

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
	"github.com/banshee-data/cavesweep/internal/timeutil"
)

// Status represents the current state of an execution.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusStopped  Status = "stopped"
)

// State is a snapshot of execution progress.
type State struct {
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Error       string     `json:"error,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
}

// Outcome is the result of one configuration. Exactly one of Result and Err
// is set. A Skipped outcome carries the Result reused from an earlier run.
type Outcome struct {
	Index    int
	Config   settings.Configuration
	Result   *solver.RunResult
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Failed reports whether the solver run failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Recorder receives per-run measurements.
type Recorder interface {
	RunFinished(d time.Duration, err error)
	RunSkipped()
}

// ReuseFunc returns the stored result of a configuration that need not be
// run again, for example because an earlier batch already completed it.
type ReuseFunc func(cfg settings.Configuration) (*solver.RunResult, bool)

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used to time runs.
func WithClock(c timeutil.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithRecorder sets a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithReuse sets the lookup for configurations that need not be run.
func WithReuse(f ReuseFunc) Option {
	return func(e *Executor) { e.reuse = f }
}

// Executor runs configurations sequentially through an Adapter.
type Executor struct {
	adapter  solver.Adapter
	clock    timeutil.Clock
	recorder Recorder
	reuse    ReuseFunc

	stop  atomic.Bool
	mu    sync.RWMutex
	state State
}

// NewExecutor creates an executor for the given adapter.
func NewExecutor(adapter solver.Adapter, opts ...Option) *Executor {
	e := &Executor{
		adapter: adapter,
		clock:   timeutil.RealClock{},
		state:   State{Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the current execution state.
func (e *Executor) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state := e.state
	state.Warnings = append([]string(nil), e.state.Warnings...)
	return state
}

// Stop asks the running execution to finish before its next configuration.
// The run in flight is allowed to complete. A Stop made before Execute
// starts iterating ends that execution before its first configuration. The
// request is consumed by the execution it stops.
func (e *Executor) Stop() {
	e.stop.Store(true)
}

func (e *Executor) addWarning(msg string) {
	e.mu.Lock()
	e.state.Warnings = append(e.state.Warnings, msg)
	e.mu.Unlock()
}

// Execute returns a lazy sequence of outcomes in the order of configs. Each
// iteration re-runs the whole sequence. Solver failures are reported per
// outcome and never end the sequence. Cancelling ctx or calling Stop ends
// the sequence before the next configuration starts.
func (e *Executor) Execute(ctx context.Context, configs []settings.Configuration) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		e.begin(len(configs))

		for i, cfg := range configs {
			if err := ctx.Err(); err != nil {
				e.finish(StatusStopped, fmt.Sprintf("stopped at configuration %d/%d: %v", i+1, len(configs), err))
				return
			}
			if e.stop.CompareAndSwap(true, false) {
				e.finish(StatusStopped, fmt.Sprintf("stopped at configuration %d/%d", i+1, len(configs)))
				return
			}

			out := e.runOne(ctx, i, len(configs), cfg)
			if !yield(out) {
				e.finish(StatusStopped, fmt.Sprintf("consumer stopped after configuration %d/%d", i+1, len(configs)))
				return
			}
		}
		// A stop that arrived during the last run has nothing left to stop.
		e.stop.Store(false)
		e.finish(StatusComplete, "")
	}
}

func (e *Executor) runOne(ctx context.Context, i, total int, cfg settings.Configuration) Outcome {
	out := Outcome{Index: i, Config: cfg}

	if res, ok := e.lookup(cfg); ok {
		out.Skipped, out.Result = true, res
		monitoring.Logf("[runner] Configuration %d/%d already completed, reusing its result", i+1, total)
		if e.recorder != nil {
			e.recorder.RunSkipped()
		}
		e.mu.Lock()
		e.state.Completed++
		e.state.Skipped++
		e.mu.Unlock()
		return out
	}

	monitoring.Logf("[runner] Configuration %d/%d", i+1, total)
	start := e.clock.Now()
	res, err := e.adapter.Run(ctx, cfg)
	out.Duration = e.clock.Since(start)
	if err == nil && len(res.Stages) == 0 {
		err = solver.ErrNoStages
	}
	if e.recorder != nil {
		e.recorder.RunFinished(out.Duration, err)
	}

	if err != nil {
		out.Err = &solver.ExecutionError{Index: i, Fingerprint: cfg.Fingerprint(), Err: err}
		monitoring.Logf("[runner] ERROR: configuration %d/%d failed: %v", i+1, total, err)
		e.addWarning(out.Err.Error())
	} else {
		out.Result = &res
	}

	e.mu.Lock()
	e.state.Completed++
	if err != nil {
		e.state.Failed++
	}
	e.mu.Unlock()
	return out
}

func (e *Executor) lookup(cfg settings.Configuration) (*solver.RunResult, bool) {
	if e.reuse == nil {
		return nil, false
	}
	res, ok := e.reuse(cfg)
	return res, ok && res != nil
}

func (e *Executor) begin(total int) {
	now := e.clock.Now()
	e.mu.Lock()
	e.state = State{
		Status:    StatusRunning,
		StartedAt: &now,
		Total:     total,
	}
	e.mu.Unlock()
}

func (e *Executor) finish(status Status, msg string) {
	now := e.clock.Now()
	e.mu.Lock()
	e.state.Status = status
	e.state.CompletedAt = &now
	e.state.Error = msg
	completed, failed := e.state.Completed, e.state.Failed
	e.mu.Unlock()

	if msg != "" {
		monitoring.Logf("[runner] %s", msg)
	}
	monitoring.Logf("[runner] Execution %s: %d configurations run, %d failed", status, completed, failed)
}
