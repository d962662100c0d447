// Package batch runs one configuration spec end to end: expansion, solver
// runs, result tables, optional comparison with measured data and the run
// index.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cavesweep/internal/cda"
	"github.com/banshee-data/cavesweep/internal/metrics"
	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/runner"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
	"github.com/banshee-data/cavesweep/internal/storage/sqlite"
	"github.com/banshee-data/cavesweep/internal/store"
	"github.com/banshee-data/cavesweep/internal/timeutil"
)

// ErrNoRunIndex is returned when reuse of earlier runs is requested but the
// engine has no run index.
var ErrNoRunIndex = errors.New("reuse of previous runs requires the run index")

// Request describes one batch.
type Request struct {
	Spec settings.Spec
	// Defaults is the parameter table; nil uses settings.CaveDefaults.
	Defaults  *settings.DefaultsTable
	OutputDir string

	// MeasuredPath enables comparison with measured data.
	MeasuredPath string
	Tolerances   map[string]float64

	ReusePrevious bool
	MetricsFile   string
}

// RunIndex records batches and runs in an output directory.
type RunIndex interface {
	BeginBatch(ctx context.Context, batchID string, startedAt time.Time, total int) error
	RecordRuns(ctx context.Context, batchID string, runs []sqlite.RunRecord) error
	FinishBatch(ctx context.Context, batchID string, completedAt time.Time, status string, failed, skipped, matches int) error
	CompletedRuns(ctx context.Context) (map[string]*solver.RunResult, error)
	Close() error
}

// IndexOpener opens the run index of an output directory.
type IndexOpener func(dir string) (RunIndex, error)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the engine clock.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithStore sets the result store.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Batch) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator sets the batch ID generator.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// WithIndexOpener sets how the run index is opened. A nil opener disables
// the index.
func WithIndexOpener(f IndexOpener) Option {
	return func(e *Engine) { e.openIndex = f }
}

// OpenSQLiteIndex opens the SQLite run index in dir, creating dir if needed.
func OpenSQLiteIndex(dir string) (RunIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &store.PersistenceError{Path: dir, Op: "create directory", Err: err}
	}
	x, err := sqlite.OpenInDir(dir)
	if err != nil {
		return nil, err
	}
	return x, nil
}

// Engine runs batches through one solver adapter.
type Engine struct {
	adapter   solver.Adapter
	store     *store.Store
	clock     timeutil.Clock
	metrics   *metrics.Batch
	newID     func() string
	openIndex IndexOpener

	mu          sync.Mutex
	executor    *runner.Executor
	stopPending bool
}

// NewEngine returns an engine using adapter. By default results go to the OS
// filesystem and the run index is SQLite.
func NewEngine(adapter solver.Adapter, opts ...Option) *Engine {
	e := &Engine{
		adapter:   adapter,
		clock:     timeutil.RealClock{},
		newID:     uuid.NewString,
		openIndex: OpenSQLiteIndex,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = store.New(nil)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewBatch()
	}
	return e
}

// Metrics returns the metrics sink.
func (e *Engine) Metrics() *metrics.Batch { return e.metrics }

// Stop asks a running batch to finish before its next configuration. The
// runs completed so far are still written. A Stop made while no batch is
// executing yet applies to the next Run, which then runs no configuration.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopPending = true
	if e.executor != nil {
		e.executor.Stop()
	}
}

// attach makes executor the target of Stop and hands it any pending stop.
func (e *Engine) attach(executor *runner.Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executor = executor
	if e.stopPending {
		executor.Stop()
	}
}

func (e *Engine) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executor = nil
	e.stopPending = false
}

// Run executes one batch. Configuration and measured-data errors are
// returned before any solver run. Solver failures are counted in the
// summary. Persistence errors abort the batch.
func (e *Engine) Run(ctx context.Context, req Request) (Summary, error) {
	defer e.detach()

	defaults := req.Defaults
	if defaults == nil {
		defaults = settings.CaveDefaults()
	}
	configs, err := settings.Expand(req.Spec, defaults)
	if err != nil {
		return Summary{}, err
	}
	ranges, err := settings.SweptRanges(req.Spec, defaults)
	if err != nil {
		return Summary{}, err
	}

	var matcher *cda.Matcher
	if req.MeasuredPath != "" {
		data, err := cda.LoadMeasuredFile(req.MeasuredPath)
		if err != nil {
			return Summary{}, err
		}
		tol, err := cda.ResolveTolerances(req.Tolerances, data)
		if err != nil {
			return Summary{}, &settings.ConfigurationError{Param: "tolerances", Err: err}
		}
		matcher = cda.NewMatcher(tol, data)
	}

	if req.ReusePrevious && e.openIndex == nil {
		return Summary{}, ErrNoRunIndex
	}

	sum := Summary{BatchID: e.newID(), OutputDir: req.OutputDir, Total: len(configs)}
	start := e.clock.Now()

	var index RunIndex
	if e.openIndex != nil {
		index, err = e.openIndex(req.OutputDir)
		if err != nil {
			return sum, fmt.Errorf("open run index: %w", err)
		}
		defer index.Close()
		if err := index.BeginBatch(ctx, sum.BatchID, start, len(configs)); err != nil {
			return sum, fmt.Errorf("record batch start: %w", err)
		}
	}

	execOpts := []runner.Option{runner.WithClock(e.clock), runner.WithRecorder(e.metrics)}
	if req.ReusePrevious {
		done, err := index.CompletedRuns(ctx)
		if err != nil {
			return sum, fmt.Errorf("load completed runs: %w", err)
		}
		execOpts = append(execOpts, runner.WithReuse(func(cfg settings.Configuration) (*solver.RunResult, bool) {
			res, ok := done[cfg.Fingerprint()]
			return res, ok
		}))
	}
	executor := runner.NewExecutor(e.adapter, execOpts...)
	e.attach(executor)

	monitoring.Logf("[batch] Starting batch %s: %d configurations, output %s", sum.BatchID, len(configs), req.OutputDir)

	var (
		runs      []store.Run
		records   []sqlite.RunRecord
		durations []time.Duration
		matches   []cda.MatchRecord
		outputs   []cda.OutputRecord
	)
	evaluate := func(out runner.Outcome) {
		if matcher == nil {
			return
		}
		ev := matcher.Evaluate(out.Index, out.Config, *out.Result)
		matches = append(matches, ev.Matches...)
		outputs = append(outputs, ev.Outputs...)
		sum.Pairs += ev.Pairs
	}
	for out := range executor.Execute(ctx, configs) {
		// Reused results are already in the results table and the index.
		if out.Skipped {
			sum.Skipped++
			evaluate(out)
			continue
		}
		runs = append(runs, store.Run{Index: out.Index, Config: out.Config, Result: out.Result})
		durations = append(durations, out.Duration)

		rec := sqlite.RunRecord{Fingerprint: out.Config.Fingerprint(), Index: out.Index, Duration: out.Duration}
		if out.Failed() {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Index: out.Index, Err: out.Err.Error()})
			rec.Status, rec.Error = sqlite.RunFailed, out.Err.Error()
		} else {
			sum.Succeeded++
			sum.Stages += len(out.Result.Stages)
			rec.Status, rec.Stages, rec.Result = sqlite.RunOK, len(out.Result.Stages), out.Result
			evaluate(out)
		}
		records = append(records, rec)
	}
	state := executor.State()
	sum.Stopped = state.Status == runner.StatusStopped
	sum.Matches = len(matches)
	sum.Durations = summarizeDurations(durations)

	// Completed runs are written even when the batch was stopped.
	wctx := context.WithoutCancel(ctx)

	sum.ResultsPath = filepath.Join(req.OutputDir, store.ResultsFile)
	if len(runs) > 0 {
		rep, err := e.store.AppendRuns(wctx, req.OutputDir, sum.BatchID, runs)
		if err != nil {
			return sum, err
		}
		sum.ResultsCreated = rep.Created
		e.metrics.Wrote("settings_results", rep.Rows)
	}

	if matcher != nil {
		cfgKeys := defaults.Names()
		tables := store.MatchTables{
			Matches:     matchesTable(sum.BatchID, matcher.Proxies(), cfgKeys, matches),
			AllOutputs:  allOutputsTable(sum.BatchID, matcher.Proxies(), cfgKeys, outputs),
			Tolerance:   toleranceTable(sum.BatchID, matcher.Tolerances()),
			InputRanges: inputRangesTable(sum.BatchID, ranges),
		}
		trep, err := e.store.AppendMatchTables(wctx, req.OutputDir, sum.BatchID, tables)
		if err != nil {
			return sum, err
		}
		sum.CompareCreated = trep.AllOutputs.Created
		switch {
		case trep.AllOutputs.Created:
			monitoring.Logf("[cda] Comparison initialised for the first time in %s", req.OutputDir)
		case trep.AllOutputs.Rows > 0:
			monitoring.Logf("[cda] Appending comparison results to existing tables in %s", req.OutputDir)
		default:
			monitoring.Logf("[cda] Batch %s produced no stages to compare", sum.BatchID)
		}
		e.metrics.Compared(sum.Pairs, sum.Matches)
		e.metrics.Wrote("matches", trep.Matches.Rows)
		e.metrics.Wrote("all_outputs", trep.AllOutputs.Rows)
	}

	end := e.clock.Now()
	sum.Elapsed = end.Sub(start)
	if index != nil {
		if err := index.RecordRuns(wctx, sum.BatchID, records); err != nil {
			return sum, fmt.Errorf("record runs: %w", err)
		}
		status := string(state.Status)
		if err := index.FinishBatch(wctx, sum.BatchID, end, status, sum.Failed, sum.Skipped, sum.Matches); err != nil {
			return sum, fmt.Errorf("record batch end: %w", err)
		}
	}

	e.metrics.Completed(end)
	if req.MetricsFile != "" {
		if err := e.metrics.WriteTextfile(req.MetricsFile); err != nil {
			monitoring.Logf("[batch] WARNING: failed to write metrics to %s: %v", req.MetricsFile, err)
		}
	}

	sum.log(matcher != nil)
	if sum.Stopped {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}
	return sum, nil
}
