package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
	"github.com/banshee-data/cavesweep/internal/timeutil"
)

func quietLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func fiveConfigs(t *testing.T) []settings.Configuration {
	t.Helper()
	configs, err := settings.Expand(settings.Spec{"temperature": "10:14:1"}, settings.CaveDefaults())
	require.NoError(t, err)
	require.Len(t, configs, 5)
	return configs
}

// stubAdapter fails on the configured temperatures and records call order.
type stubAdapter struct {
	failOn map[float64]bool
	calls  []float64
	onRun  func(n int)
}

func (s *stubAdapter) Run(ctx context.Context, cfg settings.Configuration) (solver.RunResult, error) {
	temp, _ := cfg.Float("temperature")
	s.calls = append(s.calls, temp)
	if s.onRun != nil {
		s.onRun(len(s.calls))
	}
	if s.failOn[temp] {
		return solver.RunResult{}, errors.New("no convergence")
	}
	return solver.RunResult{
		Keys:   []string{"temperature"},
		Stages: []solver.Stage{{Desc: "precip_1", Precipitated: true, Values: map[string]float64{"temperature": temp}}},
	}, nil
}

func collect(seq func(func(Outcome) bool)) []Outcome {
	var out []Outcome
	seq(func(o Outcome) bool {
		out = append(out, o)
		return true
	})
	return out
}

func TestExecute_FailureIsolation(t *testing.T) {
	quietLogs(t)
	adapter := &stubAdapter{failOn: map[float64]bool{12: true}}
	e := NewExecutor(adapter)

	outcomes := collect(e.Execute(context.Background(), fiveConfigs(t)))
	require.Len(t, outcomes, 5)

	var ok, failed int
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		if o.Failed() {
			failed++
			assert.Nil(t, o.Result)
			var execErr *solver.ExecutionError
			require.True(t, errors.As(o.Err, &execErr))
			assert.Equal(t, 2, execErr.Index)
			assert.Equal(t, o.Config.Fingerprint(), execErr.Fingerprint)
		} else {
			ok++
			require.NotNil(t, o.Result)
		}
	}
	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, failed)

	state := e.State()
	assert.Equal(t, StatusComplete, state.Status)
	assert.Equal(t, 5, state.Completed)
	assert.Equal(t, 1, state.Failed)
	assert.Len(t, state.Warnings, 1)
}

func TestExecute_PreservesOrder(t *testing.T) {
	quietLogs(t)
	adapter := &stubAdapter{}
	e := NewExecutor(adapter)

	outcomes := collect(e.Execute(context.Background(), fiveConfigs(t)))
	require.Len(t, outcomes, 5)
	assert.Equal(t, []float64{10, 11, 12, 13, 14}, adapter.calls)
	for i, o := range outcomes {
		v, _ := o.Result.Stages[0].Value("temperature")
		assert.Equal(t, float64(10+i), v)
	}
}

func TestExecute_Restartable(t *testing.T) {
	quietLogs(t)
	adapter := &stubAdapter{}
	e := NewExecutor(adapter)
	seq := e.Execute(context.Background(), fiveConfigs(t))

	assert.Len(t, collect(seq), 5)
	assert.Len(t, collect(seq), 5)
	assert.Len(t, adapter.calls, 10, "each iteration re-runs every configuration")
}

func TestExecute_Lazy(t *testing.T) {
	quietLogs(t)
	adapter := &stubAdapter{}
	e := NewExecutor(adapter)

	seq := e.Execute(context.Background(), fiveConfigs(t))
	assert.Empty(t, adapter.calls, "nothing runs until iteration")

	var n int
	seq(func(Outcome) bool {
		n++
		return n < 2
	})
	assert.Len(t, adapter.calls, 2)
	assert.Equal(t, StatusStopped, e.State().Status)
}

func TestExecute_StopBeforeNextConfiguration(t *testing.T) {
	quietLogs(t)
	var e *Executor
	adapter := &stubAdapter{onRun: func(n int) {
		if n == 2 {
			e.Stop()
		}
	}}
	e = NewExecutor(adapter)

	outcomes := collect(e.Execute(context.Background(), fiveConfigs(t)))
	assert.Len(t, outcomes, 2, "the run in flight completes")
	assert.Equal(t, StatusStopped, e.State().Status)
	assert.NotEmpty(t, e.State().Error)
}

func TestExecute_StopBeforeFirstConfiguration(t *testing.T) {
	quietLogs(t)
	adapter := &stubAdapter{}
	e := NewExecutor(adapter)

	e.Stop()
	outcomes := collect(e.Execute(context.Background(), fiveConfigs(t)))
	assert.Empty(t, outcomes)
	assert.Empty(t, adapter.calls)
	assert.Equal(t, StatusStopped, e.State().Status)

	// The stop was consumed; the next execution runs everything.
	outcomes = collect(e.Execute(context.Background(), fiveConfigs(t)))
	assert.Len(t, outcomes, 5)
	assert.Equal(t, StatusComplete, e.State().Status)
}

func TestExecute_ContextCancelled(t *testing.T) {
	quietLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &stubAdapter{onRun: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	e := NewExecutor(adapter)

	outcomes := collect(e.Execute(ctx, fiveConfigs(t)))
	assert.Len(t, outcomes, 3)
	assert.Equal(t, StatusStopped, e.State().Status)
}

func TestExecute_ZeroStagesIsFailure(t *testing.T) {
	quietLogs(t)
	adapter := solver.AdapterFunc(func(ctx context.Context, cfg settings.Configuration) (solver.RunResult, error) {
		return solver.RunResult{}, nil
	})
	e := NewExecutor(adapter)

	outcomes := collect(e.Execute(context.Background(), fiveConfigs(t)[:1]))
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, solver.ErrNoStages)
}

type countingRecorder struct {
	durations []time.Duration
	errs      int
	skipped   int
}

func (c *countingRecorder) RunFinished(d time.Duration, err error) {
	c.durations = append(c.durations, d)
	if err != nil {
		c.errs++
	}
}

func (c *countingRecorder) RunSkipped() { c.skipped++ }

func TestExecute_ReuseAndRecorder(t *testing.T) {
	quietLogs(t)
	configs := fiveConfigs(t)
	stored := &solver.RunResult{Stages: []solver.Stage{{Desc: "precip"}}}
	done := map[string]*solver.RunResult{configs[0].Fingerprint(): stored, configs[4].Fingerprint(): stored}

	rec := &countingRecorder{}
	clock := timeutil.NewSteppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	adapter := &stubAdapter{failOn: map[float64]bool{11: true}}
	e := NewExecutor(adapter,
		WithClock(clock),
		WithRecorder(rec),
		WithReuse(func(cfg settings.Configuration) (*solver.RunResult, bool) {
			res, ok := done[cfg.Fingerprint()]
			return res, ok
		}),
	)

	outcomes := collect(e.Execute(context.Background(), configs))
	require.Len(t, outcomes, 5)
	assert.True(t, outcomes[0].Skipped)
	assert.True(t, outcomes[4].Skipped)
	assert.Same(t, stored, outcomes[0].Result)
	assert.Nil(t, outcomes[0].Err)
	assert.False(t, outcomes[0].Failed())

	assert.Equal(t, []float64{11, 12, 13}, adapter.calls)
	assert.Equal(t, 2, rec.skipped)
	assert.Equal(t, 1, rec.errs)
	require.Len(t, rec.durations, 3)
	for _, d := range rec.durations {
		assert.Equal(t, time.Second, d)
	}

	state := e.State()
	assert.Equal(t, 2, state.Skipped)
	assert.Equal(t, 5, state.Completed)
}
