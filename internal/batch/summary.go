package batch

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cavesweep/internal/monitoring"
)

// Failure is one failed solver run.
type Failure struct {
	Index int
	Err   string
}

// DurationStats summarizes solver run times.
type DurationStats struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Summary is the user-facing account of one batch.
type Summary struct {
	BatchID   string
	OutputDir string

	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Stopped   bool
	Failures  []Failure

	// Stages is the number of result rows written.
	Stages int

	// Pairs and Matches are zero when no measured data was given.
	Pairs   int
	Matches int

	ResultsPath    string
	ResultsCreated bool
	CompareCreated bool

	Durations DurationStats
	Elapsed   time.Duration
}

func summarizeDurations(ds []time.Duration) DurationStats {
	if len(ds) == 0 {
		return DurationStats{}
	}
	secs := make([]float64, len(ds))
	for i, d := range ds {
		secs[i] = d.Seconds()
	}
	out := DurationStats{
		Count: len(ds),
		Mean:  seconds(stat.Mean(secs, nil)),
		Min:   seconds(floats.Min(secs)),
		Max:   seconds(floats.Max(secs)),
	}
	if len(ds) > 1 {
		out.StdDev = seconds(stat.StdDev(secs, nil))
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (s Summary) log(compared bool) {
	if s.ResultsCreated {
		monitoring.Logf("[batch] Created new results table %s", s.ResultsPath)
	} else {
		monitoring.Logf("[batch] Appended to existing results table %s", s.ResultsPath)
	}
	ran := s.Total - s.Skipped
	if s.Stopped {
		ran = s.Succeeded + s.Failed
		monitoring.Logf("[batch] Batch %s stopped after %d of %d configurations", s.BatchID, ran+s.Skipped, s.Total)
	}
	monitoring.Logf("[batch] Batch %s: %d of %d runs failed, %d reused", s.BatchID, s.Failed, ran, s.Skipped)
	if compared {
		monitoring.Logf("[batch] %d matches across %d evaluated stage/row pairs", s.Matches, s.Pairs)
	}
	if s.Durations.Count > 0 {
		monitoring.Logf("[batch] Solver time mean %v (sd %v, min %v, max %v)",
			s.Durations.Mean, s.Durations.StdDev, s.Durations.Min, s.Durations.Max)
	}
}
