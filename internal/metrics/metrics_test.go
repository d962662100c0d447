package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_RunCounters(t *testing.T) {
	b := NewBatch()
	b.RunFinished(200*time.Millisecond, nil)
	b.RunFinished(time.Second, errors.New("boom"))
	b.RunFinished(100*time.Millisecond, nil)
	b.RunSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(b.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Runs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Runs.WithLabelValues("skipped")))
	assert.Equal(t, 1, testutil.CollectAndCount(b.RunDuration))
}

func TestBatch_ComparedAndWrote(t *testing.T) {
	b := NewBatch()
	b.Compared(10, 3)
	b.Compared(5, 1)
	b.Wrote("settings_results", 12)

	assert.Equal(t, 15.0, testutil.ToFloat64(b.PairsCompared))
	assert.Equal(t, 4.0, testutil.ToFloat64(b.Matches))
	assert.Equal(t, 12.0, testutil.ToFloat64(b.RowsWritten.WithLabelValues("settings_results")))
}

func TestBatch_WriteTextfile(t *testing.T) {
	b := NewBatch()
	b.RunFinished(time.Second, nil)
	b.Completed(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "cavesweep.prom")
	require.NoError(t, b.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cavesweep_runs_total{status="ok"} 1`)
	assert.Contains(t, string(data), "cavesweep_build_info")
	assert.Contains(t, string(data), "cavesweep_last_batch_completed_timestamp_seconds")
}
