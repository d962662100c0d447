package store

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cavesweep/internal/fsutil"
	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
)

func quietLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

var testDefaults = settings.MustDefaultsTable(
	settings.Param{Name: "soil_pCO2", Default: 1000.0},
	settings.Param{Name: "temperature", Default: 20.0},
)

func configs(t *testing.T, spec settings.Spec) []settings.Configuration {
	t.Helper()
	c, err := settings.Expand(spec, testDefaults)
	require.NoError(t, err)
	return c
}

func result(stages ...map[string]float64) *solver.RunResult {
	r := &solver.RunResult{}
	keys := map[string]bool{}
	for i, v := range stages {
		desc := "step"
		if i == len(stages)-1 {
			desc = "precip"
		}
		r.Stages = append(r.Stages, solver.Stage{Desc: desc, Precipitated: desc == "precip", Values: v})
		for k := range v {
			keys[k] = true
		}
	}
	for k := range keys {
		r.Keys = append(r.Keys, k)
	}
	return r
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	require.NoError(t, err)
	return recs
}

func TestResultsTable_Layout(t *testing.T) {
	cfgs := configs(t, settings.Spec{"soil_pCO2": []interface{}{1000, 5000}, "temperature": 10})
	results := []*solver.RunResult{
		result(map[string]float64{"DCP": 1.5}, map[string]float64{"DCP": 2, "d13C_Calcite": -8.25}),
		nil,
	}

	table := ResultsTable("b1", cfgs, results)
	assert.Equal(t, []string{"batch_id", "run", "stage", "step_desc", "precipitated", "soil_pCO2", "temperature", "DCP", "d13C_Calcite"}, table.Header)
	want := [][]string{
		{"b1", "0", "0", "step", "false", "1000", "10", "1.5", ""},
		{"b1", "0", "1", "precip", "true", "1000", "10", "2", "-8.25"},
	}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendBatch_SingleHeaderAcrossRepeats(t *testing.T) {
	quietLogs(t)
	dir := filepath.Join(t.TempDir(), "out")
	s := New(nil)
	ctx := context.Background()

	cfgs := configs(t, settings.Spec{"temperature": []interface{}{5, 10}})
	results := []*solver.RunResult{
		result(map[string]float64{"DCP": 1}, map[string]float64{"DCP": 2}),
		result(map[string]float64{"DCP": 3}),
	}

	for i := 0; i < 3; i++ {
		rep, err := s.AppendBatch(ctx, dir, "batch", cfgs, results)
		require.NoError(t, err)
		assert.Equal(t, i == 0, rep.Created)
		assert.Equal(t, 3, rep.Rows)
	}

	recs := readCSV(t, filepath.Join(dir, ResultsFile))
	require.Len(t, recs, 1+9)
	headers := 0
	for _, r := range recs {
		if r[0] == "batch_id" {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestAppendBatch_PreservesBatchOrder(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)
	ctx := context.Background()

	a := configs(t, settings.Spec{"temperature": []interface{}{1, 2}})
	b := configs(t, settings.Spec{"temperature": []interface{}{3, 4}})
	one := func(v float64) *solver.RunResult { return result(map[string]float64{"DCP": v}) }

	_, err := s.AppendBatch(ctx, dir, "A", a, []*solver.RunResult{one(1), one(2)})
	require.NoError(t, err)
	_, err = s.AppendBatch(ctx, dir, "B", b, []*solver.RunResult{one(3), one(4)})
	require.NoError(t, err)

	recs := readCSV(t, filepath.Join(dir, ResultsFile))
	var order []string
	for _, r := range recs[1:] {
		order = append(order, r[0]+":"+r[6])
	}
	assert.Equal(t, []string{"A:1", "A:2", "B:3", "B:4"}, order)
}

func TestAppendBatch_FailedRunsCountedNotWritten(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)

	cfgs := configs(t, settings.Spec{"temperature": []interface{}{1, 2, 3}})
	rep, err := s.AppendBatch(context.Background(), dir, "x", cfgs,
		[]*solver.RunResult{nil, result(map[string]float64{"DCP": 1}), nil})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Runs)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 1, rep.Rows)
}

func TestAppendBatch_AllFailedCreatesNothing(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)

	cfgs := configs(t, settings.Spec{})
	rep, err := s.AppendBatch(context.Background(), dir, "x", cfgs, []*solver.RunResult{nil})
	require.NoError(t, err)
	assert.False(t, rep.Created)
	assert.Equal(t, 1, rep.Failed)
	assert.False(t, s.HasTable(dir, ResultsFile))
}

func TestAppendBatch_AllFailedThenSuccessKeepsOutputs(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)
	ctx := context.Background()

	_, err := s.AppendBatch(ctx, dir, "a", configs(t, settings.Spec{"temperature": 10}), []*solver.RunResult{nil})
	require.NoError(t, err)
	rep, err := s.AppendBatch(ctx, dir, "b", configs(t, settings.Spec{"temperature": 12}),
		[]*solver.RunResult{result(map[string]float64{"d13C_Calcite": -8.5})})
	require.NoError(t, err)
	assert.True(t, rep.Created)

	recs := readCSV(t, filepath.Join(dir, ResultsFile))
	require.Len(t, recs, 2)
	assert.Contains(t, recs[0], "d13C_Calcite")
	assert.Equal(t, "-8.5", recs[1][len(recs[1])-1])
}

func TestAppendBatch_LengthMismatch(t *testing.T) {
	s := New(fsutil.NewMemoryFileSystem())
	_, err := s.AppendBatch(context.Background(), "out", "x", configs(t, settings.Spec{}), nil)
	assert.Error(t, err)
}

func TestAppendBatch_AlignsToExistingHeader(t *testing.T) {
	quietLogs(t)
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, mem.MkdirAll("out", 0o755))
	existing := "batch_id,run,stage,step_desc,precipitated,temperature,soil_pCO2,DCP,d13C_Calcite\n"
	require.NoError(t, mem.WriteFileAtomic("out/"+ResultsFile, []byte(existing), 0o644))

	s := New(mem)
	cfgs := configs(t, settings.Spec{"temperature": 7})
	rep, err := s.AppendBatch(context.Background(), "out", "z", cfgs,
		[]*solver.RunResult{result(map[string]float64{"DCP": 9})})
	require.NoError(t, err)
	assert.False(t, rep.Created)
	assert.Empty(t, rep.Added)

	data, err := mem.ReadFile("out/" + ResultsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "z,0,0,precip,true,7,1000,9,", lines[1])
}

func TestAppendBatch_NewColumnsWidenHeader(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)
	ctx := context.Background()

	calcite := configs(t, settings.Spec{"temperature": 10})
	_, err := s.AppendBatch(ctx, dir, "a", calcite,
		[]*solver.RunResult{result(map[string]float64{"DCP": 1, "d13C_Calcite": -8})})
	require.NoError(t, err)

	rep, err := s.AppendBatch(ctx, dir, "b", calcite,
		[]*solver.RunResult{result(map[string]float64{"DCP": 2, "d13C_Aragonite": -7})})
	require.NoError(t, err)
	assert.False(t, rep.Created)
	assert.Equal(t, []string{"d13C_Aragonite"}, rep.Added)

	recs := readCSV(t, filepath.Join(dir, ResultsFile))
	want := [][]string{
		{"batch_id", "run", "stage", "step_desc", "precipitated", "soil_pCO2", "temperature", "DCP", "d13C_Calcite", "d13C_Aragonite"},
		{"a", "0", "0", "precip", "true", "1000", "10", "1", "-8", ""},
		{"b", "0", "0", "precip", "true", "1000", "10", "2", "", "-7"},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendBatch_FailedAppendLeavesFileIntact(t *testing.T) {
	quietLogs(t)
	mem := fsutil.NewMemoryFileSystem()
	s := New(mem)
	ctx := context.Background()
	cfgs := configs(t, settings.Spec{})
	res := []*solver.RunResult{result(map[string]float64{"DCP": 1})}

	_, err := s.AppendBatch(ctx, "out", "a", cfgs, res)
	require.NoError(t, err)
	before, err := mem.ReadFile("out/" + ResultsFile)
	require.NoError(t, err)

	diskFull := errors.New("no space left on device")
	mem.FailAppend = func(string) error { return diskFull }
	_, err = s.AppendBatch(ctx, "out", "b", cfgs, res)
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "append", perr.Op)
	assert.ErrorIs(t, err, diskFull)

	after, err := mem.ReadFile("out/" + ResultsFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// A retry after the failure still writes no second header.
	mem.FailAppend = nil
	_, err = s.AppendBatch(ctx, "out", "b", cfgs, res)
	require.NoError(t, err)
	data, _ := mem.ReadFile("out/" + ResultsFile)
	assert.Equal(t, 1, strings.Count(string(data), "batch_id"))
}

func TestAppendBatch_ConcurrentWritersOneHeader(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)
	cfgs := configs(t, settings.Spec{})
	res := []*solver.RunResult{result(map[string]float64{"DCP": 1})}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendBatch(context.Background(), dir, "c", cfgs, res)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	recs := readCSV(t, filepath.Join(dir, ResultsFile))
	assert.Len(t, recs, 1+8)
	assert.Equal(t, "batch_id", recs[0][0])
	for _, r := range recs[1:] {
		assert.Equal(t, "c", r[0])
	}
}

func TestAppendMatchTables_CreateThenAppend(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	s := New(nil)
	ctx := context.Background()

	tables := MatchTables{
		Matches:     Table{Header: []string{"batch_id", "run"}, Rows: nil},
		AllOutputs:  Table{Header: []string{"batch_id", "run"}, Rows: [][]string{{"b", "0"}}},
		Tolerance:   Table{Header: []string{"batch_id", "proxy", "tolerance"}, Rows: [][]string{{"b", "d13C", "0.5"}}},
		InputRanges: Table{Header: []string{"batch_id", "parameter"}, Rows: [][]string{{"b", "temperature"}}},
	}

	rep, err := s.AppendMatchTables(ctx, dir, "b", tables)
	require.NoError(t, err)
	assert.False(t, rep.Matches.Created, "no rows, no table")
	assert.True(t, rep.AllOutputs.Created)
	assert.False(t, s.HasTable(filepath.Join(dir, CDADir), MatchesFile))

	rep, err = s.AppendMatchTables(ctx, dir, "b", tables)
	require.NoError(t, err)
	assert.False(t, rep.AllOutputs.Created)
	assert.False(t, rep.Tolerance.Created)

	all := readCSV(t, filepath.Join(dir, CDADir, AllOutputsFile))
	assert.Len(t, all, 3)

	// A later measured file adds a proxy column.
	tables.AllOutputs = Table{Header: []string{"batch_id", "run", "CaveCalc MgCa"}, Rows: [][]string{{"c", "1", "1.2"}}}
	rep, err = s.AppendMatchTables(ctx, dir, "c", tables)
	require.NoError(t, err)
	assert.Equal(t, []string{"CaveCalc MgCa"}, rep.AllOutputs.Added)

	all = readCSV(t, filepath.Join(dir, CDADir, AllOutputsFile))
	assert.Equal(t, [][]string{
		{"batch_id", "run", "CaveCalc MgCa"},
		{"b", "0", ""},
		{"b", "0", ""},
		{"c", "1", "1.2"},
	}, all)
}

func TestAppendRuns_KeepsConfigurationIndex(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	cfgs := configs(t, settings.Spec{"temperature": []interface{}{1, 2, 3}})

	rep, err := New(nil).AppendRuns(context.Background(), dir, "r", []Run{
		{Index: 2, Config: cfgs[2], Result: result(map[string]float64{"DCP": 4})},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Runs)

	recs := readCSV(t, filepath.Join(dir, ResultsFile))
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"r", "2", "0", "precip", "true", "1000", "3", "4"}, recs[1])
}
