package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/banshee-data/cavesweep/internal/monitoring"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
)

// Leading columns of the consolidated results table.
var resultColumns = []string{"batch_id", "run", "stage", "step_desc", "precipitated"}

// BatchReport describes one AppendBatch call.
type BatchReport struct {
	TableReport
	Runs   int
	Failed int
}

// Run is one executed configuration. A nil Result is a failed run.
type Run struct {
	Index  int
	Config settings.Configuration
	Result *solver.RunResult
}

// indexed pairs configs and results by position.
func indexed(configs []settings.Configuration, results []*solver.RunResult) []Run {
	runs := make([]Run, len(results))
	for i, r := range results {
		runs[i] = Run{Index: i, Config: configs[i], Result: r}
	}
	return runs
}

// AppendBatch appends one row per stage of every successful run to the
// consolidated results table in dir. results[i] belongs to configs[i]; a nil
// result is a failed run and is only counted.
func (s *Store) AppendBatch(ctx context.Context, dir, batchID string, configs []settings.Configuration, results []*solver.RunResult) (BatchReport, error) {
	if len(configs) != len(results) {
		return BatchReport{}, fmt.Errorf("append batch: %d configurations but %d results", len(configs), len(results))
	}
	return s.AppendRuns(ctx, dir, batchID, indexed(configs, results))
}

// AppendRuns is AppendBatch for runs that carry their own configuration
// index, as when earlier runs were reused and skipped.
func (s *Store) AppendRuns(ctx context.Context, dir, batchID string, runs []Run) (BatchReport, error) {
	table := RunsTable(batchID, runs)
	rep := BatchReport{Runs: len(runs)}
	for _, r := range runs {
		if r.Result == nil {
			rep.Failed++
		}
	}

	unlock := s.lockDir(dir)
	defer unlock()

	tr, err := s.appendTable(ctx, dir, ResultsFile, table)
	rep.TableReport = tr
	return rep, err
}

// ResultsTable flattens configurations and results into the consolidated
// table layout: batch_id, run, stage, step_desc, precipitated, every
// configuration key in order, then the sorted union of output keys.
func ResultsTable(batchID string, configs []settings.Configuration, results []*solver.RunResult) Table {
	return RunsTable(batchID, indexed(configs, results))
}

// RunsTable is ResultsTable over runs; the run column is Run.Index.
func RunsTable(batchID string, runs []Run) Table {
	var cfgKeys []string
	if len(runs) > 0 {
		cfgKeys = runs[0].Config.Keys()
	}

	outSet := make(map[string]bool)
	for _, r := range runs {
		if r.Result == nil {
			continue
		}
		for _, k := range r.Result.Keys {
			outSet[k] = true
		}
	}
	outKeys := make([]string, 0, len(outSet))
	for k := range outSet {
		outKeys = append(outKeys, k)
	}
	sort.Strings(outKeys)

	header := make([]string, 0, len(resultColumns)+len(cfgKeys)+len(outKeys))
	header = append(header, resultColumns...)
	header = append(header, cfgKeys...)
	header = append(header, outKeys...)

	var rows [][]string
	for _, r := range runs {
		if r.Result == nil {
			continue
		}
		cfgVals := r.Config.Formatted()
		for si, st := range r.Result.Stages {
			row := make([]string, 0, len(header))
			row = append(row, batchID, strconv.Itoa(r.Index), strconv.Itoa(si), st.Desc, strconv.FormatBool(st.Precipitated))
			row = append(row, cfgVals...)
			for _, k := range outKeys {
				if v, ok := st.Value(k); ok {
					row = append(row, settings.FormatValue(v))
				} else {
					row = append(row, "")
				}
			}
			rows = append(rows, row)
		}
	}
	return Table{Header: header, Rows: rows}
}

// MatchTables holds the four comparison tables of one batch.
type MatchTables struct {
	Matches     Table
	AllOutputs  Table
	Tolerance   Table
	InputRanges Table
}

// TablesReport describes one AppendMatchTables call.
type TablesReport struct {
	Matches     TableReport
	AllOutputs  TableReport
	Tolerance   TableReport
	InputRanges TableReport
}

// AppendMatchTables appends the comparison tables under dir/CDA_Results.
// The directory lock is held across all four tables.
func (s *Store) AppendMatchTables(ctx context.Context, dir, batchID string, tables MatchTables) (TablesReport, error) {
	cda := filepath.Join(dir, CDADir)
	unlock := s.lockDir(dir)
	defer unlock()

	var rep TablesReport
	var err error
	if rep.Matches, err = s.appendTable(ctx, cda, MatchesFile, tables.Matches); err != nil {
		return rep, err
	}
	if rep.AllOutputs, err = s.appendTable(ctx, cda, AllOutputsFile, tables.AllOutputs); err != nil {
		return rep, err
	}
	if rep.Tolerance, err = s.appendTable(ctx, cda, ToleranceFile, tables.Tolerance); err != nil {
		return rep, err
	}
	if rep.InputRanges, err = s.appendTable(ctx, cda, InputRangesFile, tables.InputRanges); err != nil {
		return rep, err
	}
	monitoring.Logf("[store] Batch %s: %d matches, %d output rows written to %s",
		batchID, rep.Matches.Rows, rep.AllOutputs.Rows, cda)
	return rep, nil
}
