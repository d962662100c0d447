package batch

import (
	"strconv"

	"github.com/banshee-data/cavesweep/internal/cda"
	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/store"
)

var stageColumns = []string{"batch_id", "run", "stage", "step_desc", "precipitated"}

func stageCells(batchID string, run, stage int, desc string, precipitated bool) []string {
	return []string{batchID, strconv.Itoa(run), strconv.Itoa(stage), desc, strconv.FormatBool(precipitated)}
}

func formatFloat(v float64) string {
	return settings.FormatValue(v)
}

// contextColumns follow the proxy columns in the Matches and All_outputs
// tables.
var contextColumns = []string{"fCa", "d13C_init", "Ca (mol/kgw)"}

func contextCells(c cda.StageContext) []string {
	cells := make([]string, 0, len(contextColumns))
	for _, v := range []*float64{c.FCa, c.D13CInit, c.Ca} {
		if v == nil {
			cells = append(cells, "")
		} else {
			cells = append(cells, formatFloat(*v))
		}
	}
	return cells
}

// matchesTable lays out one row per match record.
func matchesTable(batchID string, proxies []cda.Proxy, cfgKeys []string, recs []cda.MatchRecord) store.Table {
	header := append([]string(nil), stageColumns...)
	header = append(header, "measured_row", "Age")
	for _, p := range proxies {
		header = append(header, string(p), "CaveCalc "+string(p), string(p)+" residual")
	}
	header = append(header, contextColumns...)
	header = append(header, cfgKeys...)

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := stageCells(batchID, rec.Run, rec.Stage, rec.StageDesc, rec.Precipitated)
		age := ""
		if rec.Row.HasAge {
			age = formatFloat(rec.Row.Age)
		}
		row = append(row, strconv.Itoa(rec.Row.Index), age)

		byProxy := make(map[cda.Proxy]cda.Residual, len(rec.Residuals))
		for _, r := range rec.Residuals {
			byProxy[r.Proxy] = r
		}
		for _, p := range proxies {
			r, ok := byProxy[p]
			if !ok {
				row = append(row, "", "", "")
				continue
			}
			row = append(row, formatFloat(r.Measured), formatFloat(r.Simulated), formatFloat(r.Residual))
		}
		row = append(row, contextCells(rec.Context)...)
		row = append(row, rec.Config.Formatted()...)
		rows = append(rows, row)
	}
	return store.Table{Header: header, Rows: rows}
}

// allOutputsTable lays out one row per evaluated configuration and stage.
func allOutputsTable(batchID string, proxies []cda.Proxy, cfgKeys []string, recs []cda.OutputRecord) store.Table {
	header := append([]string(nil), stageColumns...)
	header = append(header, "matched_rows")
	for _, p := range proxies {
		header = append(header, "CaveCalc "+string(p))
	}
	header = append(header, contextColumns...)
	header = append(header, cfgKeys...)

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := stageCells(batchID, rec.Run, rec.Stage, rec.StageDesc, rec.Precipitated)
		row = append(row, strconv.Itoa(rec.MatchedRows))
		for _, p := range proxies {
			if v, ok := rec.Simulated[p]; ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, contextCells(rec.Context)...)
		row = append(row, rec.Config.Formatted()...)
		rows = append(rows, row)
	}
	return store.Table{Header: header, Rows: rows}
}

// toleranceTable lays out the tolerance in use for each compared proxy.
func toleranceTable(batchID string, tol cda.ToleranceSpec) store.Table {
	t := store.Table{Header: []string{"batch_id", "Proxy", "Tolerance Value"}}
	for _, p := range tol.Proxies() {
		t.Rows = append(t.Rows, []string{batchID, string(p), formatFloat(tol[p])})
	}
	return t
}

// inputRangesTable lays out every swept parameter. Minimum and Maximum are
// empty for non-numeric parameters.
func inputRangesTable(batchID string, ranges []settings.Range) store.Table {
	t := store.Table{Header: []string{"batch_id", "Variable", "Minimum", "Maximum", "Values"}}
	for _, r := range ranges {
		min, max := "", ""
		if lo, hi, ok := r.Bounds(); ok {
			min, max = formatFloat(lo), formatFloat(hi)
		}
		t.Rows = append(t.Rows, []string{batchID, r.Name, min, max, r.Describe()})
	}
	return t
}
