package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// StepDescKey is the solver output column holding each stage's descriptor.
const StepDescKey = "step_desc"

// ErrNoStages is returned when a solver reports zero stages, which signals a
// failed run.
var ErrNoStages = errors.New("solver returned no stages")

// Stage is the solver's output at one modelled step. A key missing from
// Values is null for this stage.
type Stage struct {
	Desc         string
	Precipitated bool
	Values       map[string]float64
}

// Value returns the output for key and whether it is non-null.
func (s Stage) Value(key string) (float64, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// RunResult is the ordered list of stages for one run. Keys is the sorted set
// of numeric output keys reported by the solver.
type RunResult struct {
	Keys   []string
	Stages []Stage
}

// isPrecipitationStep reports whether a stage descriptor marks a step in
// which carbonate precipitated.
func isPrecipitationStep(desc string) bool {
	return strings.Contains(strings.ToLower(desc), "precip")
}

// DecodeColumns converts column-oriented solver output into ordered stages.
// Every column must have one entry per stage. Non-numeric columns other than
// step_desc are ignored. JSON null entries become null stage values.
func DecodeColumns(cols map[string]interface{}) (RunResult, error) {
	n := -1
	lengths := func(key string, l int) error {
		if n == -1 {
			n = l
			return nil
		}
		if l != n {
			return fmt.Errorf("column %q has %d entries, want %d", key, l, n)
		}
		return nil
	}

	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var descs []string
	numeric := make(map[string][]*float64)
	for _, key := range keys {
		list, ok := cols[key].([]interface{})
		if !ok {
			return RunResult{}, fmt.Errorf("column %q is not a list", key)
		}
		if err := lengths(key, len(list)); err != nil {
			return RunResult{}, err
		}
		if key == StepDescKey {
			descs = make([]string, len(list))
			for i, v := range list {
				if v != nil {
					descs[i] = fmt.Sprintf("%v", v)
				}
			}
			continue
		}
		vals, ok := numericColumn(list)
		if !ok {
			continue
		}
		numeric[key] = vals
	}

	if n <= 0 {
		return RunResult{}, ErrNoStages
	}

	res := RunResult{Stages: make([]Stage, n)}
	for key := range numeric {
		res.Keys = append(res.Keys, key)
	}
	sort.Strings(res.Keys)

	for i := range res.Stages {
		st := Stage{Values: make(map[string]float64, len(res.Keys))}
		if descs != nil {
			st.Desc = descs[i]
		} else {
			st.Desc = fmt.Sprintf("step_%d", i)
		}
		st.Precipitated = isPrecipitationStep(st.Desc)
		for _, key := range res.Keys {
			if p := numeric[key][i]; p != nil {
				st.Values[key] = *p
			}
		}
		res.Stages[i] = st
	}
	return res, nil
}

// numericColumn returns the column as nullable floats. ok is false if any
// entry is neither a number nor null. NaN entries become null.
func numericColumn(list []interface{}) ([]*float64, bool) {
	out := make([]*float64, len(list))
	for i, v := range list {
		switch val := v.(type) {
		case nil:
		case float64:
			if !math.IsNaN(val) && !math.IsInf(val, 0) {
				f := val
				out[i] = &f
			}
		default:
			return nil, false
		}
	}
	return out, true
}
