package sqlite

import (
	"encoding/json"
	"math"

	"github.com/banshee-data/cavesweep/internal/solver"
)

type storedStage struct {
	Desc         string             `json:"desc"`
	Precipitated bool               `json:"precipitated"`
	Values       map[string]float64 `json:"values"`
}

type storedResult struct {
	Keys   []string      `json:"keys"`
	Stages []storedStage `json:"stages"`
}

// encodeResult serialises res for the runs table. Non-finite values are
// left out, so they read back as null.
func encodeResult(res *solver.RunResult) (interface{}, error) {
	if res == nil {
		return nil, nil
	}
	out := storedResult{Keys: res.Keys, Stages: make([]storedStage, len(res.Stages))}
	for i, st := range res.Stages {
		vals := make(map[string]float64, len(st.Values))
		for k, v := range st.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			vals[k] = v
		}
		out.Stages[i] = storedStage{Desc: st.Desc, Precipitated: st.Precipitated, Values: vals}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeResult(data string) (*solver.RunResult, error) {
	var in storedResult
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, err
	}
	res := &solver.RunResult{Keys: in.Keys, Stages: make([]solver.Stage, len(in.Stages))}
	for i, st := range in.Stages {
		res.Stages[i] = solver.Stage{Desc: st.Desc, Precipitated: st.Precipitated, Values: st.Values}
	}
	return res, nil
}
