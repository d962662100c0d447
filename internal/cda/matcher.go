package cda

import (
	"math"

	"github.com/banshee-data/cavesweep/internal/settings"
	"github.com/banshee-data/cavesweep/internal/solver"
)

// State is the outcome of comparing one stage with one measured row.
type State int

const (
	Candidate State = iota
	Match
	NoMatch
)

func (s State) String() string {
	switch s {
	case Candidate:
		return "candidate"
	case Match:
		return "match"
	case NoMatch:
		return "no_match"
	}
	return "unknown"
}

// Residual is simulated minus measured for one proxy.
type Residual struct {
	Proxy     Proxy
	Simulated float64
	Measured  float64
	Residual  float64
}

// Solver output keys reported alongside the proxies.
const (
	FCaKey     = "f_ca"
	CaKey      = "Ca(mol/kgw)"
	DICd13CKey = "d13C"
)

// StageContext holds solver outputs reported next to the compared proxies. A
// nil field is null.
type StageContext struct {
	// FCa is the fraction of dissolved Ca remaining.
	FCa *float64
	// D13CInit is the DIC d13C of the run's second stage, the solution
	// before degassing starts.
	D13CInit *float64
	Ca       *float64
}

func stageContext(res solver.RunResult, st solver.Stage) StageContext {
	value := func(st solver.Stage, key string) *float64 {
		v, ok := st.Value(key)
		if !ok || math.IsNaN(v) {
			return nil
		}
		return &v
	}
	c := StageContext{FCa: value(st, FCaKey), Ca: value(st, CaKey)}
	if len(res.Stages) > 1 {
		c.D13CInit = value(res.Stages[1], DICd13CKey)
	}
	return c
}

// MatchRecord is a stage that matched a measured row within tolerance.
type MatchRecord struct {
	Run          int
	Config       settings.Configuration
	Stage        int
	StageDesc    string
	Precipitated bool
	Row          MeasuredRow
	Residuals    []Residual
	Context      StageContext
}

// OutputRecord is one evaluated stage, matched or not. Simulated holds the
// non-null proxy values in measured units.
type OutputRecord struct {
	Run          int
	Config       settings.Configuration
	Stage        int
	StageDesc    string
	Precipitated bool
	Simulated    map[Proxy]float64
	MatchedRows  int
	Context      StageContext
}

// Evaluation is the result of comparing one run with every measured row.
type Evaluation struct {
	Matches []MatchRecord
	Outputs []OutputRecord
	// Pairs is the number of stage/row comparisons made.
	Pairs int
}

// Matcher compares runs with measured data.
type Matcher struct {
	tol     ToleranceSpec
	data    *MeasuredData
	proxies []Proxy
}

// NewMatcher returns a matcher for the given tolerances and measured data.
func NewMatcher(tol ToleranceSpec, data *MeasuredData) *Matcher {
	return &Matcher{tol: tol, data: data, proxies: tol.Proxies()}
}

// Tolerances returns the tolerance spec in use.
func (m *Matcher) Tolerances() ToleranceSpec { return m.tol }

// Proxies returns the proxies compared, in Proxies order.
func (m *Matcher) Proxies() []Proxy { return m.proxies }

// Evaluate compares every stage of res with every measured row. Each stage
// produces one OutputRecord and one MatchRecord per matching row.
func (m *Matcher) Evaluate(run int, cfg settings.Configuration, res solver.RunResult) Evaluation {
	mineral, _ := cfg.String("precipitate_mineralogy")

	var ev Evaluation
	for si, st := range res.Stages {
		sim := m.simulated(st, mineral)
		sc := stageContext(res, st)
		out := OutputRecord{
			Run:          run,
			Config:       cfg,
			Stage:        si,
			StageDesc:    st.Desc,
			Precipitated: st.Precipitated,
			Simulated:    sim,
			Context:      sc,
		}
		for _, row := range m.data.Rows {
			ev.Pairs++
			state, residuals := m.compare(sim, row)
			if state != Match {
				continue
			}
			out.MatchedRows++
			ev.Matches = append(ev.Matches, MatchRecord{
				Run:          run,
				Config:       cfg,
				Stage:        si,
				StageDesc:    st.Desc,
				Precipitated: st.Precipitated,
				Row:          row,
				Residuals:    residuals,
				Context:      sc,
			})
		}
		ev.Outputs = append(ev.Outputs, out)
	}
	return ev
}

// simulated extracts the compared proxies from a stage in measured units.
func (m *Matcher) simulated(st solver.Stage, mineral string) map[Proxy]float64 {
	out := make(map[Proxy]float64, len(m.proxies))
	for _, p := range m.proxies {
		v, ok := st.Value(SimulatedKey(p, mineral))
		if !ok || math.IsNaN(v) {
			continue
		}
		out[p] = ToMeasuredUnits(p, v)
	}
	return out
}

// compare runs the Candidate state for one stage/row pair. Proxies the row
// did not measure are excluded. A measured proxy with a null simulated value
// fails the pair. A pair with no measured proxy never matches.
func (m *Matcher) compare(sim map[Proxy]float64, row MeasuredRow) (State, []Residual) {
	var residuals []Residual
	for _, p := range m.proxies {
		measured, ok := row.Values[p]
		if !ok {
			continue
		}
		s, ok := sim[p]
		if !ok {
			return NoMatch, nil
		}
		r := s - measured
		if math.Abs(r) > m.tol[p] {
			return NoMatch, nil
		}
		residuals = append(residuals, Residual{Proxy: p, Simulated: s, Measured: measured, Residual: r})
	}
	if len(residuals) == 0 {
		return NoMatch, nil
	}
	return Match, residuals
}
