package cda

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultTolerances are the half-widths used when none is configured.
var DefaultTolerances = map[Proxy]float64{
	D13C:  0.5,
	D18O:  0.5,
	MgCa:  0.3,
	SrCa:  0.3,
	BaCa:  0.3,
	UCa:   0.3,
	DCP:   1.5,
	D44Ca: 0.5,
}

// ToleranceSpec maps proxies to their tolerance half-width.
type ToleranceSpec map[Proxy]float64

// Proxies returns the proxies of the spec in Proxies order.
func (t ToleranceSpec) Proxies() []Proxy {
	var out []Proxy
	for _, p := range Proxies {
		if _, ok := t[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ResolveTolerances merges overrides over DefaultTolerances and keeps only
// the proxies present in data. Override keys may be proxy names or aliases,
// optionally prefixed "tolerance_". A nil data keeps every proxy.
func ResolveTolerances(overrides map[string]float64, data *MeasuredData) (ToleranceSpec, error) {
	merged := make(ToleranceSpec, len(DefaultTolerances))
	for p, v := range DefaultTolerances {
		merged[p] = v
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := overrides[k]
		name := strings.TrimPrefix(strings.ToLower(k), "tolerance")
		p, ok := ParseProxy(name)
		if !ok {
			return nil, fmt.Errorf("tolerance %q: unknown proxy", k)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("tolerance %q: must be a non-negative number, got %v", k, v)
		}
		merged[p] = v
	}

	if data == nil {
		return merged, nil
	}
	out := make(ToleranceSpec)
	for _, p := range data.Proxies() {
		out[p] = merged[p]
	}
	return out, nil
}
