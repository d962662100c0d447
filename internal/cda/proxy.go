// Package cda compares simulated speleothem proxies with measured
// time-series data and keeps the configurations whose output falls within
// tolerance.
package cda

import (
	"strings"
	"unicode"
)

// Proxy is a canonical measured quantity.
type Proxy string

const (
	D13C  Proxy = "d13C"
	D18O  Proxy = "d18O"
	MgCa  Proxy = "MgCa"
	SrCa  Proxy = "SrCa"
	BaCa  Proxy = "BaCa"
	UCa   Proxy = "UCa"
	DCP   Proxy = "DCP"
	D44Ca Proxy = "d44Ca"
)

// Proxies lists every proxy in table order.
var Proxies = []Proxy{D13C, D18O, MgCa, DCP, D44Ca, SrCa, BaCa, UCa}

const ageAlias = "age"

// NormalizeHeader lowercases h and strips everything but letters and digits.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseProxy resolves a column header or tolerance key to a proxy by
// substring match on the normalized header, e.g. "mg/ca (mmol/mol)" is MgCa.
// The longest match wins; ties go to the earlier proxy in Proxies.
func ParseProxy(h string) (Proxy, bool) {
	norm := NormalizeHeader(h)
	best, bestLen := Proxy(""), 0
	for _, p := range Proxies {
		alias := NormalizeHeader(string(p))
		if len(alias) > bestLen && strings.Contains(norm, alias) {
			best, bestLen = p, len(alias)
		}
	}
	return best, bestLen > 0
}

// isAgeHeader reports whether h names the age column.
func isAgeHeader(h string) bool {
	if _, ok := ParseProxy(h); ok {
		return false
	}
	return strings.Contains(NormalizeHeader(h), ageAlias)
}

// SimulatedKey returns the solver output key holding p for the given
// precipitate mineralogy.
func SimulatedKey(p Proxy, mineralogy string) string {
	switch p {
	case D13C:
		return "d13C_" + mineralogy
	case D18O:
		return "d18O_" + mineralogy
	case MgCa:
		return "Mg/Ca(mol/mol)_" + mineralogy
	case SrCa:
		return "Sr/Ca(mol/mol)_" + mineralogy
	case BaCa:
		return "Ba/Ca(mol/mol)_" + mineralogy
	case UCa:
		return "U/Ca(mol/mol)_" + mineralogy
	case DCP:
		return "DCP"
	case D44Ca:
		return "d44Ca_" + mineralogy
	}
	return ""
}

// ToMeasuredUnits converts a simulated value into the units of measured
// data. X/Ca ratios go from mol/mol to mmol/mol and d18O from VSMOW to VPDB.
func ToMeasuredUnits(p Proxy, v float64) float64 {
	switch p {
	case MgCa, SrCa, BaCa, UCa:
		return v * 1000
	case D18O:
		return v*0.97001 - 29.99
	}
	return v
}
