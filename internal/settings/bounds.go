package settings

import (
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Bounds returns the numeric minimum and maximum of the range. ok is false
// when the candidates are not numbers.
func (r Range) Bounds() (min, max float64, ok bool) {
	nums := make([]float64, 0, len(r.Values))
	for _, v := range r.Values {
		f, isNum := v.(float64)
		if !isNum {
			return 0, 0, false
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return 0, 0, false
	}
	return floats.Min(nums), floats.Max(nums), true
}

// Describe renders the candidates for a summary table, e.g. "1000;5000".
func (r Range) Describe() string {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, ";")
}
