package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxRangeValues caps the number of values a single range string may expand
// to.
const maxRangeValues = 10000

// RangeSpec is a numeric "min:max:step" range.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := parseFinite(parts[0])
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}
	max, err := parseFinite(parts[1])
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}
	step, err := parseFinite(parts[2])
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}
	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", step)
	}
	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// parseFinite parses a float and rejects NaN and infinities.
func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%g is not a finite number", f)
	}
	return f, nil
}

// TooLarge reports whether the range would expand to more than
// maxRangeValues values.
func (r RangeSpec) TooLarge() bool {
	if r.Step <= 0 || r.Min > r.Max {
		return false
	}
	return (r.Max-r.Min)/r.Step+1 > maxRangeValues
}

// Values returns the range from Min to Max inclusive. Values are rounded to
// three decimals to avoid floating point accumulation. Returns nil if
// Min > Max or the range is TooLarge.
func (r RangeSpec) Values() []float64 {
	if r.Step <= 0 || r.Min > r.Max || r.TooLarge() {
		return nil
	}

	var result []float64
	for i := 0; len(result) < maxRangeValues; i++ {
		v := r.Min + float64(i)*r.Step
		if v > r.Max+r.Step/1000 {
			break
		}
		rounded := math.Round(v*1000) / 1000
		if rounded <= r.Max {
			result = append(result, rounded)
		}
	}
	return result
}

// parseNumericList expands a string candidate for a numeric parameter. The
// string is either a "min:max:step" range or a comma-separated list.
func parseNumericList(s string) ([]interface{}, error) {
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		if spec.TooLarge() {
			return nil, fmt.Errorf("%w: %q expands to more than %d values", ErrRangeTooLarge, s, maxRangeValues)
		}
		vals := spec.Values()
		out := make([]interface{}, len(vals))
		for i, v := range vals {
			out[i] = v
		}
		return out, nil
	}

	var out []interface{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := parseFinite(part)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q as number", ErrTypeMismatch, part)
		}
		out = append(out, f)
	}
	return out, nil
}
