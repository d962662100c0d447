package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind classifies the scalar values a parameter accepts.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
	// KindAny accepts any scalar. Used by parameters that take either a
	// number or a keyword such as "mix".
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindAny:
		return "any"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// normalizeScalar converts Go numeric types to float64 and reports the kind
// of a scalar. Non-scalars return ok=false.
func normalizeScalar(v interface{}) (interface{}, Kind, bool) {
	switch val := v.(type) {
	case float64:
		return val, KindNumber, true
	case float32:
		return float64(val), KindNumber, true
	case int:
		return float64(val), KindNumber, true
	case int32:
		return float64(val), KindNumber, true
	case int64:
		return float64(val), KindNumber, true
	case uint:
		return float64(val), KindNumber, true
	case uint64:
		return float64(val), KindNumber, true
	case string:
		return val, KindString, true
	case bool:
		return val, KindBool, true
	}
	return nil, 0, false
}

// coerceScalar converts v to the kind required by a parameter. Numeric
// parameters accept numeric strings, matching how values arrive from flags
// and hand-written YAML.
func coerceScalar(v interface{}, want Kind) (interface{}, error) {
	norm, got, ok := normalizeScalar(v)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
	}
	if want == KindAny || got == want {
		if f, isFloat := norm.(float64); isFloat && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil, fmt.Errorf("%w: non-finite number", ErrTypeMismatch)
		}
		return norm, nil
	}
	if want == KindNumber && got == KindString {
		f, err := strconv.ParseFloat(strings.TrimSpace(norm.(string)), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q as number", ErrTypeMismatch, norm)
		}
		return f, nil
	}
	if want == KindBool && got == KindString {
		b, err := strconv.ParseBool(strings.TrimSpace(norm.(string)))
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q as bool", ErrTypeMismatch, norm)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, got)
}

// FormatValue renders a configuration value for tabular output.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	}
	return fmt.Sprintf("%v", v)
}
