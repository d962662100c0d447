// Package settings expands a configuration spec over a defaults table into
// the ordered list of complete model configurations.
package settings

import (
	"fmt"
	"sort"
)

// MaxCombinations caps the number of configurations a single spec may
// expand to.
const MaxCombinations = 100000

// Spec maps parameter names to a scalar or a sequence of candidates. A
// string on a numeric parameter may also be a "min:max:step" range or a
// comma-separated list.
type Spec map[string]interface{}

// Range is a swept parameter and its candidate values.
type Range struct {
	Name   string
	Values []interface{}
}

// Expand produces the Cartesian product of the spec over the defaults. Every
// configuration holds every key of the defaults table in table order. The
// first swept parameter in table order varies slowest. The result is
// deterministic for a given spec and table.
func Expand(spec Spec, defaults *DefaultsTable) ([]Configuration, error) {
	dims, err := resolve(spec, defaults)
	if err != nil {
		return nil, err
	}

	total := int64(1)
	for _, d := range dims {
		total *= int64(len(d))
		if total > MaxCombinations || total < 0 {
			return nil, configErr("", fmt.Errorf("%w: exceeds limit of %d", ErrTooManyCombinations, MaxCombinations))
		}
	}

	out := make([]Configuration, total)
	for i := range out {
		out[i] = Configuration{schema: defaults.schema, values: make([]interface{}, len(dims))}
	}

	repeat := int64(1)
	for dim := len(dims) - 1; dim >= 0; dim-- {
		vals := dims[dim]
		cycle := int64(len(vals))
		for i := int64(0); i < total; i++ {
			out[i].values[dim] = vals[(i/repeat)%cycle]
		}
		repeat *= cycle
	}
	return out, nil
}

// SweptRanges returns every multi-valued parameter and its candidates in
// table order.
func SweptRanges(spec Spec, defaults *DefaultsTable) ([]Range, error) {
	dims, err := resolve(spec, defaults)
	if err != nil {
		return nil, err
	}
	var out []Range
	for i, vals := range dims {
		if len(vals) > 1 {
			out = append(out, Range{Name: defaults.schema.names[i], Values: vals})
		}
	}
	return out, nil
}

// resolve validates the spec and returns the candidate list per parameter,
// indexed by table position.
func resolve(spec Spec, defaults *DefaultsTable) ([][]interface{}, error) {
	if defaults == nil {
		return nil, configErr("", fmt.Errorf("nil defaults table"))
	}

	// Report unknown names in sorted order so the error is stable.
	var unknown []string
	for name := range spec {
		if _, ok := defaults.schema.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, configErr(unknown[0], ErrUnknownParameter)
	}

	dims := make([][]interface{}, len(defaults.params))
	for i, p := range defaults.params {
		raw, ok := spec[p.Name]
		if !ok {
			dims[i] = []interface{}{p.Default}
			continue
		}
		vals, err := candidates(raw, p.Kind)
		if err != nil {
			return nil, configErr(p.Name, err)
		}
		dims[i] = vals
	}
	return dims, nil
}

// candidates turns one spec entry into its coerced candidate list.
func candidates(raw interface{}, kind Kind) ([]interface{}, error) {
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []float64:
		items = make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
	case []int:
		items = make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
	case []string:
		items = make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
	case []bool:
		items = make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
	case string:
		if kind == KindNumber {
			list, err := parseNumericList(v)
			if err != nil {
				return nil, err
			}
			if len(list) == 0 {
				return nil, ErrEmptyRange
			}
			return dedupe(list)
		}
		items = []interface{}{v}
	default:
		items = []interface{}{raw}
	}

	if len(items) == 0 {
		return nil, ErrEmptyRange
	}

	out := make([]interface{}, len(items))
	var first Kind
	for i, item := range items {
		c, err := coerceScalar(item, kind)
		if err != nil {
			return nil, fmt.Errorf("value[%d]: %w", i, err)
		}
		_, k, _ := normalizeScalar(c)
		if i == 0 {
			first = k
		} else if k != first {
			return nil, fmt.Errorf("value[%d]: %w: sequence mixes %s and %s", i, ErrTypeMismatch, first, k)
		}
		out[i] = c
	}
	return dedupe(out)
}

func dedupe(vals []interface{}) ([]interface{}, error) {
	seen := make(map[interface{}]struct{}, len(vals))
	for _, v := range vals {
		if _, dup := seen[v]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateValue, FormatValue(v))
		}
		seen[v] = struct{}{}
	}
	return vals, nil
}
