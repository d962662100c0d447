package settings

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRangeSpec(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  RangeSpec
		expectErr bool
	}{
		{"valid_range", "1.0:5.0:0.5", RangeSpec{Min: 1.0, Max: 5.0, Step: 0.5}, false},
		{"with_spaces", " 1000 : 5000 : 1000 ", RangeSpec{Min: 1000, Max: 5000, Step: 1000}, false},
		{"negative_values", "-12:-8:1", RangeSpec{Min: -12, Max: -8, Step: 1}, false},
		{"missing_parts", "1.0:5.0", RangeSpec{}, true},
		{"too_many_parts", "1:5:1:2", RangeSpec{}, true},
		{"invalid_min", "abc:5.0:0.5", RangeSpec{}, true},
		{"invalid_max", "1.0:abc:0.5", RangeSpec{}, true},
		{"invalid_step", "1.0:5.0:abc", RangeSpec{}, true},
		{"zero_step", "1.0:5.0:0", RangeSpec{}, true},
		{"negative_step", "1.0:5.0:-0.5", RangeSpec{}, true},
		{"nan_min", "nan:5:1", RangeSpec{}, true},
		{"inf_max", "0:inf:1", RangeSpec{}, true},
		{"inf_step", "0:5:+Inf", RangeSpec{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseRangeSpec(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected error for input %q, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tc.expected {
				t.Errorf("Expected %+v, got %+v", tc.expected, result)
			}
		})
	}
}

func TestRangeSpecValues(t *testing.T) {
	testCases := []struct {
		name     string
		spec     RangeSpec
		expected []float64
	}{
		{"inclusive", RangeSpec{Min: 10, Max: 20, Step: 5}, []float64{10, 15, 20}},
		{"fractional", RangeSpec{Min: 0.1, Max: 0.3, Step: 0.1}, []float64{0.1, 0.2, 0.3}},
		{"single", RangeSpec{Min: 7, Max: 7, Step: 1}, []float64{7}},
		{"max_not_on_step", RangeSpec{Min: 0, Max: 1, Step: 0.4}, []float64{0, 0.4, 0.8}},
		{"inverted", RangeSpec{Min: 5, Max: 1, Step: 1}, nil},
		{"too_many", RangeSpec{Min: 0, Max: 1e9, Step: 1}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, tc.spec.Values()); diff != "" {
				t.Errorf("Values() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseNumericList(t *testing.T) {
	got, err := parseNumericList("1000, 2000,5000")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff([]interface{}{1000.0, 2000.0, 5000.0}, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseNumericList("1000,abc"); err == nil {
		t.Error("Expected error for non-numeric element")
	}
	for _, s := range []string{"1000,nan", "inf", "-Inf,5"} {
		if _, err := parseNumericList(s); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("parseNumericList(%q) error = %v, want ErrTypeMismatch", s, err)
		}
	}
}

func TestParseNumericList_RangeTooLarge(t *testing.T) {
	_, err := parseNumericList("0:20000:1")
	if !errors.Is(err, ErrRangeTooLarge) {
		t.Fatalf("error = %v, want ErrRangeTooLarge", err)
	}

	got, err := parseNumericList("1:10000:1")
	if err != nil {
		t.Fatalf("Unexpected error at the limit: %v", err)
	}
	if len(got) != maxRangeValues {
		t.Errorf("got %d values, want %d", len(got), maxRangeValues)
	}
}
