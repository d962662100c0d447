package cda

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProxy(t *testing.T) {
	testCases := []struct {
		header string
		want   Proxy
		ok     bool
	}{
		{"MgCa", MgCa, true},
		{"Mg/Ca", MgCa, true},
		{"mg/ca (mmol/mol)", MgCa, true},
		{"d13C (‰ VPDB)", D13C, true},
		{" D18O ", D18O, true},
		{"Sr/Ca", SrCa, true},
		{"Ba/Ca", BaCa, true},
		{"U/Ca", UCa, true},
		{"DCP (%)", DCP, true},
		{"d44Ca", D44Ca, true},
		{"Age (yr BP)", "", false},
		{"depth_mm", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.header, func(t *testing.T) {
			got, ok := ParseProxy(tc.header)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsAgeHeader(t *testing.T) {
	assert.True(t, isAgeHeader("Age"))
	assert.True(t, isAgeHeader("age (ka)"))
	assert.False(t, isAgeHeader("d13C"))
	assert.False(t, isAgeHeader("depth"))
}

func TestSimulatedKey(t *testing.T) {
	assert.Equal(t, "d13C_Calcite", SimulatedKey(D13C, "Calcite"))
	assert.Equal(t, "Mg/Ca(mol/mol)_Aragonite", SimulatedKey(MgCa, "Aragonite"))
	assert.Equal(t, "DCP", SimulatedKey(DCP, "Aragonite"))
}

func TestToMeasuredUnits(t *testing.T) {
	assert.InDelta(t, 1.2, ToMeasuredUnits(MgCa, 0.0012), 1e-12)
	assert.InDelta(t, 30.0*0.97001-29.99, ToMeasuredUnits(D18O, 30), 1e-12)
	assert.Equal(t, -8.0, ToMeasuredUnits(D13C, -8))
}
