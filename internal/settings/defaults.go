package settings

import (
	"fmt"
)

// Param describes one model parameter and its default value.
type Param struct {
	Name    string
	Default interface{}
	Kind    Kind
}

// schema is the ordered parameter list shared by every Configuration
// produced from the same DefaultsTable.
type schema struct {
	names []string
	index map[string]int
}

// DefaultsTable is the ordered table of every recognised parameter and its
// default. Its order is the key order of every expanded Configuration.
type DefaultsTable struct {
	params []Param
	schema *schema
}

// NewDefaultsTable builds a table from params in the given order. Defaults are
// normalized to float64, string or bool and checked against their Kind.
func NewDefaultsTable(params ...Param) (*DefaultsTable, error) {
	d := &DefaultsTable{
		params: make([]Param, 0, len(params)),
		schema: &schema{index: make(map[string]int, len(params))},
	}
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("defaults: empty parameter name")
		}
		if _, dup := d.schema.index[p.Name]; dup {
			return nil, fmt.Errorf("defaults: duplicate parameter %q", p.Name)
		}
		v, err := coerceScalar(p.Default, p.Kind)
		if err != nil {
			return nil, fmt.Errorf("defaults: parameter %q: %w", p.Name, err)
		}
		p.Default = v
		d.schema.index[p.Name] = len(d.params)
		d.schema.names = append(d.schema.names, p.Name)
		d.params = append(d.params, p)
	}
	return d, nil
}

// MustDefaultsTable is like NewDefaultsTable but panics on error.
func MustDefaultsTable(params ...Param) *DefaultsTable {
	d, err := NewDefaultsTable(params...)
	if err != nil {
		panic(err)
	}
	return d
}

// Len returns the number of parameters.
func (d *DefaultsTable) Len() int { return len(d.params) }

// Names returns parameter names in table order.
func (d *DefaultsTable) Names() []string {
	out := make([]string, len(d.schema.names))
	copy(out, d.schema.names)
	return out
}

// Lookup returns the parameter with the given name.
func (d *DefaultsTable) Lookup(name string) (Param, bool) {
	i, ok := d.schema.index[name]
	if !ok {
		return Param{}, false
	}
	return d.params[i], true
}

// Params returns a copy of the table rows.
func (d *DefaultsTable) Params() []Param {
	out := make([]Param, len(d.params))
	copy(out, d.params)
	return out
}

// CaveDefaults returns the standard defaults table for cave drip-water and
// speleothem models. Parameters are grouped atmosphere, soil, bedrock,
// cave and run control.
func CaveDefaults() *DefaultsTable {
	return MustDefaultsTable(
		// atmosphere
		Param{Name: "atm_O2", Default: 0.21},
		Param{Name: "atm_d18O", Default: -10.0},
		Param{Name: "atm_pCO2", Default: 270.0},
		Param{Name: "atm_d13C", Default: -7.0},
		Param{Name: "atm_R14C", Default: 100.0},

		// soil
		Param{Name: "soil_O2", Default: 0.0},
		Param{Name: "soil_R14C", Default: 100.0},
		Param{Name: "soil_d13C", Default: -25.0},
		Param{Name: "soil_pCO2", Default: 1000.0},
		Param{Name: "atmo_exchange", Default: 0.0},
		Param{Name: "init_O2", Default: "mix", Kind: KindAny},
		Param{Name: "init_R14C", Default: "mix", Kind: KindAny},
		Param{Name: "init_d13C", Default: "mix", Kind: KindAny},
		Param{Name: "init_pCO2", Default: "mix", Kind: KindAny},
		Param{Name: "soil_Ba", Default: 0.0},
		Param{Name: "soil_Ca", Default: 0.0},
		Param{Name: "soil_Mg", Default: 0.0},
		Param{Name: "soil_Sr", Default: 0.0},
		Param{Name: "soil_U", Default: 0.0},
		Param{Name: "soil_d44Ca", Default: 0.0},

		// bedrock
		Param{Name: "bedrock_BaCa", Default: 0.0},
		Param{Name: "bedrock_MgCa", Default: 0.0},
		Param{Name: "bedrock_SrCa", Default: 0.0},
		Param{Name: "bedrock_UCa", Default: 0.0},
		Param{Name: "bedrock_d13C", Default: 0.0},
		Param{Name: "bedrock_d18O", Default: 0.0},
		Param{Name: "bedrock_d44Ca", Default: 0.0},
		Param{Name: "bedrock_mineral", Default: "Calcite", Kind: KindString},
		Param{Name: "precipitate_mineralogy", Default: "Calcite", Kind: KindString},
		Param{Name: "bedrock", Default: 10.0},
		Param{Name: "bedrock_pyrite", Default: 0.0},
		Param{Name: "gas_volume", Default: 250.0},
		Param{Name: "reprecip", Default: false, Kind: KindBool},

		// cave
		Param{Name: "cave_O2", Default: 0.21},
		Param{Name: "cave_pCO2", Default: 1000.0},
		Param{Name: "cave_d13C", Default: -10.0},
		Param{Name: "cave_R14C", Default: 100.0},
		Param{Name: "cave_d18O", Default: 0.0},
		Param{Name: "cave_air_volume", Default: 0.0},
		Param{Name: "temperature", Default: 20.0},

		// run control
		Param{Name: "kinetics_mode", Default: "multi_step_degassing", Kind: KindString},
		Param{Name: "co2_decrement", Default: 0.5},
		Param{Name: "calcite_sat_limit", Default: 1.0},
		// Empty selects the thermodynamic database from precipitate_mineralogy.
		Param{Name: "database", Default: "", Kind: KindString},
	)
}
