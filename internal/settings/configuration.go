package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Configuration is one complete parameter assignment. Keys are exactly the
// defaults table's names in table order. Configurations are immutable.
type Configuration struct {
	schema *schema
	values []interface{}
}

// Len returns the number of parameters.
func (c Configuration) Len() int { return len(c.values) }

// Keys returns parameter names in order.
func (c Configuration) Keys() []string {
	if c.schema == nil {
		return nil
	}
	out := make([]string, len(c.schema.names))
	copy(out, c.schema.names)
	return out
}

// Get returns the value of a parameter.
func (c Configuration) Get(name string) (interface{}, bool) {
	if c.schema == nil {
		return nil, false
	}
	i, ok := c.schema.index[name]
	if !ok {
		return nil, false
	}
	return c.values[i], true
}

// Float returns a numeric parameter.
func (c Configuration) Float(name string) (float64, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// String returns a string parameter.
func (c Configuration) String(name string) (string, bool) {
	v, ok := c.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Values returns the values in key order.
func (c Configuration) Values() []interface{} {
	out := make([]interface{}, len(c.values))
	copy(out, c.values)
	return out
}

// Map returns the configuration as a map, the shape solvers accept.
func (c Configuration) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(c.values))
	if c.schema == nil {
		return m
	}
	for i, name := range c.schema.names {
		m[name] = c.values[i]
	}
	return m
}

// Formatted returns each value rendered with FormatValue, in key order.
func (c Configuration) Formatted() []string {
	out := make([]string, len(c.values))
	for i, v := range c.values {
		out[i] = FormatValue(v)
	}
	return out
}

// Fingerprint is a stable hex digest of the ordered key/value pairs. Two
// configurations have the same fingerprint iff they assign identical values
// to identical keys.
func (c Configuration) Fingerprint() string {
	type pair struct {
		K string      `json:"k"`
		V interface{} `json:"v"`
	}
	pairs := make([]pair, len(c.values))
	for i, v := range c.values {
		pairs[i] = pair{K: c.schema.names[i], V: v}
	}
	// Scalars only, so marshal cannot fail.
	b, _ := json.Marshal(pairs)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
