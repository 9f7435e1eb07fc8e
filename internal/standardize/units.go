// Package standardize normalizes extracted features into the canonical
// schema: unit conversion first, then nearest-neighbor schema mapping with a
// similarity threshold deciding resolved vs needs-review.
package standardize

import "strings"

// Converter normalizes a raw value and unit into canonical units.
type Converter interface {
	Convert(value float64, unit string) (float64, string)
}

type unitRule struct {
	target string
	apply  func(float64) float64
}

// UnitTable converts the recovered unit pairs. Unknown units pass through
// unchanged; the schema mapping step decides whether the field is usable.
type UnitTable struct {
	rules map[string]unitRule
}

// NewUnitTable creates the converter with the canonical target units
// (mS/cm for conductivity, C for temperatures).
func NewUnitTable() *UnitTable {
	return &UnitTable{
		rules: map[string]unitRule{
			"s/cm":  {target: "mS/cm", apply: func(v float64) float64 { return v * 1000 }},
			"ms/cm": {target: "mS/cm", apply: func(v float64) float64 { return v }},
			"k":     {target: "C", apply: func(v float64) float64 { return v - 273.15 }},
			"c":     {target: "C", apply: func(v float64) float64 { return v }},
		},
	}
}

// Convert applies the matching rule, or passes the value through untouched.
func (t *UnitTable) Convert(value float64, unit string) (float64, string) {
	rule, ok := t.rules[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return value, unit
	}
	return rule.apply(value), rule.target
}
