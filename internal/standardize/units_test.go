package standardize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitTableConvert(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		unit      string
		wantValue float64
		wantUnit  string
	}{
		{"S/cm to mS/cm", 3.6e-3, "S/cm", 3.6, "mS/cm"},
		{"mS/cm unchanged", 1.2, "mS/cm", 1.2, "mS/cm"},
		{"kelvin to celsius", 823.15, "K", 550, "C"},
		{"celsius unchanged", 550, "C", 550, "C"},
		{"case insensitive", 2e-3, "s/cm", 2, "mS/cm"},
		{"whitespace tolerated", 300, " K ", 26.850000000000023, "C"},
		{"unknown unit passes through", 500, "rpm", 500, "rpm"},
		{"empty unit passes through", 10, "", 10, ""},
	}

	table := NewUnitTable()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, unit := table.Convert(tt.value, tt.unit)
			assert.InDelta(t, tt.wantValue, value, 1e-9)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}
