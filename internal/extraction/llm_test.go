package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

func TestParseExtraction(t *testing.T) {
	raw := `{
		"doi": "10.1000/test",
		"material_id": "Li6PS5Cl",
		"ionic_conductivity": 3.6e-3,
		"ionic_conductivity_unit": "S/cm",
		"activation_energy": 0.30,
		"sintering_temp": 550,
		"ball_milling_rpm": 500,
		"additional_features": {"grain_size": 10, "relative_density": 95},
		"confidence": 0.9
	}`

	tests := []struct {
		name string
		out  string
	}{
		{"bare json", raw},
		{"json fence", "```json\n" + raw + "\n```"},
		{"plain fence", "```\n" + raw + "\n```"},
		{"prose wrapped", "Here is the extraction:\n" + raw + "\nLet me know if you need more."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseExtraction(tt.out)
			require.NoError(t, err)
			assert.Equal(t, "10.1000/test", result.DOI)
			assert.Equal(t, "Li6PS5Cl", result.MaterialID)
			require.NotNil(t, result.IonicConductivity)
			assert.InDelta(t, 3.6e-3, *result.IonicConductivity, 1e-9)
			assert.Equal(t, 0.9, result.Confidence)
		})
	}
}

func TestParseExtractionNulls(t *testing.T) {
	result, err := parseExtraction(`{"doi": "", "material_id": "LLZO", "ionic_conductivity": null}`)
	require.NoError(t, err)
	assert.Nil(t, result.IonicConductivity)
	assert.Nil(t, result.ActivationEnergy)
}

func TestParseExtractionGarbage(t *testing.T) {
	_, err := parseExtraction("I could not find any data in this paper.")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestToRecord(t *testing.T) {
	cond := 3.6e-3
	energy := 0.3
	temp := 550.0
	rpm := 500.0

	result := &extractionResult{
		DOI:                "10.1000/test",
		MaterialID:         "Li6PS5Cl",
		IonicConductivity:  &cond,
		ActivationEnergy:   &energy,
		SinteringTemp:      &temp,
		BallMillingRPM:     &rpm,
		AdditionalFeatures: map[string]any{"grain_size": 10.0, "notes": "not numeric"},
		Confidence:         0.85,
	}

	rec := result.toRecord(pipeline.Document{ID: "doc1"})
	assert.Equal(t, "doc1", rec.DocumentID)
	assert.Equal(t, pipeline.ExtractionSucceeded, rec.Status)
	assert.Equal(t, 0.85, rec.Confidence)

	byName := map[string]pipeline.Feature{}
	for _, f := range rec.Features {
		byName[f.Name] = f
	}
	// Defaulted unit, fixed units, and numeric-only additional features.
	assert.Equal(t, "S/cm", byName["ionic_cond"].Unit)
	assert.Equal(t, "eV", byName["act_energy"].Unit)
	assert.Equal(t, "C", byName["sintering_T"].Unit)
	assert.Equal(t, "rpm", byName["milling_spd"].Unit)
	assert.Contains(t, byName, "grain_size")
	assert.NotContains(t, byName, "notes")
}

func TestToRecordFallsBackToDocumentID(t *testing.T) {
	rec := (&extractionResult{MaterialID: "LLZO"}).toRecord(pipeline.Document{ID: "paper_7"})
	assert.Equal(t, "paper_7", rec.DOI)
}
