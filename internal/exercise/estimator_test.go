package exercise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		minutes   float64
		intensity models.Intensity
		weight    float64
		want      int
	}{
		{"running moderate", "running", 30, models.IntensityModerate, 70, 291},
		{"key is normalized", "  Running ", 30, models.IntensityModerate, 70, 291},
		{"lower-case intensity", "running", 30, "moderate", 70, 291},
		{"walking low", "walking", 60, models.IntensityLow, 80, 224},
		{"unknown uses default row", "underwater basket weaving", 30, models.IntensityModerate, 70, 175},
		{"missing intensity falls back to 5.0", "hiit", 60, models.IntensityLow, 70, 350},
		{"empty intensity", "yoga", 60, "", 70, 350},
		{"zero weight uses default", "running", 30, models.IntensityModerate, 0, 291},
		{"negative weight uses default", "running", 30, models.IntensityModerate, -10, 291},
		{"negative duration is zero", "running", -5, models.IntensityHigh, 70, 0},
		{"NaN duration is zero", "running", math.NaN(), models.IntensityHigh, 70, 0},
		{"zero duration", "cycling", 0, models.IntensityHigh, 70, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.key, tt.minutes, tt.intensity, tt.weight)
			assert.Equal(t, tt.want, got, "Estimate(%q, %v, %q, %v)", tt.key, tt.minutes, tt.intensity, tt.weight)
		})
	}
}

func TestEstimateSaturates(t *testing.T) {
	assert.Equal(t, math.MaxInt32, Estimate("running", 1e12, models.IntensityHigh, 70))
	assert.Equal(t, math.MaxInt32, Estimate("running", 60, models.IntensityHigh, 1e308))
	assert.Equal(t, math.MaxInt32, Estimate("running", math.MaxFloat64, models.IntensityHigh, math.MaxFloat64))
}

func TestEstimateIsPure(t *testing.T) {
	first := Estimate("swimming", 45, models.IntensityHigh, 62.5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Estimate("swimming", 45, models.IntensityHigh, 62.5))
	}
}

func TestTableFromTypes(t *testing.T) {
	table := TableFromTypes([]models.ExerciseType{
		{Key: "Pilates", Name: "Pilates", MET: map[models.Intensity]float64{models.IntensityModerate: 3.0}},
		{Name: "Boxing", MET: map[models.Intensity]float64{models.IntensityHigh: 12.8}},
		{Key: "", Name: ""},
	})

	assert.Equal(t, 3.0, table.MET("pilates", models.IntensityModerate))
	assert.Equal(t, 12.8, table.MET("boxing", models.IntensityHigh))
	assert.Equal(t, FallbackMET, table.MET("pilates", models.IntensityHigh))
	// default row is carried over from the built-in table
	assert.Equal(t, 7.0, table.MET("running", models.IntensityHigh))
	assert.Len(t, table, 3)
}

func TestMETEmptyTable(t *testing.T) {
	assert.Equal(t, FallbackMET, Table{}.MET("running", models.IntensityHigh))
}
