// Package exercise estimates energy expenditure from MET tables.
package exercise

import (
	"math"
	"strings"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

// DefaultKey is the table row used for exercises the table does not know.
const DefaultKey = "default"

// FallbackMET applies when the resolved row has no value for the intensity.
const FallbackMET = 5.0

// Table maps a normalized exercise key to MET values per intensity.
type Table map[string]map[models.Intensity]float64

// DefaultTable is the built-in table used until the backend's reference table
// has been loaded.
var DefaultTable = Table{
	"running":         {models.IntensityLow: 6.0, models.IntensityModerate: 8.3, models.IntensityHigh: 11.0},
	"walking":         {models.IntensityLow: 2.8, models.IntensityModerate: 3.5, models.IntensityHigh: 5.0},
	"cycling":         {models.IntensityLow: 4.0, models.IntensityModerate: 6.8, models.IntensityHigh: 10.0},
	"swimming":        {models.IntensityLow: 5.8, models.IntensityModerate: 7.0, models.IntensityHigh: 9.8},
	"yoga":            {models.IntensityLow: 2.0, models.IntensityModerate: 2.5, models.IntensityHigh: 4.0},
	"weight training": {models.IntensityLow: 3.5, models.IntensityModerate: 5.0, models.IntensityHigh: 6.0},
	"hiit":            {models.IntensityModerate: 8.0, models.IntensityHigh: 12.0},
	"rowing":          {models.IntensityLow: 4.8, models.IntensityModerate: 7.0, models.IntensityHigh: 8.5},
	"elliptical":      {models.IntensityLow: 4.6, models.IntensityModerate: 5.0, models.IntensityHigh: 6.3},
	"jump rope":       {models.IntensityModerate: 11.8, models.IntensityHigh: 12.3},
	DefaultKey:        {models.IntensityLow: 3.5, models.IntensityModerate: 5.0, models.IntensityHigh: 7.0},
}

// TableFromTypes builds a table from the backend's exercise reference rows.
// The built-in default row is kept when the backend omits one.
func TableFromTypes(types []models.ExerciseType) Table {
	t := make(Table, len(types)+1)
	for _, et := range types {
		key := Normalize(et.Key)
		if key == "" {
			key = Normalize(et.Name)
		}
		if key == "" {
			continue
		}
		row := make(map[models.Intensity]float64, len(et.MET))
		for in, met := range et.MET {
			row[in] = met
		}
		t[key] = row
	}
	if _, ok := t[DefaultKey]; !ok {
		t[DefaultKey] = DefaultTable[DefaultKey]
	}
	return t
}

// Normalize lower-cases and trims an exercise key.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// MET resolves the MET value for an exercise and intensity. Unknown exercises
// fall back to the default row; an intensity missing from the row falls back
// to FallbackMET.
func (t Table) MET(exerciseKey string, intensity models.Intensity) float64 {
	row, ok := t[Normalize(exerciseKey)]
	if !ok {
		row, ok = t[DefaultKey]
	}
	if !ok {
		return FallbackMET
	}
	in := models.Intensity(strings.ToUpper(strings.TrimSpace(string(intensity))))
	if met, ok := row[in]; ok && met > 0 && !math.IsNaN(met) {
		return met
	}
	return FallbackMET
}

// Estimate returns round(MET × weightKg × minutes/60). It never fails:
// non-positive weight uses the default body weight, a negative or NaN
// duration counts as zero and the result saturates at math.MaxInt32.
func (t Table) Estimate(exerciseKey string, durationMinutes float64, intensity models.Intensity, weightKg float64) int {
	if weightKg <= 0 || math.IsNaN(weightKg) || math.IsInf(weightKg, 0) {
		weightKg = core.DefaultWeightKg
	}
	if durationMinutes < 0 || math.IsNaN(durationMinutes) || math.IsInf(durationMinutes, 0) {
		durationMinutes = 0
	}
	kcal := math.Round(t.MET(exerciseKey, intensity) * weightKg * durationMinutes / 60)
	if kcal >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(kcal)
}

// Estimate uses the built-in table.
func Estimate(exerciseKey string, durationMinutes float64, intensity models.Intensity, weightKg float64) int {
	return DefaultTable.Estimate(exerciseKey, durationMinutes, intensity, weightKg)
}
