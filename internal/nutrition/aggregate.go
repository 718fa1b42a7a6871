// Package nutrition computes macro totals from food items and keeps a
// DailySummary consistent while logs are added, changed and removed.
package nutrition

import (
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

// Totals is the nutrition contribution of a set of food items.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Delta is a signed change to the consumed and burned fields of a summary.
type Delta struct {
	Calories       float64
	Protein        float64
	Carbs          float64
	Fat            float64
	WaterMl        float64
	CaloriesBurned float64
}

// SumItems adds up items exactly. A nil Fats counts as zero.
func SumItems(items []models.FoodItem) Totals {
	var t Totals
	for _, item := range items {
		t.Calories += item.Calories
		t.Protein += item.Protein
		t.Carbs += item.Carbs
		if item.Fats != nil {
			t.Fat += *item.Fats
		}
	}
	return t
}

// FoodDelta converts item totals into a summary delta.
func FoodDelta(items []models.FoodItem) Delta {
	t := SumItems(items)
	return Delta{Calories: t.Calories, Protein: t.Protein, Carbs: t.Carbs, Fat: t.Fat}
}

// Diff is the delta of replacing oldItems with newItems.
func Diff(newItems, oldItems []models.FoodItem) Delta {
	return FoodDelta(newItems).Sub(FoodDelta(oldItems))
}

// WaterDelta is the summary delta of a drink.
func WaterDelta(amountMl int) Delta {
	return Delta{WaterMl: float64(amountMl)}
}

// BurnDelta is the summary delta of a workout.
func BurnDelta(kcal int) Delta {
	return Delta{CaloriesBurned: float64(kcal)}
}

// Sub returns d − o.
func (d Delta) Sub(o Delta) Delta {
	return Delta{
		Calories:       d.Calories - o.Calories,
		Protein:        d.Protein - o.Protein,
		Carbs:          d.Carbs - o.Carbs,
		Fat:            d.Fat - o.Fat,
		WaterMl:        d.WaterMl - o.WaterMl,
		CaloriesBurned: d.CaloriesBurned - o.CaloriesBurned,
	}
}

// Add returns d + o.
func (d Delta) Add(o Delta) Delta {
	return d.Sub(o.Neg())
}

// Neg flips every component.
func (d Delta) Neg() Delta {
	return Delta{
		Calories:       -d.Calories,
		Protein:        -d.Protein,
		Carbs:          -d.Carbs,
		Fat:            -d.Fat,
		WaterMl:        -d.WaterMl,
		CaloriesBurned: -d.CaloriesBurned,
	}
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// ApplyDelta adds (sign=+1) or subtracts (sign=-1) delta from the consumed and
// burned fields of s. Each field is floored at zero; when a floor is hit the
// returned warning names the affected fields. Remaining calories and progress
// ratios are recomputed before returning.
func ApplyDelta(s models.DailySummary, delta Delta, sign int) (models.DailySummary, *core.ConsistencyWarning) {
	if sign < 0 {
		delta = delta.Neg()
	}

	var floored []string
	add := func(field string, current, change float64) float64 {
		next := current + change
		if next < 0 {
			// Tolerate float noise from repeated add/subtract cycles.
			if next < -epsilon {
				floored = append(floored, field)
			}
			return 0
		}
		return next
	}

	s.ConsumedCalories = add("consumedCalories", s.ConsumedCalories, delta.Calories)
	s.ConsumedProtein = add("consumedProtein", s.ConsumedProtein, delta.Protein)
	s.ConsumedCarbs = add("consumedCarbs", s.ConsumedCarbs, delta.Carbs)
	s.ConsumedFat = add("consumedFat", s.ConsumedFat, delta.Fat)
	s.WaterConsumedMl = add("waterConsumedMl", s.WaterConsumedMl, delta.WaterMl)
	s.CaloriesBurned = add("caloriesBurned", s.CaloriesBurned, delta.CaloriesBurned)

	s = Recompute(s)

	if len(floored) > 0 {
		return s, &core.ConsistencyWarning{Fields: floored}
	}
	return s, nil
}

const epsilon = 1e-6

// Recompute derives remaining calories and unclamped progress ratios.
func Recompute(s models.DailySummary) models.DailySummary {
	s.RemainingCalories = s.TargetCalories + s.CaloriesBurned - s.ConsumedCalories
	s.Progress = models.Progress{
		Calories: ratio(s.ConsumedCalories, s.TargetCalories),
		Protein:  ratio(s.ConsumedProtein, s.TargetProtein),
		Carbs:    ratio(s.ConsumedCarbs, s.TargetCarbs),
		Fat:      ratio(s.ConsumedFat, s.TargetFat),
		Water:    ratio(s.WaterConsumedMl, s.WaterTargetMl),
	}
	return s
}

func ratio(consumed, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return consumed / target
}

// Summarize builds a summary for date from targets and the full set of logs.
// The backend and tests use it as the reference aggregate.
func Summarize(base models.DailySummary, food []models.FoodLog, exercise []models.ExerciseLog, water []models.WaterLog) models.DailySummary {
	s := base
	s.ConsumedCalories, s.ConsumedProtein, s.ConsumedCarbs, s.ConsumedFat = 0, 0, 0, 0
	s.CaloriesBurned, s.WaterConsumedMl = 0, 0

	for _, log := range food {
		t := SumItems(log.Items)
		s.ConsumedCalories += t.Calories
		s.ConsumedProtein += t.Protein
		s.ConsumedCarbs += t.Carbs
		s.ConsumedFat += t.Fat
	}
	for _, log := range exercise {
		s.CaloriesBurned += float64(log.CaloriesBurned)
	}
	for _, log := range water {
		s.WaterConsumedMl += float64(log.AmountMl)
	}
	return Recompute(s)
}
