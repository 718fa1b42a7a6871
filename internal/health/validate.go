package health

import (
	"math"
	"strings"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

func validateDate(date string) error {
	if strings.TrimSpace(date) == "" {
		return core.Invalid("date", "is required")
	}
	if _, err := core.ParseDate(date); err != nil {
		return core.Invalid("date", "%q is not an ISO date (YYYY-MM-DD)", date)
	}
	return nil
}

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return core.Invalid(field, "is required")
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateItem(i int, item models.FoodItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return core.Invalid("items", "item %d has no name", i+1)
	}
	type field struct {
		name string
		v    float64
	}
	checks := []field{
		{"quantity", item.Quantity},
		{"calories", item.Calories},
		{"protein", item.Protein},
		{"carbs", item.Carbs},
	}
	if item.Fats != nil {
		checks = append(checks, field{"fats", *item.Fats})
	}
	for _, c := range checks {
		if !finiteNonNegative(c.v) {
			return core.Invalid("items", "item %d (%s) has invalid %s %v", i+1, item.Name, c.name, c.v)
		}
	}
	return nil
}

func validateFoodForm(form models.FoodLogForm) error {
	if err := validateDate(form.Date); err != nil {
		return err
	}
	if _, err := models.ParseMealType(string(form.MealType)); err != nil {
		return core.Invalid("mealType", "must be one of BREAKFAST, LUNCH, DINNER, SNACK")
	}
	if len(form.Items) == 0 {
		return core.Invalid("items", "at least one food item is required")
	}
	for i, item := range form.Items {
		if err := validateItem(i, item); err != nil {
			return err
		}
	}
	return nil
}

func validateDuration(minutes int) error {
	if minutes <= 0 || minutes > core.MaxExerciseMinutes {
		return core.Invalid("durationMinutes", "must be between 1 and %d, got %d", core.MaxExerciseMinutes, minutes)
	}
	return nil
}

func validateExerciseForm(form models.ExerciseLogForm) error {
	if err := validateDate(form.Date); err != nil {
		return err
	}
	if strings.TrimSpace(form.ExerciseName) == "" {
		return core.Invalid("exerciseName", "is required")
	}
	if _, err := models.ParseIntensity(string(form.Intensity)); err != nil {
		return core.Invalid("intensity", "must be one of LOW, MODERATE, HIGH")
	}
	if form.CaloriesBurned < 0 {
		return core.Invalid("caloriesBurned", "must not be negative")
	}
	return validateDuration(form.DurationMinutes)
}

func validateExerciseUpdate(upd models.ExerciseUpdate) error {
	if err := validateDate(upd.Date); err != nil {
		return err
	}
	if err := validateID("id", upd.ID); err != nil {
		return err
	}
	if _, err := models.ParseIntensity(string(upd.Intensity)); err != nil {
		return core.Invalid("intensity", "must be one of LOW, MODERATE, HIGH")
	}
	return validateDuration(upd.DurationMinutes)
}

func validateWaterForm(form models.WaterLogForm) error {
	if err := validateDate(form.Date); err != nil {
		return err
	}
	if form.AmountMl <= 0 || form.AmountMl > core.MaxWaterMl {
		return core.Invalid("amountMl", "must be between 1 and %d, got %d", core.MaxWaterMl, form.AmountMl)
	}
	return nil
}
