// Package output renders dashboards, logs and chat threads for the terminal,
// either as markdown or as raw JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/colthorp/nutrisync-cli-go/internal/dashboard"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
)

const barWidth = 20

// StreamJSONSlice writes items as a compact JSON array, one element at a time.
func StreamJSONSlice[T any](w io.Writer, items []T) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range items {
		if i > 0 {
			io.WriteString(w, ",")
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("error encoding JSON: %w", err)
		}
		w.Write(data)
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

// PrintJSON prints a single item as formatted JSON.
func PrintJSON(w io.Writer, item interface{}) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// bar draws a progress bar for a ratio; the figure beside it is unclamped.
func bar(ratio float64) string {
	filled := int(math.Round(math.Min(math.Max(ratio, 0), 1) * barWidth))
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), ratio*100)
}

// PrintSummary renders the dashboard block of a day.
func PrintSummary(w io.Writer, s models.DailySummary) {
	fmt.Fprintf(w, "## %s\n\n", s.Date)
	fmt.Fprintf(w, "Calories  %s  %.0f / %.0f kcal (burned %.0f, remaining %.0f)\n",
		bar(s.Progress.Calories), s.ConsumedCalories, s.TargetCalories, s.CaloriesBurned, s.RemainingCalories)
	fmt.Fprintf(w, "Protein   %s  %.0f / %.0f g\n", bar(s.Progress.Protein), s.ConsumedProtein, s.TargetProtein)
	fmt.Fprintf(w, "Carbs     %s  %.0f / %.0f g\n", bar(s.Progress.Carbs), s.ConsumedCarbs, s.TargetCarbs)
	fmt.Fprintf(w, "Fat       %s  %.0f / %.0f g\n", bar(s.Progress.Fat), s.ConsumedFat, s.TargetFat)
	fmt.Fprintf(w, "Water     %s  %.0f / %.0f ml\n", bar(s.Progress.Water), s.WaterConsumedMl, s.WaterTargetMl)
}

// PrintDay renders the dashboard followed by the day's logs grouped by meal.
func PrintDay(w io.Writer, d dashboard.Day) {
	PrintSummary(w, d.Summary)

	byMeal := make(map[models.MealType][]models.FoodLog)
	for _, l := range d.Food {
		byMeal[l.MealType] = append(byMeal[l.MealType], l)
	}
	for _, mt := range models.MealTypes {
		logs := byMeal[mt]
		if len(logs) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n### %s\n\n", mealLabel(mt))
		for _, l := range logs {
			t := nutrition.SumItems(l.Items)
			fmt.Fprintf(w, "- %s (%.0f kcal) `%s`\n", itemNames(l.Items), t.Calories, l.ID)
		}
	}

	if len(d.Exercise) > 0 {
		fmt.Fprint(w, "\n### Exercise\n\n")
		for _, l := range d.Exercise {
			fmt.Fprintf(w, "- %s, %d min %s (%d kcal) `%s`\n",
				l.ExerciseName, l.DurationMinutes, strings.ToLower(string(l.Intensity)), l.CaloriesBurned, l.ID)
		}
	}

	if len(d.Water) > 0 {
		fmt.Fprint(w, "\n### Water\n\n")
		for _, l := range d.Water {
			fmt.Fprintf(w, "- %d ml at %s `%s`\n", l.AmountMl, l.LoggedAt.Format("15:04"), l.ID)
		}
	}
}

func mealLabel(mt models.MealType) string {
	s := string(mt)
	return s[:1] + strings.ToLower(s[1:])
}

func itemNames(items []models.FoodItem) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return strings.Join(names, ", ")
}

// PrintWeek renders one line per day.
func PrintWeek(w io.Writer, days []models.DailySummary) {
	fmt.Fprintln(w, "| Date | Eaten | Burned | Remaining | Water |")
	fmt.Fprintln(w, "|---|---:|---:|---:|---:|")
	var eaten, burned float64
	for _, s := range days {
		fmt.Fprintf(w, "| %s | %.0f | %.0f | %.0f | %.0f ml |\n",
			s.Date, s.ConsumedCalories, s.CaloriesBurned, s.RemainingCalories, s.WaterConsumedMl)
		eaten += s.ConsumedCalories
		burned += s.CaloriesBurned
	}
	if len(days) > 0 {
		fmt.Fprintf(w, "\nAverage: %.0f kcal eaten, %.0f kcal burned per day\n",
			eaten/float64(len(days)), burned/float64(len(days)))
	}
}

// PrintMessages renders a chat thread. Unconfirmed messages are marked.
func PrintMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		who := "You"
		if m.Sender == models.SenderAssistant {
			who = "Assistant"
		}
		suffix := ""
		if m.Pending {
			suffix = " (sending)"
		}
		fmt.Fprintf(w, "**%s**%s: %s\n\n", who, suffix, m.Content)
	}
}
