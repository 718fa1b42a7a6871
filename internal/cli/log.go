package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colthorp/nutrisync-cli-go/internal/app"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
	"github.com/colthorp/nutrisync-cli-go/internal/output"
)

// mutate preloads the day so the write is applied optimistically, runs start,
// waits for the server and prints the outcome.
func mutate[R any](g *globals, cmd *cobra.Command, date, what string,
	start func(ctx context.Context, a *app.App) (*optimistic.Mutation[R], error)) error {
	return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
		if _, err := a.Dashboard.Load(ctx, date); err != nil {
			g.log.Warn().Err(err).Str("date", date).Msg("could not preload day")
		}

		m, err := start(ctx, a)
		if err != nil {
			return err
		}
		g.progress("%s (pending %s)…", what, m.ID())

		res, err := m.Wait(ctx)
		if err != nil {
			g.progress("%s failed; local changes rolled back", what)
			return err
		}

		if g.raw {
			return output.PrintJSON(cmd.OutOrStdout(), res)
		}
		day, err := a.Dashboard.Load(ctx, date)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s.\n\n", what)
		output.PrintSummary(cmd.OutOrStdout(), day.Summary)
		return nil
	})
}

// dateFlag registers --date on cmd.
func dateFlag(cmd *cobra.Command, spec *string) {
	cmd.Flags().StringVarP(spec, "date", "d", "today", "Date spec of the log (e.g. today, d-1, 2026-10-16)")
}

func newLogCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log food, water or exercise",
	}
	cmd.AddCommand(newLogFoodCmd(g), newLogWaterCmd(g), newLogExerciseCmd(g))
	return cmd
}

func newLogFoodCmd(g *globals) *cobra.Command {
	var (
		dateSpec, meal, name, unit    string
		quantity, kcal, protein, carb float64
		fats                          float64
	)
	cmd := &cobra.Command{
		Use:   "food",
		Short: "Log a meal with one item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := g.resolveDate(dateSpec)
			if err != nil {
				return err
			}
			mt, err := models.ParseMealType(meal)
			if err != nil {
				return core.Invalid("mealType", "%v", err)
			}
			item := models.FoodItem{Name: name, Quantity: quantity, Unit: unit, Calories: kcal, Protein: protein, Carbs: carb}
			if cmd.Flags().Changed("fats") {
				item.Fats = &fats
			}
			form := models.FoodLogForm{Date: date, MealType: mt, Items: []models.FoodItem{item}}
			return mutate(g, cmd, date, fmt.Sprintf("Logged %s", name),
				func(ctx context.Context, a *app.App) (*optimistic.Mutation[models.FoodLog], error) {
					return a.Health.AddFoodLog(ctx, form)
				})
		},
	}
	dateFlag(cmd, &dateSpec)
	cmd.Flags().StringVar(&meal, "meal", "", "breakfast, lunch, dinner or snack")
	cmd.Flags().StringVar(&name, "name", "", "Food name")
	cmd.Flags().Float64Var(&quantity, "quantity", 1, "Quantity")
	cmd.Flags().StringVar(&unit, "unit", "serving", "Unit of the quantity")
	cmd.Flags().Float64Var(&kcal, "calories", 0, "Calories (kcal)")
	cmd.Flags().Float64Var(&protein, "protein", 0, "Protein (g)")
	cmd.Flags().Float64Var(&carb, "carbs", 0, "Carbohydrates (g)")
	cmd.Flags().Float64Var(&fats, "fats", 0, "Fat (g); omitted means unknown")
	cmd.MarkFlagRequired("meal")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newLogWaterCmd(g *globals) *cobra.Command {
	var dateSpec string
	cmd := &cobra.Command{
		Use:   "water [amount_ml]",
		Short: "Log a drink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ml int
			if _, err := fmt.Sscan(args[0], &ml); err != nil {
				return core.Invalid("amountMl", "%q is not a whole number", args[0])
			}
			date, err := g.resolveDate(dateSpec)
			if err != nil {
				return err
			}
			form := models.WaterLogForm{Date: date, AmountMl: ml}
			return mutate(g, cmd, date, fmt.Sprintf("Logged %d ml of water", ml),
				func(ctx context.Context, a *app.App) (*optimistic.Mutation[models.WaterLog], error) {
					return a.Health.AddWaterLog(ctx, form)
				})
		},
	}
	dateFlag(cmd, &dateSpec)
	return cmd
}

func newLogExerciseCmd(g *globals) *cobra.Command {
	var (
		dateSpec, intensity string
		minutes, kcal       int
	)
	cmd := &cobra.Command{
		Use:   "exercise [name]",
		Short: "Log a workout; calories are estimated unless given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := models.ParseIntensity(intensity)
			if err != nil {
				return core.Invalid("intensity", "%v", err)
			}
			date, err := g.resolveDate(dateSpec)
			if err != nil {
				return err
			}
			form := models.ExerciseLogForm{
				Date:            date,
				ExerciseName:    args[0],
				Intensity:       in,
				DurationMinutes: minutes,
				CaloriesBurned:  kcal,
			}
			return mutate(g, cmd, date, fmt.Sprintf("Logged %s", args[0]),
				func(ctx context.Context, a *app.App) (*optimistic.Mutation[models.ExerciseLog], error) {
					return a.Health.AddExerciseLog(ctx, form)
				})
		},
	}
	dateFlag(cmd, &dateSpec)
	cmd.Flags().StringVarP(&intensity, "intensity", "i", string(models.IntensityModerate), "low, moderate or high")
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 30, "Duration in minutes")
	cmd.Flags().IntVar(&kcal, "calories", 0, "Calories burned (default: estimated)")
	return cmd
}

func newExerciseCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exercise",
		Short: "Change or remove logged workouts",
	}

	var (
		updDate, intensity string
		minutes            int
	)
	update := &cobra.Command{
		Use:   "update [id]",
		Short: "Change the intensity or duration of a workout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := models.ParseIntensity(intensity)
			if err != nil {
				return core.Invalid("intensity", "%v", err)
			}
			date, err := g.resolveDate(updDate)
			if err != nil {
				return err
			}
			upd := models.ExerciseUpdate{Date: date, ID: args[0], Intensity: in, DurationMinutes: minutes}
			return mutate(g, cmd, date, "Updated workout",
				func(ctx context.Context, a *app.App) (*optimistic.Mutation[models.ExerciseLog], error) {
					return a.Health.UpdateExercise(ctx, upd)
				})
		},
	}
	dateFlag(update, &updDate)
	update.Flags().StringVarP(&intensity, "intensity", "i", "", "low, moderate or high")
	update.Flags().IntVarP(&minutes, "minutes", "m", 0, "Duration in minutes")
	update.MarkFlagRequired("intensity")
	update.MarkFlagRequired("minutes")

	cmd.AddCommand(update, newDeleteCmd(g, "workout",
		func(ctx context.Context, a *app.App, date, id string) (*optimistic.Mutation[struct{}], error) {
			return a.Health.DeleteExerciseLog(ctx, date, id)
		}))
	return cmd
}

func newFoodCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "food",
		Short: "Remove logged meals",
	}
	cmd.AddCommand(newDeleteCmd(g, "meal",
		func(ctx context.Context, a *app.App, date, id string) (*optimistic.Mutation[struct{}], error) {
			return a.Health.DeleteFoodLog(ctx, date, id)
		}))
	return cmd
}

func newWaterCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "water",
		Short: "Remove logged drinks",
	}
	cmd.AddCommand(newDeleteCmd(g, "drink",
		func(ctx context.Context, a *app.App, date, id string) (*optimistic.Mutation[struct{}], error) {
			return a.Health.DeleteWaterLog(ctx, date, id)
		}))
	return cmd
}

type deleteFunc func(ctx context.Context, a *app.App, date, id string) (*optimistic.Mutation[struct{}], error)

func newDeleteCmd(g *globals, noun string, del deleteFunc) *cobra.Command {
	var dateSpec string
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: fmt.Sprintf("Delete a %s", noun),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := g.resolveDate(dateSpec)
			if err != nil {
				return err
			}
			return mutate(g, cmd, date, fmt.Sprintf("Deleted %s %s", noun, args[0]),
				func(ctx context.Context, a *app.App) (*optimistic.Mutation[struct{}], error) {
					return del(ctx, a, date, args[0])
				})
		},
	}
	dateFlag(cmd, &dateSpec)
	return cmd
}
