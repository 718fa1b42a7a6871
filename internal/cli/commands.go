package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colthorp/nutrisync-cli-go/internal/app"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/output"
)

func newDashboardCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard [date_spec]",
		Short: "Show the dashboard and logs of a day (e.g. today, d-1, 7/15, 2026-10-16)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := "today"
			if len(args) == 1 {
				spec = args[0]
			}
			date, err := g.resolveDate(spec)
			if err != nil {
				return err
			}
			return g.showDay(cmd, date)
		},
	}
}

// showDay loads one day through the router and prints it.
func (g *globals) showDay(cmd *cobra.Command, date string) error {
	return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
		g.progress("Fetching dashboard for %s…", date)
		day, err := a.Dashboard.Load(ctx, date)
		if err != nil {
			return err
		}
		if g.raw {
			return output.PrintJSON(cmd.OutOrStdout(), day)
		}
		output.PrintDay(cmd.OutOrStdout(), day)
		return nil
	})
}

func newWeekCmd(g *globals) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "week [week_spec]",
		Short: "Summarize an ISO week (e.g. 42 or 2026-W42)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := core.ParseWeekSpec(args[0])
			if err != nil {
				return fmt.Errorf("invalid week specification '%s': %w", args[0], err)
			}
			return g.showRange(cmd, start.Format(core.APIDateFmt), end.Format(core.APIDateFmt), parallel)
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", core.RangeMaxWorkers, "Max days to fetch in parallel")
	return cmd
}

func newRelativePeriodCmd(g *globals, period string) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   period,
		Short: fmt.Sprintf("Show %s", period),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := core.GetDateRange(period, g.now(), g.cfg.Location())
			if err != nil {
				return err
			}
			if start.Equal(end) {
				return g.showDay(cmd, core.FormatDate(start))
			}
			return g.showRange(cmd, core.FormatDate(start), core.FormatDate(end), parallel)
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", core.RangeMaxWorkers, "Max days to fetch in parallel")
	return cmd
}

// showRange prints one summary line per day. Days before the account existed
// or too far ahead are skipped.
func (g *globals) showRange(cmd *cobra.Command, start, end string, parallel int) error {
	s, err := core.ParseDate(start)
	if err != nil {
		return err
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return err
	}
	return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
		g.progress("Fetching summaries from %s to %s…", start, end)
		days, err := a.Dashboard.LoadRange(ctx, s, e, parallel)
		if err != nil {
			return err
		}
		if g.raw {
			return output.StreamJSONSlice(cmd.OutOrStdout(), days)
		}
		output.PrintWeek(cmd.OutOrStdout(), days)
		return nil
	})
}

func newEstimateCmd(g *globals) *cobra.Command {
	var (
		intensity string
		minutes   float64
		weight    float64
	)
	cmd := &cobra.Command{
		Use:   "estimate [exercise]",
		Short: "Estimate calories burned by an exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := models.ParseIntensity(intensity)
			if err != nil {
				return core.Invalid("intensity", "%v", err)
			}
			if minutes <= 0 {
				return core.Invalid("minutes", "must be positive")
			}
			if weight <= 0 {
				weight = g.cfg.Profile.WeightKg
			}
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				kcal := a.Health.Estimator(ctx).Estimate(args[0], minutes, in, weight)
				if g.raw {
					return output.PrintJSON(cmd.OutOrStdout(), map[string]interface{}{
						"exerciseName":    args[0],
						"intensity":       in,
						"durationMinutes": minutes,
						"weightKg":        weight,
						"caloriesBurned":  kcal,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s, %.0f min %s at %.1f kg: ~%d kcal\n", args[0], minutes, in, weight, kcal)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&intensity, "intensity", "i", string(models.IntensityModerate), "low, moderate or high")
	cmd.Flags().Float64VarP(&minutes, "minutes", "m", 30, "Duration in minutes")
	cmd.Flags().Float64Var(&weight, "weight", 0, "Body weight in kg (default: profile.weightKg)")
	return cmd
}
