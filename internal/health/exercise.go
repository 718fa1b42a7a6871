package health

import (
	"context"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

func burned(l models.ExerciseLog) nutrition.Delta {
	return nutrition.BurnDelta(l.CaloriesBurned)
}

// AddExerciseLog logs a workout. Unless the form carries its own figure, the
// calories burned are estimated from the MET table and the estimate is sent
// to the server. The dashboard moves by the estimate right away and by the
// difference to the confirmed figure on commit.
func (s *Service) AddExerciseLog(ctx context.Context, form models.ExerciseLogForm) (*optimistic.Mutation[models.ExerciseLog], error) {
	if err := validateExerciseForm(form); err != nil {
		return nil, err
	}
	form.Intensity, _ = models.ParseIntensity(string(form.Intensity))
	form.LoggedAt = s.stamp(form.LoggedAt)
	if form.CaloriesBurned <= 0 {
		form.CaloriesBurned = s.Estimator(ctx).Estimate(form.ExerciseName, float64(form.DurationMinutes), form.Intensity, s.weightKg)
	}

	placeholder := func(tempID string) models.ExerciseLog {
		return models.ExerciseLog{
			ID:              tempID,
			Date:            form.Date,
			ExerciseName:    form.ExerciseName,
			Intensity:       form.Intensity,
			DurationMinutes: form.DurationMinutes,
			CaloriesBurned:  form.CaloriesBurned,
			LoggedAt:        form.LoggedAt,
		}
	}

	return optimistic.Run(ctx, s.co, optimistic.Plan[models.ExerciseLog]{
		Op:    OpAddExerciseLog,
		Input: form,
		Keys: []optimistic.KeyOp[models.ExerciseLog]{
			summaryOp(s, form.Date, nutrition.BurnDelta(form.CaloriesBurned), burned),
			appendOp(keys.ExerciseLogsByDate(form.Date), placeholder),
		},
		Send: func(ctx context.Context, _ string) (models.ExerciseLog, error) {
			return s.api.CreateExerciseLog(ctx, form)
		},
	}), nil
}

// UpdateExercise changes the duration or intensity of a workout and
// re-estimates its calories.
func (s *Service) UpdateExercise(ctx context.Context, upd models.ExerciseUpdate) (*optimistic.Mutation[models.ExerciseLog], error) {
	if err := validateExerciseUpdate(upd); err != nil {
		return nil, err
	}
	upd.Intensity, _ = models.ParseIntensity(string(upd.Intensity))
	send := func(ctx context.Context, _ string) (models.ExerciseLog, error) {
		return s.api.UpdateExerciseLog(ctx, upd)
	}

	listKey := keys.ExerciseLogsByDate(upd.Date)
	old, ok := lookup[models.ExerciseLog](s.cache, listKey, upd.ID)
	if !ok {
		return invalidateOnly(ctx, s, OpUpdateExercise, upd,
			[]cache.Key{keys.DashboardKey(upd.Date), listKey},
			func(ctx context.Context) (models.ExerciseLog, error) { return send(ctx, "") }), nil
	}

	next := old
	next.Intensity = upd.Intensity
	next.DurationMinutes = upd.DurationMinutes
	next.CaloriesBurned = s.Estimator(ctx).Estimate(old.ExerciseName, float64(upd.DurationMinutes), upd.Intensity, s.weightKg)

	est := burned(next).Sub(burned(old))
	actual := func(r models.ExerciseLog) nutrition.Delta { return burned(r).Sub(burned(old)) }
	g := &editGuard{}

	return optimistic.Run(ctx, s.co, optimistic.Plan[models.ExerciseLog]{
		Op:    OpUpdateExercise,
		Input: upd,
		Keys: []optimistic.KeyOp[models.ExerciseLog]{
			guarded(summaryOp(s, upd.Date, est, actual), g),
			replaceOp(listKey, upd.ID, old, next, g),
		},
		Send:    send,
		OnError: s.invalidateSuperseded(g, keys.DashboardKey(upd.Date), listKey),
	}), nil
}

// DeleteExerciseLog removes a workout and gives its calories back.
func (s *Service) DeleteExerciseLog(ctx context.Context, date, id string) (*optimistic.Mutation[struct{}], error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	input := DeleteInput{Date: date, ID: id}
	send := func(ctx context.Context, _ string) (struct{}, error) {
		return struct{}{}, s.api.DeleteExerciseLog(ctx, id)
	}

	listKey := keys.ExerciseLogsByDate(date)
	old, ok := lookup[models.ExerciseLog](s.cache, listKey, id)
	if !ok {
		return invalidateOnly(ctx, s, OpDeleteExerciseLog, input,
			[]cache.Key{keys.DashboardKey(date), listKey},
			func(ctx context.Context) (struct{}, error) { return send(ctx, "") }), nil
	}

	return optimistic.Run(ctx, s.co, optimistic.Plan[struct{}]{
		Op:    OpDeleteExerciseLog,
		Input: input,
		Keys: []optimistic.KeyOp[struct{}]{
			summaryOp[struct{}](s, date, burned(old).Neg(), nil),
			removeOp[models.ExerciseLog, struct{}](listKey, id),
		},
		Send: send,
	}), nil
}
