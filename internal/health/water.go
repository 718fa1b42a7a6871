package health

import (
	"context"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

func water(l models.WaterLog) nutrition.Delta {
	return nutrition.WaterDelta(l.AmountMl)
}

// AddWaterLog logs a drink.
func (s *Service) AddWaterLog(ctx context.Context, form models.WaterLogForm) (*optimistic.Mutation[models.WaterLog], error) {
	if err := validateWaterForm(form); err != nil {
		return nil, err
	}
	form.LoggedAt = s.stamp(form.LoggedAt)

	return optimistic.Run(ctx, s.co, optimistic.Plan[models.WaterLog]{
		Op:    OpAddWaterLog,
		Input: form,
		Keys: []optimistic.KeyOp[models.WaterLog]{
			summaryOp(s, form.Date, nutrition.WaterDelta(form.AmountMl), water),
			appendOp(keys.WaterLogsByDate(form.Date), func(tempID string) models.WaterLog {
				return models.WaterLog{ID: tempID, Date: form.Date, AmountMl: form.AmountMl, LoggedAt: form.LoggedAt}
			}),
		},
		Send: func(ctx context.Context, _ string) (models.WaterLog, error) {
			return s.api.CreateWaterLog(ctx, form)
		},
	}), nil
}

// DeleteWaterLog removes a drink.
func (s *Service) DeleteWaterLog(ctx context.Context, date, id string) (*optimistic.Mutation[struct{}], error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	input := DeleteInput{Date: date, ID: id}
	send := func(ctx context.Context, _ string) (struct{}, error) {
		return struct{}{}, s.api.DeleteWaterLog(ctx, id)
	}

	listKey := keys.WaterLogsByDate(date)
	old, ok := lookup[models.WaterLog](s.cache, listKey, id)
	if !ok {
		return invalidateOnly(ctx, s, OpDeleteWaterLog, input,
			[]cache.Key{keys.DashboardKey(date), listKey},
			func(ctx context.Context) (struct{}, error) { return send(ctx, "") }), nil
	}

	return optimistic.Run(ctx, s.co, optimistic.Plan[struct{}]{
		Op:    OpDeleteWaterLog,
		Input: input,
		Keys: []optimistic.KeyOp[struct{}]{
			summaryOp[struct{}](s, date, water(old).Neg(), nil),
			removeOp[models.WaterLog, struct{}](listKey, id),
		},
		Send: send,
	}), nil
}
