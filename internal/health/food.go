package health

import (
	"context"
	"fmt"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

func foodPlaceholder(tempID string, form models.FoodLogForm) models.FoodLog {
	items := make([]models.FoodItem, len(form.Items))
	for i, item := range form.Items {
		if item.ID == "" {
			item.ID = fmt.Sprintf("%s-item-%d", tempID, i)
		}
		items[i] = item
	}
	mt, _ := models.ParseMealType(string(form.MealType))
	return models.FoodLog{
		ID:       tempID,
		Date:     form.Date,
		MealType: mt,
		LoggedAt: form.LoggedAt,
		Items:    items,
	}
}

func foodDelta(l models.FoodLog) nutrition.Delta {
	return nutrition.FoodDelta(l.Items)
}

// AddFoodLog logs a meal. The dashboard, the day's list and the meal's list
// show it immediately.
func (s *Service) AddFoodLog(ctx context.Context, form models.FoodLogForm) (*optimistic.Mutation[models.FoodLog], error) {
	if err := validateFoodForm(form); err != nil {
		return nil, err
	}
	form.MealType, _ = models.ParseMealType(string(form.MealType))
	form.LoggedAt = s.stamp(form.LoggedAt)
	est := nutrition.FoodDelta(form.Items)
	placeholder := func(tempID string) models.FoodLog { return foodPlaceholder(tempID, form) }

	return optimistic.Run(ctx, s.co, optimistic.Plan[models.FoodLog]{
		Op:    OpAddFoodLog,
		Input: form,
		Keys: []optimistic.KeyOp[models.FoodLog]{
			summaryOp(s, form.Date, est, foodDelta),
			appendOp(keys.FoodLogsByDate(form.Date), placeholder),
			appendOp(keys.FoodLogsByMealType(form.MealType, form.Date), placeholder),
		},
		Send: func(ctx context.Context, _ string) (models.FoodLog, error) {
			return s.api.CreateFoodLog(ctx, form)
		},
	}), nil
}

// findFoodLog looks for id in the day's cached lists.
func (s *Service) findFoodLog(date, id string) (models.FoodLog, bool) {
	if l, ok := lookup[models.FoodLog](s.cache, keys.FoodLogsByDate(date), id); ok {
		return l, true
	}
	for _, mt := range models.MealTypes {
		if l, ok := lookup[models.FoodLog](s.cache, keys.FoodLogsByMealType(mt, date), id); ok {
			return l, true
		}
	}
	return models.FoodLog{}, false
}

// foodKeys lists every food key of a date.
func foodKeys(date string) []cache.Key {
	out := []cache.Key{keys.DashboardKey(date), keys.FoodLogsByDate(date)}
	for _, mt := range models.MealTypes {
		out = append(out, keys.FoodLogsByMealType(mt, date))
	}
	return out
}

// UpdateFoodLog replaces the items or meal of a log. The date of a log cannot
// change; delete and re-add it instead.
func (s *Service) UpdateFoodLog(ctx context.Context, id string, form models.FoodLogForm) (*optimistic.Mutation[models.FoodLog], error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if err := validateFoodForm(form); err != nil {
		return nil, err
	}
	form.MealType, _ = models.ParseMealType(string(form.MealType))
	input := FoodLogUpdate{ID: id, Form: form}

	old, ok := s.findFoodLog(form.Date, id)
	if !ok {
		return invalidateOnly(ctx, s, OpUpdateFoodLog, input, foodKeys(form.Date), func(ctx context.Context) (models.FoodLog, error) {
			return s.api.UpdateFoodLog(ctx, id, form)
		}), nil
	}
	if old.Date != "" && old.Date != form.Date {
		return nil, core.Invalid("date", "cannot move a food log from %s to %s", old.Date, form.Date)
	}

	next := old
	next.MealType = form.MealType
	next.Items = foodPlaceholder(id, form).Items
	if !form.LoggedAt.IsZero() {
		next.LoggedAt = form.LoggedAt
	}
	return s.runFoodEdit(ctx, OpUpdateFoodLog, input, old, next, func(ctx context.Context) (models.FoodLog, error) {
		return s.api.UpdateFoodLog(ctx, id, form)
	}), nil
}

// AddFoodItem appends one item to an existing log.
func (s *Service) AddFoodItem(ctx context.Context, date, logID string, item models.FoodItem) (*optimistic.Mutation[models.FoodLog], error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := validateID("logId", logID); err != nil {
		return nil, err
	}
	if err := validateItem(0, item); err != nil {
		return nil, err
	}
	input := FoodItemInput{Date: date, LogID: logID, Item: item}
	send := func(ctx context.Context) (models.FoodLog, error) { return s.api.AddFoodItem(ctx, logID, item) }

	old, ok := s.findFoodLog(date, logID)
	if !ok {
		return invalidateOnly(ctx, s, OpAddFoodItem, input, foodKeys(date), send), nil
	}
	next := old
	placeholderItem := item
	if placeholderItem.ID == "" {
		placeholderItem.ID = optimistic.NewTempID(s.now())
	}
	next.Items = append(append([]models.FoodItem{}, old.Items...), placeholderItem)
	return s.runFoodEdit(ctx, OpAddFoodItem, input, old, next, send), nil
}

// UpdateFoodItem replaces the item of an existing log that has item.ID.
func (s *Service) UpdateFoodItem(ctx context.Context, date, logID string, item models.FoodItem) (*optimistic.Mutation[models.FoodLog], error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := validateID("logId", logID); err != nil {
		return nil, err
	}
	if err := validateID("itemId", item.ID); err != nil {
		return nil, err
	}
	if err := validateItem(0, item); err != nil {
		return nil, err
	}
	input := FoodItemInput{Date: date, LogID: logID, Item: item}
	send := func(ctx context.Context) (models.FoodLog, error) { return s.api.UpdateFoodItem(ctx, logID, item) }

	old, ok := s.findFoodLog(date, logID)
	if !ok {
		return invalidateOnly(ctx, s, OpUpdateFoodItem, input, foodKeys(date), send), nil
	}
	next := old
	next.Items = append([]models.FoodItem{}, old.Items...)
	found := false
	for i := range next.Items {
		if next.Items[i].ID == item.ID {
			next.Items[i] = item
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("item %s of food log %s: %w", item.ID, logID, core.ErrEntityNotFound)
	}
	return s.runFoodEdit(ctx, OpUpdateFoodItem, input, old, next, send), nil
}

// DeleteFoodItem removes one item from an existing log.
func (s *Service) DeleteFoodItem(ctx context.Context, date, logID, itemID string) (*optimistic.Mutation[models.FoodLog], error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := validateID("logId", logID); err != nil {
		return nil, err
	}
	if err := validateID("itemId", itemID); err != nil {
		return nil, err
	}
	input := FoodItemDelete{Date: date, LogID: logID, ItemID: itemID}
	send := func(ctx context.Context) (models.FoodLog, error) { return s.api.DeleteFoodItem(ctx, logID, itemID) }

	old, ok := s.findFoodLog(date, logID)
	if !ok {
		return invalidateOnly(ctx, s, OpDeleteFoodItem, input, foodKeys(date), send), nil
	}
	next := old
	next.Items = make([]models.FoodItem, 0, len(old.Items))
	for _, it := range old.Items {
		if it.ID != itemID {
			next.Items = append(next.Items, it)
		}
	}
	if len(next.Items) == len(old.Items) {
		return nil, fmt.Errorf("item %s of food log %s: %w", itemID, logID, core.ErrEntityNotFound)
	}
	return s.runFoodEdit(ctx, OpDeleteFoodItem, input, old, next, send), nil
}

// runFoodEdit patches every view of a log that changes from old to next. When
// the meal changes the log moves between meal lists.
func (s *Service) runFoodEdit(ctx context.Context, op string, input any, old, next models.FoodLog, send func(context.Context) (models.FoodLog, error)) *optimistic.Mutation[models.FoodLog] {
	date := old.Date
	if date == "" {
		date = next.Date
	}
	est := nutrition.Diff(next.Items, old.Items)
	actual := func(r models.FoodLog) nutrition.Delta { return nutrition.Diff(r.Items, old.Items) }

	g := &editGuard{}
	stale := []cache.Key{keys.DashboardKey(date), keys.FoodLogsByDate(date), keys.FoodLogsByMealType(old.MealType, date)}
	ops := []optimistic.KeyOp[models.FoodLog]{
		guarded(summaryOp(s, date, est, actual), g),
		replaceOp(keys.FoodLogsByDate(date), old.ID, old, next, g),
	}
	if old.MealType == next.MealType {
		ops = append(ops, replaceOp(keys.FoodLogsByMealType(old.MealType, date), old.ID, old, next, g))
	} else {
		stale = append(stale, keys.FoodLogsByMealType(next.MealType, date))
		ops = append(ops,
			guarded(removeOp[models.FoodLog, models.FoodLog](keys.FoodLogsByMealType(old.MealType, date), old.ID), g),
			moveInOp(keys.FoodLogsByMealType(next.MealType, date), next, g),
		)
	}

	return optimistic.Run(ctx, s.co, optimistic.Plan[models.FoodLog]{
		Op:      op,
		Input:   input,
		Keys:    ops,
		Send:    func(ctx context.Context, _ string) (models.FoodLog, error) { return send(ctx) },
		OnError: s.invalidateSuperseded(g, stale...),
	})
}

// moveInOp adds an existing entity to a list it was not in.
func moveInOp[T identified](key cache.Key, next T, g *editGuard) optimistic.KeyOp[T] {
	return optimistic.KeyOp[T]{
		Key: key,
		Apply: func(cur any, _ string) any {
			list, _ := cur.([]T)
			return appendEntity(removeEntity(list, next.EntityID()), next)
		},
		Commit: func(cur any, _ string, v T) any {
			list, _ := cur.([]T)
			return confirmEntity(list, next.EntityID(), v)
		},
		Revert: func(cur any, _ string) any {
			list, _ := cur.([]T)
			if !owns(g, list, next.EntityID(), next) {
				return cur
			}
			return removeEntity(list, next.EntityID())
		},
	}
}

// DeleteFoodLog removes a log from every view of its day.
func (s *Service) DeleteFoodLog(ctx context.Context, date, id string) (*optimistic.Mutation[struct{}], error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	input := DeleteInput{Date: date, ID: id}
	send := func(ctx context.Context, _ string) (struct{}, error) {
		return struct{}{}, s.api.DeleteFoodLog(ctx, id)
	}

	old, ok := s.findFoodLog(date, id)
	if !ok {
		return invalidateOnly(ctx, s, OpDeleteFoodLog, input, foodKeys(date), func(ctx context.Context) (struct{}, error) {
			return send(ctx, "")
		}), nil
	}

	return optimistic.Run(ctx, s.co, optimistic.Plan[struct{}]{
		Op:    OpDeleteFoodLog,
		Input: input,
		Keys: []optimistic.KeyOp[struct{}]{
			summaryOp[struct{}](s, date, foodDelta(old).Neg(), nil),
			removeOp[models.FoodLog, struct{}](keys.FoodLogsByDate(date), id),
			removeOp[models.FoodLog, struct{}](keys.FoodLogsByMealType(old.MealType, date), id),
		},
		Send: send,
	}), nil
}
