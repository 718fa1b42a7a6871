// Package health holds the optimistic write paths for food, exercise and
// water logs. Every operation names all the cache keys it affects, patches
// them before the server answers and reconciles them after.
package health

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/exercise"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

// Operation names reported in PendingMutation and optimistic.Error.
const (
	OpAddFoodLog        = "addFoodLog"
	OpUpdateFoodLog     = "updateFoodLog"
	OpDeleteFoodLog     = "deleteFoodLog"
	OpAddFoodItem       = "addFoodItem"
	OpUpdateFoodItem    = "updateFoodItem"
	OpDeleteFoodItem    = "deleteFoodItem"
	OpAddExerciseLog    = "addExerciseLog"
	OpUpdateExercise    = "updateExercise"
	OpDeleteExerciseLog = "deleteExerciseLog"
	OpAddWaterLog       = "addWaterLog"
	OpDeleteWaterLog    = "deleteWaterLog"
)

// API is the subset of the REST backend the write paths need.
type API interface {
	CreateFoodLog(ctx context.Context, form models.FoodLogForm) (models.FoodLog, error)
	UpdateFoodLog(ctx context.Context, id string, form models.FoodLogForm) (models.FoodLog, error)
	DeleteFoodLog(ctx context.Context, id string) error
	AddFoodItem(ctx context.Context, logID string, item models.FoodItem) (models.FoodLog, error)
	UpdateFoodItem(ctx context.Context, logID string, item models.FoodItem) (models.FoodLog, error)
	DeleteFoodItem(ctx context.Context, logID, itemID string) (models.FoodLog, error)
	CreateExerciseLog(ctx context.Context, form models.ExerciseLogForm) (models.ExerciseLog, error)
	UpdateExerciseLog(ctx context.Context, upd models.ExerciseUpdate) (models.ExerciseLog, error)
	DeleteExerciseLog(ctx context.Context, id string) error
	CreateWaterLog(ctx context.Context, form models.WaterLogForm) (models.WaterLog, error)
	DeleteWaterLog(ctx context.Context, id string) error
}

// DeleteInput is the retry payload of the delete operations.
type DeleteInput struct {
	Date string `json:"date"`
	ID   string `json:"id"`
}

// FoodLogUpdate is the retry payload of UpdateFoodLog.
type FoodLogUpdate struct {
	ID   string             `json:"id"`
	Form models.FoodLogForm `json:"form"`
}

// FoodItemInput is the retry payload of AddFoodItem and UpdateFoodItem.
type FoodItemInput struct {
	Date  string          `json:"date"`
	LogID string          `json:"logId"`
	Item  models.FoodItem `json:"item"`
}

// FoodItemDelete is the retry payload of DeleteFoodItem.
type FoodItemDelete struct {
	Date   string `json:"date"`
	LogID  string `json:"logId"`
	ItemID string `json:"itemId"`
}

// Service runs health mutations against one cache.
type Service struct {
	api      API
	co       *optimistic.Coordinator
	cache    *cache.Cache
	weightKg float64
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWeightKg sets the body weight used by calorie estimates.
func WithWeightKg(kg float64) Option {
	return func(s *Service) { s.weightKg = kg }
}

// WithClock overrides time.Now for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates the health write paths.
func NewService(api API, co *optimistic.Coordinator, opts ...Option) *Service {
	s := &Service{
		api:      api,
		co:       co,
		cache:    co.Cache(),
		weightKg: core.DefaultWeightKg,
		now:      time.Now,
		log:      log.Logger.With().Str("component", "health").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Estimator returns the MET table, preferring the backend's reference table
// and falling back to the built-in one when it cannot be loaded.
func (s *Service) Estimator(ctx context.Context) exercise.Table {
	v, err := s.cache.Fetch(ctx, keys.ExerciseTypesKey())
	if err != nil {
		s.log.Warn().Err(err).Msg("exercise types unavailable; using built-in MET table")
		return exercise.DefaultTable
	}
	types, ok := v.([]models.ExerciseType)
	if !ok || len(types) == 0 {
		return exercise.DefaultTable
	}
	return exercise.TableFromTypes(types)
}

// Retry re-runs a failed mutation with its original input.
func (s *Service) Retry(ctx context.Context, failed *optimistic.Error) (optimistic.Handle, error) {
	if failed == nil {
		return nil, core.Invalid("mutation", "nothing to retry")
	}
	if !failed.Retryable() {
		return nil, fmt.Errorf("%s is not retryable: %w", failed.Op, failed.Err)
	}
	switch in := failed.Input.(type) {
	case models.FoodLogForm:
		return handle(s.AddFoodLog(ctx, in))
	case FoodLogUpdate:
		return handle(s.UpdateFoodLog(ctx, in.ID, in.Form))
	case FoodItemInput:
		if failed.Op == OpUpdateFoodItem {
			return handle(s.UpdateFoodItem(ctx, in.Date, in.LogID, in.Item))
		}
		return handle(s.AddFoodItem(ctx, in.Date, in.LogID, in.Item))
	case FoodItemDelete:
		return handle(s.DeleteFoodItem(ctx, in.Date, in.LogID, in.ItemID))
	case models.ExerciseLogForm:
		return handle(s.AddExerciseLog(ctx, in))
	case models.ExerciseUpdate:
		return handle(s.UpdateExercise(ctx, in))
	case models.WaterLogForm:
		return handle(s.AddWaterLog(ctx, in))
	case DeleteInput:
		switch failed.Op {
		case OpDeleteFoodLog:
			return handle(s.DeleteFoodLog(ctx, in.Date, in.ID))
		case OpDeleteExerciseLog:
			return handle(s.DeleteExerciseLog(ctx, in.Date, in.ID))
		case OpDeleteWaterLog:
			return handle(s.DeleteWaterLog(ctx, in.Date, in.ID))
		}
	}
	return nil, fmt.Errorf("cannot retry %s with input %T", failed.Op, failed.Input)
}

func handle[R any](m *optimistic.Mutation[R], err error) (optimistic.Handle, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

// applyDelta patches a cached summary and logs a floor hit.
func (s *Service) applyDelta(cur any, d nutrition.Delta, sign int) any {
	sum, ok := cur.(models.DailySummary)
	if !ok {
		return cur
	}
	out, warn := nutrition.ApplyDelta(sum, d, sign)
	if warn != nil {
		s.log.Warn().Err(warn).Str("date", sum.Date).Msg("aggregate floored at zero")
	}
	return out
}

// summaryOp patches the dashboard of date with est and, on commit, with the
// difference between the confirmed contribution and the estimate.
func summaryOp[R any](s *Service, date string, est nutrition.Delta, actual func(R) nutrition.Delta) optimistic.KeyOp[R] {
	return optimistic.KeyOp[R]{
		Key:   keys.DashboardKey(date),
		Apply: func(cur any, _ string) any { return s.applyDelta(cur, est, +1) },
		Commit: func(cur any, _ string, r R) any {
			if actual == nil {
				return cur
			}
			d := actual(r).Sub(est)
			if d.IsZero() {
				return cur
			}
			return s.applyDelta(cur, d, +1)
		},
		Revert: func(cur any, _ string) any { return s.applyDelta(cur, est, -1) },
	}
}

// appendOp adds the placeholder to a collection and swaps it for the
// confirmed entity by identity.
func appendOp[T identified](key cache.Key, placeholder func(tempID string) T) optimistic.KeyOp[T] {
	return optimistic.KeyOp[T]{
		Key: key,
		Apply: func(cur any, tempID string) any {
			list, _ := cur.([]T)
			return appendEntity(list, placeholder(tempID))
		},
		Commit: func(cur any, tempID string, v T) any {
			list, _ := cur.([]T)
			return confirmEntity(list, tempID, v)
		},
		Revert: func(cur any, tempID string) any {
			list, _ := cur.([]T)
			return removeEntity(list, tempID)
		},
	}
}

// removeOp drops id from a collection and puts it back on failure.
func removeOp[T identified, R any](key cache.Key, id string) optimistic.KeyOp[R] {
	var (
		removed T
		at      = -1
	)
	return optimistic.KeyOp[R]{
		Key: key,
		Apply: func(cur any, _ string) any {
			list, _ := cur.([]T)
			if at = indexByID(list, id); at >= 0 {
				removed = list[at]
			}
			return removeEntity(list, id)
		},
		Revert: func(cur any, _ string) any {
			list, _ := cur.([]T)
			if at < 0 {
				return cur
			}
			return insertEntity(list, at, removed)
		},
	}
}

// editGuard is shared by the key ops of one entity edit. A rollback that finds
// the entity already replaced by a later write marks the edit superseded; the
// remaining ops of that rollback then leave their keys alone.
type editGuard struct {
	superseded bool
}

func (g *editGuard) skip() bool { return g != nil && g.superseded }

// owns reports whether the entity with id in list is still next, marking the
// edit superseded when it is not.
func owns[T identified](g *editGuard, list []T, id string, next T) bool {
	if g.skip() {
		return false
	}
	if cur, ok := findByID(list, id); ok && reflect.DeepEqual(cur, next) {
		return true
	}
	if g != nil {
		g.superseded = true
	}
	return false
}

// guarded makes op's Revert a no-op once g is superseded. Rollback walks keys
// in reverse, so the entity lists listed after op decide first.
func guarded[R any](op optimistic.KeyOp[R], g *editGuard) optimistic.KeyOp[R] {
	revert := op.Revert
	if revert == nil {
		return op
	}
	op.Revert = func(cur any, tempID string) any {
		if g.skip() {
			return cur
		}
		return revert(cur, tempID)
	}
	return op
}

// invalidateSuperseded marks keys stale after a rollback that found a later
// write in place, so the next read settles on the server's state.
func (s *Service) invalidateSuperseded(g *editGuard, stale ...cache.Key) func(*optimistic.Error) {
	return func(*optimistic.Error) {
		if !g.superseded {
			return
		}
		s.cache.Update(func(tx *cache.Tx) {
			for _, k := range stale {
				tx.Invalidate(k)
			}
		})
	}
}

// replaceOp swaps the entity id for next. On failure prev comes back only if
// the entity is still next.
func replaceOp[T identified](key cache.Key, id string, prev, next T, g *editGuard) optimistic.KeyOp[T] {
	return optimistic.KeyOp[T]{
		Key: key,
		Apply: func(cur any, _ string) any {
			list, _ := cur.([]T)
			return replaceEntity(list, id, next)
		},
		Commit: func(cur any, _ string, v T) any {
			list, _ := cur.([]T)
			return replaceEntity(list, id, v)
		},
		Revert: func(cur any, _ string) any {
			list, _ := cur.([]T)
			if !owns(g, list, id, next) {
				return cur
			}
			return replaceEntity(list, id, prev)
		},
	}
}

// lookup finds id in the collection cached under key.
func lookup[T identified](c *cache.Cache, key cache.Key, id string) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	list, _ := v.([]T)
	return findByID(list, id)
}

func (s *Service) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

// invalidateOnly runs a write with no optimistic state, marking keys stale on
// settle. It serves edits of entities that are not in the cache.
func invalidateOnly[R any](ctx context.Context, s *Service, op string, input any, stale []cache.Key, send func(ctx context.Context) (R, error)) *optimistic.Mutation[R] {
	return optimistic.Run(ctx, s.co, optimistic.Plan[R]{
		Op:         op,
		Input:      input,
		Send:       func(ctx context.Context, _ string) (R, error) { return send(ctx) },
		Invalidate: stale,
	})
}
