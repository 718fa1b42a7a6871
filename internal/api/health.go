package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

// HealthAPI provides typed access to the health and chat endpoints.
type HealthAPI struct {
	transport Transport
}

// NewHealthAPI creates a typed API over transport.
func NewHealthAPI(transport Transport) *HealthAPI {
	return &HealthAPI{transport: transport}
}

func dateQuery(date string) url.Values {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	return q
}

// Dashboard fetches the summary of one day.
func (a *HealthAPI) Dashboard(ctx context.Context, date string) (models.DailySummary, error) {
	var out models.DailySummary
	err := a.transport.Do(ctx, http.MethodGet, "/api/dashboard/"+url.PathEscape(date), nil, nil, &out)
	return out, err
}

// FoodLogs lists the food logs of a date, optionally restricted to one meal.
func (a *HealthAPI) FoodLogs(ctx context.Context, date string, meal models.MealType) ([]models.FoodLog, error) {
	q := dateQuery(date)
	if meal != "" {
		q.Set("mealType", string(meal))
	}
	out := []models.FoodLog{}
	err := a.transport.Do(ctx, http.MethodGet, "/api/food-logs", q, nil, &out)
	return out, err
}

// CreateFoodLog posts a new food log.
func (a *HealthAPI) CreateFoodLog(ctx context.Context, form models.FoodLogForm) (models.FoodLog, error) {
	var out models.FoodLog
	err := a.transport.Do(ctx, http.MethodPost, "/api/food-logs", nil, form, &out)
	return out, err
}

// UpdateFoodLog replaces a food log.
func (a *HealthAPI) UpdateFoodLog(ctx context.Context, id string, form models.FoodLogForm) (models.FoodLog, error) {
	var out models.FoodLog
	err := a.transport.Do(ctx, http.MethodPut, "/api/food-logs/"+url.PathEscape(id), nil, form, &out)
	return out, err
}

// DeleteFoodLog removes a food log.
func (a *HealthAPI) DeleteFoodLog(ctx context.Context, id string) error {
	return a.transport.Do(ctx, http.MethodDelete, "/api/food-logs/"+url.PathEscape(id), nil, nil, nil)
}

// AddFoodItem appends an item and returns the updated log.
func (a *HealthAPI) AddFoodItem(ctx context.Context, logID string, item models.FoodItem) (models.FoodLog, error) {
	var out models.FoodLog
	err := a.transport.Do(ctx, http.MethodPost, "/api/food-logs/"+url.PathEscape(logID)+"/items", nil, item, &out)
	return out, err
}

// UpdateFoodItem replaces one item and returns the updated log.
func (a *HealthAPI) UpdateFoodItem(ctx context.Context, logID string, item models.FoodItem) (models.FoodLog, error) {
	var out models.FoodLog
	path := "/api/food-logs/" + url.PathEscape(logID) + "/items/" + url.PathEscape(item.ID)
	err := a.transport.Do(ctx, http.MethodPut, path, nil, item, &out)
	return out, err
}

// DeleteFoodItem removes one item and returns the updated log.
func (a *HealthAPI) DeleteFoodItem(ctx context.Context, logID, itemID string) (models.FoodLog, error) {
	var out models.FoodLog
	path := "/api/food-logs/" + url.PathEscape(logID) + "/items/" + url.PathEscape(itemID)
	err := a.transport.Do(ctx, http.MethodDelete, path, nil, nil, &out)
	return out, err
}

// ExerciseLogs lists the workouts of a date.
func (a *HealthAPI) ExerciseLogs(ctx context.Context, date string) ([]models.ExerciseLog, error) {
	out := []models.ExerciseLog{}
	err := a.transport.Do(ctx, http.MethodGet, "/api/exercise-logs", dateQuery(date), nil, &out)
	return out, err
}

// CreateExerciseLog posts a workout.
func (a *HealthAPI) CreateExerciseLog(ctx context.Context, form models.ExerciseLogForm) (models.ExerciseLog, error) {
	var out models.ExerciseLog
	err := a.transport.Do(ctx, http.MethodPost, "/api/exercise-logs", nil, form, &out)
	return out, err
}

// UpdateExerciseLog changes the intensity and duration of a workout.
func (a *HealthAPI) UpdateExerciseLog(ctx context.Context, upd models.ExerciseUpdate) (models.ExerciseLog, error) {
	var out models.ExerciseLog
	err := a.transport.Do(ctx, http.MethodPut, "/api/exercise-logs/"+url.PathEscape(upd.ID), nil, upd, &out)
	return out, err
}

// DeleteExerciseLog removes a workout.
func (a *HealthAPI) DeleteExerciseLog(ctx context.Context, id string) error {
	return a.transport.Do(ctx, http.MethodDelete, "/api/exercise-logs/"+url.PathEscape(id), nil, nil, nil)
}

// ExerciseTypes fetches the MET reference table.
func (a *HealthAPI) ExerciseTypes(ctx context.Context) ([]models.ExerciseType, error) {
	out := []models.ExerciseType{}
	err := a.transport.Do(ctx, http.MethodGet, "/api/exercise-logs/types", nil, nil, &out)
	return out, err
}

// WaterLogs lists the drinks of a date.
func (a *HealthAPI) WaterLogs(ctx context.Context, date string) ([]models.WaterLog, error) {
	out := []models.WaterLog{}
	err := a.transport.Do(ctx, http.MethodGet, "/api/water-logs", dateQuery(date), nil, &out)
	return out, err
}

// CreateWaterLog posts a drink.
func (a *HealthAPI) CreateWaterLog(ctx context.Context, form models.WaterLogForm) (models.WaterLog, error) {
	var out models.WaterLog
	err := a.transport.Do(ctx, http.MethodPost, "/api/water-logs", nil, form, &out)
	return out, err
}

// DeleteWaterLog removes a drink.
func (a *HealthAPI) DeleteWaterLog(ctx context.Context, id string) error {
	return a.transport.Do(ctx, http.MethodDelete, "/api/water-logs/"+url.PathEscape(id), nil, nil, nil)
}

// Messages lists a conversation in chronological order.
func (a *HealthAPI) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	out := []models.Message{}
	err := a.transport.Do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationID)+"/messages", nil, nil, &out)
	return out, err
}

// SendMessage appends a user message; the server may answer with an
// assistant reply in the same response.
func (a *HealthAPI) SendMessage(ctx context.Context, conversationID, content string) (models.SendResult, error) {
	var out models.SendResult
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	err := a.transport.Do(ctx, http.MethodPost, path, nil, SendMessageRequest{Content: content}, &out)
	return out, err
}
