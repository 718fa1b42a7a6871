package fakebackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/nutrisync-cli-go/internal/api"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
)

const day = "2026-10-16"

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts ...Option) (*Server, *api.HealthAPI) {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop()), WithClock(func() time.Time { return fixedNow })}, opts...)
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client := api.NewClient(ts.URL, api.StaticToken("secret"), api.WithRetries(3, time.Millisecond))
	return srv, api.NewHealthAPI(client)
}

func item(name string, kcal float64) models.FoodItem {
	fats := 2.0
	return models.FoodItem{Name: name, Quantity: 1, Unit: "serving", Calories: kcal, Protein: 10, Carbs: 20, Fats: &fats}
}

func TestFoodLifecycle(t *testing.T) {
	_, h := setup(t)
	ctx := context.Background()

	created, err := h.CreateFoodLog(ctx, models.FoodLogForm{
		Date:     day,
		MealType: "lunch",
		Items:    []models.FoodItem{item("rice", 300), {ID: "temp-1-abcd-item-1", Name: "beans", Calories: 120}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.MealLunch, created.MealType)
	assert.Equal(t, fixedNow, created.LoggedAt)
	require.Len(t, created.Items, 2)
	assert.NotEqual(t, "temp-1-abcd-item-1", created.Items[1].ID)

	lunch, err := h.FoodLogs(ctx, day, models.MealLunch)
	require.NoError(t, err)
	assert.Len(t, lunch, 1)
	dinner, err := h.FoodLogs(ctx, day, models.MealDinner)
	require.NoError(t, err)
	assert.Empty(t, dinner)

	withItem, err := h.AddFoodItem(ctx, created.ID, item("salad", 80))
	require.NoError(t, err)
	require.Len(t, withItem.Items, 3)

	edited := withItem.Items[2]
	edited.Calories = 100
	afterEdit, err := h.UpdateFoodItem(ctx, created.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, 100.0, afterEdit.Items[2].Calories)

	afterDelete, err := h.DeleteFoodItem(ctx, created.ID, created.Items[0].ID)
	require.NoError(t, err)
	assert.Len(t, afterDelete.Items, 2)

	dash, err := h.Dashboard(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 220.0, dash.ConsumedCalories)
	assert.Equal(t, 1780.0, dash.RemainingCalories)

	moved, err := h.UpdateFoodLog(ctx, created.ID, models.FoodLogForm{Date: day, MealType: models.MealDinner, Items: afterDelete.Items})
	require.NoError(t, err)
	assert.Equal(t, models.MealDinner, moved.MealType)
	assert.Equal(t, afterDelete.Items[0].ID, moved.Items[0].ID, "known item ids survive a replace")

	_, err = h.UpdateFoodLog(ctx, created.ID, models.FoodLogForm{Date: "2026-10-17", MealType: models.MealDinner, Items: afterDelete.Items})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	require.NoError(t, h.DeleteFoodLog(ctx, created.ID))
	err = h.DeleteFoodLog(ctx, created.ID)
	assert.True(t, api.IsNotFound(err), "%v", err)
}

func TestDashboardMatchesSummarize(t *testing.T) {
	srv, h := setup(t)
	ctx := context.Background()

	_, err := h.CreateFoodLog(ctx, models.FoodLogForm{Date: day, MealType: models.MealBreakfast, Items: []models.FoodItem{item("oats", 350)}})
	require.NoError(t, err)
	ex, err := h.CreateExerciseLog(ctx, models.ExerciseLogForm{Date: day, ExerciseName: "Running", Intensity: "moderate", DurationMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, 291, ex.CaloriesBurned)
	_, err = h.CreateWaterLog(ctx, models.WaterLogForm{Date: day, AmountMl: 500})
	require.NoError(t, err)
	// another day stays out of the aggregate
	_, err = h.CreateWaterLog(ctx, models.WaterLogForm{Date: "2026-10-15", AmountMl: 900})
	require.NoError(t, err)

	dash, err := h.Dashboard(ctx, day)
	require.NoError(t, err)

	st := srv.Store()
	base := DefaultTargets
	base.Date = day
	want := nutrition.Summarize(base, st.FoodLogs(day, ""), st.ExerciseLogs(day), st.WaterLogs(day))
	assert.Equal(t, want, dash)
	assert.Equal(t, 500.0, dash.WaterConsumedMl)
	assert.InDelta(t, 0.25, dash.Progress.Water, 1e-9)
}

func TestExerciseUpdateRecomputesBurn(t *testing.T) {
	_, h := setup(t, WithWeightKg(70))
	ctx := context.Background()

	ex, err := h.CreateExerciseLog(ctx, models.ExerciseLogForm{Date: day, ExerciseName: "walking", Intensity: models.IntensityLow, DurationMinutes: 60, CaloriesBurned: 150})
	require.NoError(t, err)
	assert.Equal(t, 150, ex.CaloriesBurned, "an explicit figure is kept")

	upd, err := h.UpdateExerciseLog(ctx, models.ExerciseUpdate{ID: ex.ID, Date: day, Intensity: models.IntensityHigh, DurationMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, 350, upd.CaloriesBurned)

	require.NoError(t, h.DeleteExerciseLog(ctx, ex.ID))
	logs, err := h.ExerciseLogs(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestExerciseTypes(t *testing.T) {
	_, h := setup(t)
	types, err := h.ExerciseTypes(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, types)
	for _, et := range types {
		assert.NotEqual(t, "default", et.Key)
	}
	assert.Equal(t, "cycling", types[0].Key)
	assert.Equal(t, "Cycling", types[0].Name)
}

func TestMessagesGetAssistantReply(t *testing.T) {
	_, h := setup(t)
	ctx := context.Background()

	res, err := h.SendMessage(ctx, "c1", "how am I doing?")
	require.NoError(t, err)
	assert.Equal(t, models.SenderUser, res.UserMessage.Sender)
	require.NotNil(t, res.AssistantMessage)
	assert.Contains(t, res.AssistantMessage.Content, "2000 kcal target")

	msgs, err := h.Messages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, res.UserMessage.ID, msgs[0].ID)
	assert.Equal(t, res.AssistantMessage.ID, msgs[1].ID)

	other, err := h.Messages(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestValidation(t *testing.T) {
	_, h := setup(t)
	ctx := context.Background()

	_, err := h.CreateWaterLog(ctx, models.WaterLogForm{Date: day, AmountMl: 0})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "amountMl out of range", apiErr.Message)

	_, err = h.FoodLogs(ctx, "yesterday", "")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = h.SendMessage(ctx, "c1", "   ")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestTokenRequired(t *testing.T) {
	srv := New(WithLogger(zerolog.Nop()), WithToken("secret"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	ctx := context.Background()

	good := api.NewHealthAPI(api.NewClient(ts.URL, api.StaticToken("secret")))
	_, err := good.Dashboard(ctx, day)
	require.NoError(t, err)

	bad := api.NewHealthAPI(api.NewClient(ts.URL, api.StaticToken("")))
	_, err = bad.Dashboard(ctx, day)
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	// health is open
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFaultInjection(t *testing.T) {
	srv, h := setup(t)
	ctx := context.Background()

	// reads are retried through transient failures
	srv.FailNext(http.MethodGet, "/api/water-logs", http.StatusServiceUnavailable, 2)
	logs, err := h.WaterLogs(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// writes are not
	srv.FailNext(http.MethodPost, "/api/water-logs", http.StatusInternalServerError, 1)
	_, err = h.CreateWaterLog(ctx, models.WaterLogForm{Date: day, AmountMl: 250})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, srv.Store().WaterLogs(day))

	_, err = h.CreateWaterLog(ctx, models.WaterLogForm{Date: day, AmountMl: 250})
	require.NoError(t, err)
	assert.Len(t, srv.Store().WaterLogs(day), 1)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(WithLogger(zerolog.Nop()), WithCORSOrigins("http://localhost:5173"))
	req := httptest.NewRequest(http.MethodOptions, "/api/food-logs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
