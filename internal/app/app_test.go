package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/config"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/credentials"
	"github.com/colthorp/nutrisync-cli-go/internal/fakebackend"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

const day = "2026-10-16"

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API:         config.APIConfig{BaseURL: baseURL, Timeout: 5 * time.Second, MaxRetries: 2},
		Timezone:    "UTC",
		Profile:     config.ProfileConfig{WeightKg: 70},
		Dashboard:   config.DashboardConfig{MaxFutureDays: 30},
		Staleness:   keys.DefaultStaleness(),
		Credentials: config.CredentialsConfig{Backend: credentials.BackendMemory},
	}
}

func setup(t *testing.T) (*App, *fakebackend.Server) {
	t.Helper()
	t.Setenv(core.TokenEnvVar, "")

	srv := fakebackend.New(
		fakebackend.WithLogger(zerolog.Nop()),
		fakebackend.WithToken("secret"),
		fakebackend.WithClock(clock),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	creds := credentials.NewMemory()
	require.NoError(t, creds.SaveToken(context.Background(), "secret"))

	a, err := New(testConfig(ts.URL), Options{Credentials: creds, Now: clock, RetryBackoff: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, srv
}

func cachedSummary(t *testing.T, c *cache.Cache) models.DailySummary {
	t.Helper()
	v, ok := c.Get(keys.DashboardKey(day))
	require.True(t, ok)
	s, ok := v.(models.DailySummary)
	require.True(t, ok, "dashboard holds %T", v)
	return s
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestLoadDayThroughBackend(t *testing.T) {
	a, srv := setup(t)
	srv.Store().SeedFood(models.FoodLog{
		Date:     day,
		MealType: models.MealBreakfast,
		LoggedAt: now.Add(-4 * time.Hour),
		Items:    []models.FoodItem{{Name: "toast", Calories: 250, Protein: 8, Carbs: 40}},
	})

	d, err := a.Dashboard.Load(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 250.0, d.Summary.ConsumedCalories)
	require.Len(t, d.Food, 1)
	assert.Equal(t, "toast", d.Food[0].Items[0].Name)
	assert.Empty(t, d.Water)
}

func TestOptimisticWriteConvergesWithServer(t *testing.T) {
	a, srv := setup(t)
	ctx := context.Background()
	_, err := a.Dashboard.Load(ctx, day)
	require.NoError(t, err)

	m, err := a.Health.AddWaterLog(ctx, models.WaterLogForm{Date: day, AmountMl: 250})
	require.NoError(t, err)
	// visible before the server answers
	assert.Equal(t, 250.0, cachedSummary(t, a.Cache).WaterConsumedMl)

	_, err = m.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.Store().Dashboard(day), cachedSummary(t, a.Cache))

	ex, err := a.Health.AddExerciseLog(ctx, models.ExerciseLogForm{Date: day, ExerciseName: "cycling", Intensity: models.IntensityModerate, DurationMinutes: 45})
	require.NoError(t, err)
	_, err = ex.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.Store().Dashboard(day), cachedSummary(t, a.Cache))
}

func TestFailedWriteRollsBack(t *testing.T) {
	a, srv := setup(t)
	ctx := context.Background()
	_, err := a.Dashboard.Load(ctx, day)
	require.NoError(t, err)
	before := cachedSummary(t, a.Cache)

	srv.FailNext(http.MethodPost, "/api/food-logs", http.StatusInternalServerError, 1)
	m, err := a.Health.AddFoodLog(ctx, models.FoodLogForm{
		Date:     day,
		MealType: models.MealLunch,
		Items:    []models.FoodItem{{Name: "soup", Calories: 180}},
	})
	require.NoError(t, err)
	_, err = m.Wait(ctx)
	require.Error(t, err)

	assert.Equal(t, before, cachedSummary(t, a.Cache))
	v, ok := a.Cache.Get(keys.FoodLogsByDate(day))
	require.True(t, ok)
	assert.Empty(t, v)
	assert.Empty(t, srv.Store().FoodLogs(day, ""))
}

func TestChatRoundTrip(t *testing.T) {
	a, _ := setup(t)
	ctx := context.Background()

	_, err := a.Chat.Messages(ctx, "c1")
	require.NoError(t, err)

	m, err := a.Chat.SendMessage(ctx, "c1", "what's left for today?")
	require.NoError(t, err)
	res, err := m.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.AssistantMessage)

	msgs, err := a.Chat.Messages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, res.UserMessage.ID, msgs[0].ID)
	assert.False(t, msgs[0].Pending)
	assert.Equal(t, models.SenderAssistant, msgs[1].Sender)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	t.Setenv(core.TokenEnvVar, "")
	srv := fakebackend.New(fakebackend.WithLogger(zerolog.Nop()), fakebackend.WithToken("secret"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	a, err := New(testConfig(ts.URL), Options{Credentials: credentials.NewMemory(), Now: clock})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Dashboard.Load(context.Background(), day)
	assert.ErrorContains(t, err, "HTTP 401")
}

func TestLoaderRejectsUnknownKeys(t *testing.T) {
	load := Loader(nil)
	_, err := load(context.Background(), cache.NewKey("health", "sleep", day))
	assert.ErrorIs(t, err, core.ErrUnknownKey)
}
