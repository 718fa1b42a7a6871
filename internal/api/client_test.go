package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken(token), WithRetries(3, time.Millisecond))
}

func TestClientDecodesEnvelope(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/dashboard/2024-07-15", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"date":"2024-07-15","targetCalories":2000,"consumedCalories":450}}`)
	}, "tok-123")

	got, err := NewHealthAPI(c).Dashboard(context.Background(), "2024-07-15")

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", auth)
	assert.Equal(t, 2000.0, got.TargetCalories)
	assert.Equal(t, 450.0, got.ConsumedCalories)
}

func TestClientTimeoutLeavesInjectedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c := NewClient("http://localhost", nil, WithTimeout(5*time.Second), WithHTTPClient(shared))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)
}

func TestClientWithoutTokenSendsNoAuthorization(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"data":[]}`)
	}, "")

	logs, err := NewHealthAPI(c).WaterLogs(context.Background(), "2024-07-15")

	require.NoError(t, err)
	assert.Empty(t, auth)
	assert.Empty(t, logs)
}

func TestClientRetriesGetOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"message":"upstream down"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"id":"w1","date":"2024-07-15","amountMl":250}]}`)
	}, "")

	logs, err := NewHealthAPI(c).WaterLogs(context.Background(), "2024-07-15")

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, logs, 1)
	assert.Equal(t, 250, logs[0].AmountMl)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, "")

	_, err := NewHealthAPI(c).ExerciseTypes(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryWrites(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"db locked"}`)
	}, "")

	_, err := NewHealthAPI(c).CreateWaterLog(context.Background(), models.WaterLogForm{Date: "2024-07-15", AmountMl: 250})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "db locked", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"food log not found"}`)
	}, "")

	err := NewHealthAPI(c).DeleteFoodLog(context.Background(), "nope")

	assert.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientSendsJSONBody(t *testing.T) {
	var got SendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":{"userMessage":{"id":"m1","content":"hi","sender":"USER"},"assistantMessage":{"id":"m2","content":"hello","sender":"ASSISTANT"}}}`)
	}, "")

	res, err := NewHealthAPI(c).SendMessage(context.Background(), "c1", "hi")

	require.NoError(t, err)
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, "m1", res.UserMessage.ID)
	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, models.SenderAssistant, res.AssistantMessage.Sender)
}

func TestClientFoodLogQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-07-15", r.URL.Query().Get("date"))
		assert.Equal(t, "LUNCH", r.URL.Query().Get("mealType"))
		_, _ = io.WriteString(w, `{"data":[]}`)
	}, "")

	_, err := NewHealthAPI(c).FoodLogs(context.Background(), "2024-07-15", models.MealLunch)
	require.NoError(t, err)
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(url, nil, WithRetries(2, time.Millisecond))

	_, err := NewHealthAPI(c).Dashboard(context.Background(), "2024-07-15")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Retryable())
}

func TestClientHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHealthAPI(c).Messages(ctx, "c1")

	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
