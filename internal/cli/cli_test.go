package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/dashboard"
	"github.com/colthorp/nutrisync-cli-go/internal/fakebackend"
)

// sandbox points the CLI at an in-process backend and an empty home.
func sandbox(t *testing.T, token string) *fakebackend.Server {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("NUTRISYNC_DATADIR", home)
	t.Setenv(core.TokenEnvVar, token)

	srv := fakebackend.New(fakebackend.WithLogger(zerolog.Nop()), fakebackend.WithToken("secret"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Setenv("NUTRISYNC_API_BASEURL", ts.URL)
	return srv
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errb bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errb.String(), err
}

func today() string {
	return core.FormatDate(core.Today(time.Now(), time.UTC))
}

func TestLoginLogout(t *testing.T) {
	sandbox(t, "")

	out, _, err := run(t, "secret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved (file store).")

	_, _, err = run(t, "", "dashboard", "--raw", "--quiet")
	require.NoError(t, err)

	out, _, err = run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Token removed.")

	out, _, err = run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "No token stored.")

	_, _, err = run(t, "", "dashboard", "--quiet")
	assert.ErrorContains(t, err, "HTTP 401")
}

func TestLogWaterShowsInDashboard(t *testing.T) {
	srv := sandbox(t, "secret")

	out, _, err := run(t, "", "log", "water", "500", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged 500 ml of water.")
	require.Len(t, srv.Store().WaterLogs(today()), 1)

	out, _, err = run(t, "", "dashboard", "today", "--raw", "--quiet")
	require.NoError(t, err)
	var d dashboard.Day
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, today(), d.Date)
	assert.Equal(t, 500.0, d.Summary.WaterConsumedMl)
	require.Len(t, d.Water, 1)
}

func TestLogFoodAndDelete(t *testing.T) {
	srv := sandbox(t, "secret")

	_, _, err := run(t, "", "log", "food", "--meal", "lunch", "--name", "soup", "--calories", "180", "--quiet")
	require.NoError(t, err)
	logs := srv.Store().FoodLogs(today(), "")
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].Items[0].Fats)

	out, _, err := run(t, "", "food", "delete", logs[0].ID, "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted meal")
	assert.Empty(t, srv.Store().FoodLogs(today(), ""))
}

func TestLogWaterOutOfRange(t *testing.T) {
	srv := sandbox(t, "secret")

	_, _, err := run(t, "", "log", "water", "9000", "--quiet")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err), "got %v", err)
	assert.Empty(t, srv.Store().WaterLogs(today()))
}

func TestFailedWriteReportsRollback(t *testing.T) {
	srv := sandbox(t, "secret")
	srv.FailNext(http.MethodPost, "/api/water-logs", http.StatusInternalServerError, 1)

	_, stderr, err := run(t, "", "log", "water", "250")
	require.Error(t, err)
	assert.Contains(t, stderr, "rolled back")
	assert.Empty(t, srv.Store().WaterLogs(today()))
}

func TestEstimate(t *testing.T) {
	sandbox(t, "secret")

	out, _, err := run(t, "", "estimate", "running", "-m", "30", "--weight", "70")
	require.NoError(t, err)
	assert.Contains(t, out, "~291 kcal")

	_, _, err = run(t, "", "estimate", "running", "-i", "extreme")
	assert.True(t, core.IsValidation(err), "got %v", err)
}

func TestChatSend(t *testing.T) {
	sandbox(t, "secret")

	out, _, err := run(t, "", "chat", "send", "how", "am", "I", "doing?", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "**Assistant**: So far today you have eaten 0 kcal")

	out, _, err = run(t, "", "chat", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "**You**: how am I doing?")
}

func TestBadDateSpec(t *testing.T) {
	sandbox(t, "secret")

	_, _, err := run(t, "", "dashboard", "someday")
	assert.ErrorContains(t, err, "invalid date specification")
}
