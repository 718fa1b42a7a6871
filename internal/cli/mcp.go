package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/colthorp/nutrisync-cli-go/internal/app"
	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
	"github.com/colthorp/nutrisync-cli-go/internal/output"
)

func newMCPCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				g.log.Info().Msg("starting MCP server on stdio")
				return server.ServeStdio(newMCPServer(g, a).server)
			})
		},
	}
}

// mcpServer exposes the engine as MCP tools. Writes wait for the backend so
// the model sees the confirmed record. Failed writes are kept for the session
// so they can be retried.
type mcpServer struct {
	g      *globals
	app    *app.App
	server *server.MCPServer

	mu     sync.Mutex
	failed map[string]*optimistic.Error
}

// failedWrite is the tool view of a rolled back health write.
type failedWrite struct {
	TempID    string      `json:"tempId"`
	Op        string      `json:"op"`
	Input     interface{} `json:"input"`
	Error     string      `json:"error"`
	Retryable bool        `json:"retryable"`
}

func newMCPServer(g *globals, a *app.App) *mcpServer {
	s := &mcpServer{
		g:      g,
		app:    a,
		failed: make(map[string]*optimistic.Error),
		server: server.NewMCPServer(
			core.AppName,
			core.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

func (s *mcpServer) registerTools() {
	dateSpec := mcp.WithString("date_spec",
		mcp.Description("Date: today, yesterday, YYYY-MM-DD, M/D or relative like d-1 (default: today)"),
	)

	s.server.AddTool(mcp.NewTool("get_dashboard",
		mcp.WithDescription("Get the calorie, macro and water dashboard of a day together with its logs"),
		dateSpec,
		mcp.WithBoolean("raw", mcp.Description("Return JSON instead of markdown")),
		mcp.WithBoolean("refresh", mcp.Description("Reload the day from the server instead of the cache")),
	), s.handleGetDashboard)

	s.server.AddTool(mcp.NewTool("log_water",
		mcp.WithDescription("Log a drink of water"),
		mcp.WithNumber("amount_ml", mcp.Required(), mcp.Description("Amount in millilitres")),
		dateSpec,
	), s.handleLogWater)

	s.server.AddTool(mcp.NewTool("log_food",
		mcp.WithDescription("Log a meal consisting of one food item"),
		mcp.WithString("meal_type", mcp.Required(), mcp.Description("BREAKFAST, LUNCH, DINNER or SNACK")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Food name")),
		mcp.WithNumber("calories", mcp.Required(), mcp.Description("Calories in kcal")),
		mcp.WithNumber("protein", mcp.Description("Protein in grams")),
		mcp.WithNumber("carbs", mcp.Description("Carbohydrates in grams")),
		mcp.WithNumber("fats", mcp.Description("Fat in grams, omit when unknown")),
		mcp.WithNumber("quantity", mcp.Description("Quantity (default 1)")),
		mcp.WithString("unit", mcp.Description("Unit of the quantity (default serving)")),
		dateSpec,
	), s.handleLogFood)

	s.server.AddTool(mcp.NewTool("log_exercise",
		mcp.WithDescription("Log a workout; calories are estimated from MET values unless given"),
		mcp.WithString("exercise_name", mcp.Required(), mcp.Description("Exercise, e.g. running")),
		mcp.WithString("intensity", mcp.Description("LOW, MODERATE or HIGH (default MODERATE)")),
		mcp.WithNumber("duration_minutes", mcp.Required(), mcp.Description("Duration in minutes")),
		mcp.WithNumber("calories_burned", mcp.Description("Override the estimate")),
		dateSpec,
	), s.handleLogExercise)

	s.server.AddTool(mcp.NewTool("estimate_calories",
		mcp.WithDescription("Estimate calories burned without logging anything"),
		mcp.WithString("exercise_name", mcp.Required(), mcp.Description("Exercise, e.g. cycling")),
		mcp.WithString("intensity", mcp.Description("LOW, MODERATE or HIGH (default MODERATE)")),
		mcp.WithNumber("duration_minutes", mcp.Required(), mcp.Description("Duration in minutes")),
		mcp.WithNumber("weight_kg", mcp.Description("Body weight (default: configured profile weight)")),
	), s.handleEstimate)

	s.server.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to the nutrition assistant and return its reply"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("conversation_id", mcp.Description("Conversation id (default: default)")),
	), s.handleSendMessage)

	s.server.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("List writes in flight, failed writes and messages of this session, and cache counters"),
	), s.handleSyncStatus)

	s.server.AddTool(mcp.NewTool("retry_write",
		mcp.WithDescription("Retry a failed log, edit or delete with its original input"),
		mcp.WithString("temp_id", mcp.Required(), mcp.Description("Temporary id reported by the failed write")),
	), s.handleRetryWrite)

	s.server.AddTool(mcp.NewTool("retry_message",
		mcp.WithDescription("Send a failed chat message again and return the reply"),
		mcp.WithString("temp_id", mcp.Required(), mcp.Description("Temporary id of the failed message")),
	), s.handleRetryMessage)

	s.server.AddTool(mcp.NewTool("discard_message",
		mcp.WithDescription("Forget a failed chat message"),
		mcp.WithString("temp_id", mcp.Required(), mcp.Description("Temporary id of the failed message")),
	), s.handleDiscardMessage)

	s.server.AddTool(mcp.NewTool("refresh_cache",
		mcp.WithDescription("Mark every cached health record stale so the next read reloads it"),
	), s.handleRefreshCache)
}

func (s *mcpServer) date(request mcp.CallToolRequest) (string, error) {
	return s.g.resolveDate(request.GetString("date_spec", "today"))
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		return args
	}
	return nil
}

// requireNumber reads a mandatory numeric argument.
func requireNumber(request mcp.CallToolRequest, name string) (float64, error) {
	if _, ok := arguments(request)[name]; !ok {
		return 0, fmt.Errorf("%s parameter is required", name)
	}
	return request.GetFloat(name, 0), nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error encoding JSON: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *mcpServer) handleGetDashboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := s.date(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if refresh, _ := arguments(request)["refresh"].(bool); refresh {
		s.app.Dashboard.Invalidate(date)
	}
	day, err := s.app.Dashboard.Load(ctx, date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load %s: %v", date, err)), nil
	}
	if raw, _ := arguments(request)["raw"].(bool); raw {
		return jsonResult(day)
	}
	var buf bytes.Buffer
	output.PrintDay(&buf, day)
	return mcp.NewToolResultText(buf.String()), nil
}

// settle preloads date, starts the write and waits for its outcome.
func settle[R any](ctx context.Context, s *mcpServer, date string, start func() (*optimistic.Mutation[R], error)) (*mcp.CallToolResult, error) {
	if _, err := s.app.Dashboard.Load(ctx, date); err != nil {
		s.g.log.Warn().Err(err).Str("date", date).Msg("could not preload day")
	}
	m, err := start()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := m.Wait(ctx)
	if err != nil {
		return s.rolledBack(err), nil
	}
	return jsonResult(res)
}

// rolledBack reports a failed write and keeps it for retry_write.
func (s *mcpServer) rolledBack(err error) *mcp.CallToolResult {
	var merr *optimistic.Error
	if !errors.As(err, &merr) {
		return mcp.NewToolResultError(fmt.Sprintf("not saved: %v", err))
	}
	s.mu.Lock()
	s.failed[merr.TempID] = merr
	s.mu.Unlock()
	if !merr.Retryable() {
		return mcp.NewToolResultError(fmt.Sprintf("not saved, local changes rolled back: %v", merr.Err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("not saved, local changes rolled back: %v (retry with temp_id %s)", merr.Err, merr.TempID))
}

func (s *mcpServer) failedWrites() []failedWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]failedWrite, 0, len(s.failed))
	for _, f := range s.failed {
		out = append(out, failedWrite{
			TempID:    f.TempID,
			Op:        f.Op,
			Input:     f.Input,
			Error:     f.Err.Error(),
			Retryable: f.Retryable(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TempID < out[j].TempID })
	return out
}

func (s *mcpServer) handleLogWater(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ml, err := requireNumber(request, "amount_ml")
	if err != nil {
		return mcp.NewToolResultError("amount_ml parameter is required"), nil
	}
	date, err := s.date(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	form := models.WaterLogForm{Date: date, AmountMl: int(ml)}
	return settle(ctx, s, date, func() (*optimistic.Mutation[models.WaterLog], error) {
		return s.app.Health.AddWaterLog(ctx, form)
	})
}

func (s *mcpServer) handleLogFood(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	meal, err := request.RequireString("meal_type")
	if err != nil {
		return mcp.NewToolResultError("meal_type parameter is required"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	kcal, err := requireNumber(request, "calories")
	if err != nil {
		return mcp.NewToolResultError("calories parameter is required"), nil
	}
	mt, err := models.ParseMealType(meal)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := s.date(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item := models.FoodItem{
		Name:     name,
		Quantity: request.GetFloat("quantity", 1),
		Unit:     request.GetString("unit", "serving"),
		Calories: kcal,
		Protein:  request.GetFloat("protein", 0),
		Carbs:    request.GetFloat("carbs", 0),
	}
	if _, ok := arguments(request)["fats"]; ok {
		fats := request.GetFloat("fats", 0)
		item.Fats = &fats
	}
	form := models.FoodLogForm{Date: date, MealType: mt, Items: []models.FoodItem{item}}
	return settle(ctx, s, date, func() (*optimistic.Mutation[models.FoodLog], error) {
		return s.app.Health.AddFoodLog(ctx, form)
	})
}

func (s *mcpServer) handleLogExercise(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("exercise_name")
	if err != nil {
		return mcp.NewToolResultError("exercise_name parameter is required"), nil
	}
	minutes, err := requireNumber(request, "duration_minutes")
	if err != nil {
		return mcp.NewToolResultError("duration_minutes parameter is required"), nil
	}
	in, err := models.ParseIntensity(request.GetString("intensity", string(models.IntensityModerate)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := s.date(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	form := models.ExerciseLogForm{
		Date:            date,
		ExerciseName:    name,
		Intensity:       in,
		DurationMinutes: int(minutes),
		CaloriesBurned:  int(request.GetFloat("calories_burned", 0)),
	}
	return settle(ctx, s, date, func() (*optimistic.Mutation[models.ExerciseLog], error) {
		return s.app.Health.AddExerciseLog(ctx, form)
	})
}

func (s *mcpServer) handleEstimate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("exercise_name")
	if err != nil {
		return mcp.NewToolResultError("exercise_name parameter is required"), nil
	}
	minutes, err := requireNumber(request, "duration_minutes")
	if err != nil {
		return mcp.NewToolResultError("duration_minutes parameter is required"), nil
	}
	in, err := models.ParseIntensity(request.GetString("intensity", string(models.IntensityModerate)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	weight := request.GetFloat("weight_kg", s.g.cfg.Profile.WeightKg)

	kcal := s.app.Health.Estimator(ctx).Estimate(name, minutes, in, weight)
	return jsonResult(map[string]interface{}{
		"exerciseName":    name,
		"intensity":       in,
		"durationMinutes": minutes,
		"weightKg":        weight,
		"caloriesBurned":  kcal,
	})
}

func (s *mcpServer) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content parameter is required"), nil
	}
	conv := request.GetString("conversation_id", defaultConversation)

	m, err := s.app.Chat.SendMessage(ctx, conv, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.reply(ctx, m)
}

func (s *mcpServer) reply(ctx context.Context, m *optimistic.Mutation[models.SendResult]) (*mcp.CallToolResult, error) {
	res, err := m.Wait(ctx)
	if err != nil {
		var merr *optimistic.Error
		if errors.As(err, &merr) {
			return mcp.NewToolResultError(fmt.Sprintf("message not delivered: %v (retry with temp_id %s)", merr.Err, merr.TempID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("message not delivered: %v", err)), nil
	}
	if res.AssistantMessage == nil {
		return mcp.NewToolResultText("(no reply)"), nil
	}
	return mcp.NewToolResultText(res.AssistantMessage.Content), nil
}

func (s *mcpServer) handleSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"pending":        s.app.Coordinator.Pending(),
		"failedWrites":   s.failedWrites(),
		"failedMessages": s.app.Chat.Failed(""),
		"cache":          s.app.Cache.Stats(),
	})
}

func (s *mcpServer) handleRetryWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("temp_id")
	if err != nil {
		return mcp.NewToolResultError("temp_id parameter is required"), nil
	}
	s.mu.Lock()
	failed, ok := s.failed[id]
	delete(s.failed, id)
	s.mu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no failed write %s", id)), nil
	}

	h, err := s.app.Health.Retry(ctx, failed)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	select {
	case <-h.Done():
	case <-ctx.Done():
		return mcp.NewToolResultError(ctx.Err().Error()), nil
	}
	if err := h.Err(); err != nil {
		return s.rolledBack(err), nil
	}
	return jsonResult(map[string]interface{}{
		"tempId": h.ID(),
		"op":     failed.Op,
		"status": h.Status().String(),
	})
}

func (s *mcpServer) handleRetryMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("temp_id")
	if err != nil {
		return mcp.NewToolResultError("temp_id parameter is required"), nil
	}
	m, err := s.app.Chat.Retry(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.reply(ctx, m)
}

func (s *mcpServer) handleDiscardMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("temp_id")
	if err != nil {
		return mcp.NewToolResultError("temp_id parameter is required"), nil
	}
	if !s.app.Chat.Discard(id) {
		return mcp.NewToolResultError(fmt.Sprintf("no failed message %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Discarded %s.", id)), nil
}

func (s *mcpServer) handleRefreshCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := s.app.Cache.InvalidatePrefix(cache.NewKey(keys.DomainHealth))
	return mcp.NewToolResultText(fmt.Sprintf("Marked %d cached records stale.", n)), nil
}
