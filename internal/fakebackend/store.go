package fakebackend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/exercise"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/nutrition"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

// DefaultTargets are the daily goals of a fresh account.
var DefaultTargets = models.DailySummary{
	TargetCalories: 2000,
	TargetProtein:  150,
	TargetCarbs:    250,
	TargetFat:      70,
	WaterTargetMl:  2000,
}

// Store is the backend's state. All methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	targets   models.DailySummary
	weightKg  float64
	table     exercise.Table
	now       func() time.Time
	food      map[string]models.FoodLog
	exercises map[string]models.ExerciseLog
	water     map[string]models.WaterLog
	messages  map[string][]models.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		targets:   DefaultTargets,
		weightKg:  core.DefaultWeightKg,
		table:     exercise.DefaultTable,
		now:       time.Now,
		food:      make(map[string]models.FoodLog),
		exercises: make(map[string]models.ExerciseLog),
		water:     make(map[string]models.WaterLog),
		messages:  make(map[string][]models.Message),
	}
}

func newID() string {
	return uuid.New().String()
}

// SeedFood stores logs as-is, assigning ids where missing.
func (s *Store) SeedFood(logs ...models.FoodLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		if l.ID == "" {
			l.ID = newID()
		}
		l.Items = withItemIDs(l.Items, nil)
		s.food[l.ID] = l
	}
}

// SeedExercise stores workouts as-is.
func (s *Store) SeedExercise(logs ...models.ExerciseLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		if l.ID == "" {
			l.ID = newID()
		}
		s.exercises[l.ID] = l
	}
}

// SeedWater stores drinks as-is.
func (s *Store) SeedWater(logs ...models.WaterLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		if l.ID == "" {
			l.ID = newID()
		}
		s.water[l.ID] = l
	}
}

// Reset clears all stored logs and messages.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.food = make(map[string]models.FoodLog)
	s.exercises = make(map[string]models.ExerciseLog)
	s.water = make(map[string]models.WaterLog)
	s.messages = make(map[string][]models.Message)
}

// Dashboard aggregates every log of date.
func (s *Store) Dashboard(date string) models.DailySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dashboardLocked(date)
}

func (s *Store) dashboardLocked(date string) models.DailySummary {
	base := s.targets
	base.Date = date
	return nutrition.Summarize(base, s.foodLocked(date, ""), s.exerciseLocked(date), s.waterLocked(date))
}

// FoodLogs lists the food of date ordered by log time, optionally for one meal.
func (s *Store) FoodLogs(date string, meal models.MealType) []models.FoodLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foodLocked(date, meal)
}

func (s *Store) foodLocked(date string, meal models.MealType) []models.FoodLog {
	out := []models.FoodLog{}
	for _, l := range s.food {
		if l.Date == date && (meal == "" || l.MealType == meal) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].LoggedAt, out[j].LoggedAt, out[i].ID, out[j].ID) })
	return out
}

// before orders by time then id so lists are stable.
func before(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}

// withItemIDs gives every item a server id. Ids already present in existing
// are kept, anything else is replaced.
func withItemIDs(items []models.FoodItem, existing []models.FoodItem) []models.FoodItem {
	known := make(map[string]bool, len(existing))
	for _, it := range existing {
		known[it.ID] = true
	}
	out := make([]models.FoodItem, len(items))
	for i, it := range items {
		if it.ID == "" || (existing != nil && !known[it.ID]) || optimistic.IsTempID(it.ID) {
			it.ID = newID()
		}
		out[i] = it
	}
	return out
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

// CreateFood stores a new food log.
func (s *Store) CreateFood(form models.FoodLogForm) models.FoodLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := models.FoodLog{
		ID:       newID(),
		Date:     form.Date,
		MealType: form.MealType,
		LoggedAt: s.stamp(form.LoggedAt),
		Items:    withItemIDs(form.Items, nil),
	}
	s.food[l.ID] = l
	return l
}

// UpdateFood replaces the meal type and items of a log.
func (s *Store) UpdateFood(id string, form models.FoodLogForm) (models.FoodLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.food[id]
	if !ok {
		return models.FoodLog{}, notFound("food log", id)
	}
	if form.Date != "" && form.Date != l.Date {
		return models.FoodLog{}, core.Invalid("date", "cannot move a food log to another day")
	}
	if form.MealType != "" {
		l.MealType = form.MealType
	}
	if !form.LoggedAt.IsZero() {
		l.LoggedAt = form.LoggedAt
	}
	l.Items = withItemIDs(form.Items, l.Items)
	s.food[id] = l
	return l, nil
}

// DeleteFood removes a food log.
func (s *Store) DeleteFood(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.food[id]; !ok {
		return notFound("food log", id)
	}
	delete(s.food, id)
	return nil
}

// AddItem appends an item to a food log.
func (s *Store) AddItem(logID string, item models.FoodItem) (models.FoodLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.food[logID]
	if !ok {
		return models.FoodLog{}, notFound("food log", logID)
	}
	item.ID = newID()
	l.Items = append(append([]models.FoodItem(nil), l.Items...), item)
	s.food[logID] = l
	return l, nil
}

// UpdateItem replaces one item of a food log.
func (s *Store) UpdateItem(logID, itemID string, item models.FoodItem) (models.FoodLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.food[logID]
	if !ok {
		return models.FoodLog{}, notFound("food log", logID)
	}
	items := append([]models.FoodItem(nil), l.Items...)
	for i := range items {
		if items[i].ID == itemID {
			item.ID = itemID
			items[i] = item
			l.Items = items
			s.food[logID] = l
			return l, nil
		}
	}
	return models.FoodLog{}, notFound("food item", itemID)
}

// DeleteItem removes one item of a food log.
func (s *Store) DeleteItem(logID, itemID string) (models.FoodLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.food[logID]
	if !ok {
		return models.FoodLog{}, notFound("food log", logID)
	}
	items := make([]models.FoodItem, 0, len(l.Items))
	found := false
	for _, it := range l.Items {
		if it.ID == itemID {
			found = true
			continue
		}
		items = append(items, it)
	}
	if !found {
		return models.FoodLog{}, notFound("food item", itemID)
	}
	l.Items = items
	s.food[logID] = l
	return l, nil
}

// ExerciseLogs lists the workouts of date.
func (s *Store) ExerciseLogs(date string) []models.ExerciseLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exerciseLocked(date)
}

func (s *Store) exerciseLocked(date string) []models.ExerciseLog {
	out := []models.ExerciseLog{}
	for _, l := range s.exercises {
		if l.Date == date {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].LoggedAt, out[j].LoggedAt, out[i].ID, out[j].ID) })
	return out
}

// CreateExercise stores a workout. A missing calorie figure is estimated from
// the MET table and the account weight.
func (s *Store) CreateExercise(form models.ExerciseLogForm) models.ExerciseLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	kcal := form.CaloriesBurned
	if kcal <= 0 {
		kcal = s.table.Estimate(form.ExerciseName, float64(form.DurationMinutes), form.Intensity, s.weightKg)
	}
	l := models.ExerciseLog{
		ID:              newID(),
		Date:            form.Date,
		ExerciseName:    form.ExerciseName,
		Intensity:       form.Intensity,
		DurationMinutes: form.DurationMinutes,
		CaloriesBurned:  kcal,
		LoggedAt:        s.stamp(form.LoggedAt),
	}
	s.exercises[l.ID] = l
	return l
}

// UpdateExercise changes the effort of a workout and recomputes its burn.
func (s *Store) UpdateExercise(upd models.ExerciseUpdate) (models.ExerciseLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.exercises[upd.ID]
	if !ok {
		return models.ExerciseLog{}, notFound("exercise log", upd.ID)
	}
	if upd.Intensity != "" {
		l.Intensity = upd.Intensity
	}
	if upd.DurationMinutes > 0 {
		l.DurationMinutes = upd.DurationMinutes
	}
	l.CaloriesBurned = s.table.Estimate(l.ExerciseName, float64(l.DurationMinutes), l.Intensity, s.weightKg)
	s.exercises[l.ID] = l
	return l, nil
}

// DeleteExercise removes a workout.
func (s *Store) DeleteExercise(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exercises[id]; !ok {
		return notFound("exercise log", id)
	}
	delete(s.exercises, id)
	return nil
}

// ExerciseTypes returns the MET table as served rows, sorted by key.
func (s *Store) ExerciseTypes() []models.ExerciseType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ExerciseType, 0, len(s.table))
	for key, mets := range s.table {
		if key == exercise.DefaultKey {
			continue
		}
		row := models.ExerciseType{Key: key, Name: displayName(key), MET: make(map[models.Intensity]float64, len(mets))}
		for in, v := range mets {
			row.MET[in] = v
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func displayName(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// WaterLogs lists the drinks of date.
func (s *Store) WaterLogs(date string) []models.WaterLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waterLocked(date)
}

func (s *Store) waterLocked(date string) []models.WaterLog {
	out := []models.WaterLog{}
	for _, l := range s.water {
		if l.Date == date {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].LoggedAt, out[j].LoggedAt, out[i].ID, out[j].ID) })
	return out
}

// CreateWater stores a drink.
func (s *Store) CreateWater(form models.WaterLogForm) models.WaterLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := models.WaterLog{
		ID:       newID(),
		Date:     form.Date,
		AmountMl: form.AmountMl,
		LoggedAt: s.stamp(form.LoggedAt),
	}
	s.water[l.ID] = l
	return l
}

// DeleteWater removes a drink.
func (s *Store) DeleteWater(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.water[id]; !ok {
		return notFound("water log", id)
	}
	delete(s.water, id)
	return nil
}

// Messages lists a conversation in chronological order.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message{}, s.messages[conversationID]...)
}

// Send appends a user message and the assistant's reply to it.
func (s *Store) Send(conversationID, content string) models.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	user := models.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Sender:         models.SenderUser,
		Content:        content,
		CreatedAt:      now,
	}
	reply := models.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Sender:         models.SenderAssistant,
		Content:        s.replyLocked(core.DateOf(now, time.UTC)),
		CreatedAt:      now.Add(time.Millisecond),
	}
	s.messages[conversationID] = append(s.messages[conversationID], user, reply)
	return models.SendResult{UserMessage: user, AssistantMessage: &reply}
}

// replyLocked answers with the state of today's budget.
func (s *Store) replyLocked(date string) string {
	d := s.dashboardLocked(date)
	return fmt.Sprintf("So far today you have eaten %.0f kcal and burned %.0f kcal, leaving %.0f of your %.0f kcal target.",
		d.ConsumedCalories, d.CaloriesBurned, d.RemainingCalories, d.TargetCalories)
}

// notFoundError reports a missing entity.
type notFoundError struct {
	kind, id string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.kind, e.id)
}

func (e *notFoundError) Unwrap() error { return core.ErrEntityNotFound }

func notFound(kind, id string) error {
	return &notFoundError{kind: kind, id: id}
}
