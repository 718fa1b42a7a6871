// Package models defines the health entities shared by the cache, the REST
// client and the mutation engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// MealType groups food logs within a day.
type MealType string

const (
	MealBreakfast MealType = "BREAKFAST"
	MealLunch     MealType = "LUNCH"
	MealDinner    MealType = "DINNER"
	MealSnack     MealType = "SNACK"
)

// MealTypes lists every meal type in display order.
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}

// ParseMealType normalizes s into a MealType.
func ParseMealType(s string) (MealType, error) {
	mt := MealType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range MealTypes {
		if mt == known {
			return mt, nil
		}
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// Intensity is the effort level of an exercise.
type Intensity string

const (
	IntensityLow      Intensity = "LOW"
	IntensityModerate Intensity = "MODERATE"
	IntensityHigh     Intensity = "HIGH"
)

// ParseIntensity normalizes s into an Intensity.
func ParseIntensity(s string) (Intensity, error) {
	switch in := Intensity(strings.ToUpper(strings.TrimSpace(s))); in {
	case IntensityLow, IntensityModerate, IntensityHigh:
		return in, nil
	}
	return "", fmt.Errorf("unknown intensity %q", s)
}

// Sender identifies the author of a chat message.
type Sender string

const (
	SenderUser      Sender = "USER"
	SenderAssistant Sender = "ASSISTANT"
)

// FoodItem is one line of a food log. Fats is nullable on the wire.
type FoodItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Quantity float64  `json:"quantity"`
	Unit     string   `json:"unit"`
	Calories float64  `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fats     *float64 `json:"fats"`
}

// FoodLog is a meal entry made of items.
type FoodLog struct {
	ID       string     `json:"id"`
	Date     string     `json:"date"`
	MealType MealType   `json:"mealType"`
	LoggedAt time.Time  `json:"loggedAt"`
	Items    []FoodItem `json:"items"`
}

// ExerciseLog records a workout and its energy expenditure.
type ExerciseLog struct {
	ID              string    `json:"id"`
	Date            string    `json:"date"`
	ExerciseName    string    `json:"exerciseName"`
	Intensity       Intensity `json:"intensity"`
	DurationMinutes int       `json:"durationMinutes"`
	CaloriesBurned  int       `json:"caloriesBurned"`
	LoggedAt        time.Time `json:"loggedAt"`
}

// WaterLog records a drink.
type WaterLog struct {
	ID       string    `json:"id"`
	Date     string    `json:"date"`
	AmountMl int       `json:"amountMl"`
	LoggedAt time.Time `json:"loggedAt"`
}

// Message is one chat turn in a conversation with the assistant.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	// Pending marks a locally synthesized message awaiting confirmation.
	Pending bool `json:"pending,omitempty"`
}

// Progress holds consumed/target ratios. Values are stored unclamped; a ratio
// above 1 means the target was exceeded.
type Progress struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Water    float64 `json:"water"`
}

// Clamped returns the ratios limited to [0,1] for progress bars.
func (p Progress) Clamped() Progress {
	return Progress{
		Calories: clamp01(p.Calories),
		Protein:  clamp01(p.Protein),
		Carbs:    clamp01(p.Carbs),
		Fat:      clamp01(p.Fat),
		Water:    clamp01(p.Water),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DailySummary is the per-date dashboard aggregate.
type DailySummary struct {
	Date              string   `json:"date"`
	TargetCalories    float64  `json:"targetCalories"`
	ConsumedCalories  float64  `json:"consumedCalories"`
	CaloriesBurned    float64  `json:"caloriesBurned"`
	RemainingCalories float64  `json:"remainingCalories"`
	ConsumedProtein   float64  `json:"consumedProtein"`
	TargetProtein     float64  `json:"targetProtein"`
	ConsumedCarbs     float64  `json:"consumedCarbs"`
	TargetCarbs       float64  `json:"targetCarbs"`
	ConsumedFat       float64  `json:"consumedFat"`
	TargetFat         float64  `json:"targetFat"`
	WaterConsumedMl   float64  `json:"waterConsumedMl"`
	WaterTargetMl     float64  `json:"waterTargetMl"`
	Progress          Progress `json:"progress"`
}

// ExerciseType is one row of the MET reference table served by the backend.
type ExerciseType struct {
	Key  string                `json:"key"`
	Name string                `json:"name"`
	MET  map[Intensity]float64 `json:"met"`
}

// FoodLogForm is the user input for creating or replacing a food log.
type FoodLogForm struct {
	Date     string     `json:"date"`
	MealType MealType   `json:"mealType"`
	LoggedAt time.Time  `json:"loggedAt"`
	Items    []FoodItem `json:"items"`
}

// ExerciseLogForm is the user input for logging a workout. CaloriesBurned
// overrides the estimate when positive.
type ExerciseLogForm struct {
	Date            string    `json:"date"`
	ExerciseName    string    `json:"exerciseName"`
	Intensity       Intensity `json:"intensity"`
	DurationMinutes int       `json:"durationMinutes"`
	CaloriesBurned  int       `json:"caloriesBurned,omitempty"`
	LoggedAt        time.Time `json:"loggedAt"`
}

// ExerciseUpdate changes the effort of an existing workout.
type ExerciseUpdate struct {
	Date            string    `json:"date"`
	ID              string    `json:"id"`
	Intensity       Intensity `json:"intensity"`
	DurationMinutes int       `json:"durationMinutes"`
}

// WaterLogForm is the user input for logging a drink.
type WaterLogForm struct {
	Date     string    `json:"date"`
	AmountMl int       `json:"amountMl"`
	LoggedAt time.Time `json:"loggedAt"`
}

// SendResult is the server's answer to an appended user message.
type SendResult struct {
	UserMessage      Message  `json:"userMessage"`
	AssistantMessage *Message `json:"assistantMessage,omitempty"`
}

// EntityID implementations let collection helpers match records by identity.
func (l FoodLog) EntityID() string     { return l.ID }
func (l ExerciseLog) EntityID() string { return l.ID }
func (l WaterLog) EntityID() string    { return l.ID }
func (m Message) EntityID() string     { return m.ID }
