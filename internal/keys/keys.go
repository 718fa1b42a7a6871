// Package keys is the catalogue of cache keys and their freshness windows.
package keys

import (
	"fmt"
	"time"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

// Domains and collection names.
const (
	DomainHealth = "health"
	DomainChat   = "chat"

	Dashboard     = "dashboard"
	FoodLogs      = "foodLogs"
	ExerciseLogs  = "exerciseLogs"
	ExerciseTypes = "exerciseTypes"
	WaterLogs     = "waterLogs"
	Messages      = "messages"

	ByDate     = "byDate"
	ByMealType = "mealType"
)

// DashboardKey is (health, dashboard, date).
func DashboardKey(date string) cache.Key {
	return cache.NewKey(DomainHealth, Dashboard, date)
}

// FoodLogsByDate is (health, foodLogs, byDate, date).
func FoodLogsByDate(date string) cache.Key {
	return cache.NewKey(DomainHealth, FoodLogs, ByDate, date)
}

// FoodLogsByMealType is (health, foodLogs, mealType, MEAL, date).
func FoodLogsByMealType(meal models.MealType, date string) cache.Key {
	return cache.NewKey(DomainHealth, FoodLogs, ByMealType, string(meal), date)
}

// ExerciseLogsByDate is (health, exerciseLogs, byDate, date).
func ExerciseLogsByDate(date string) cache.Key {
	return cache.NewKey(DomainHealth, ExerciseLogs, ByDate, date)
}

// ExerciseTypesKey is (health, exerciseTypes).
func ExerciseTypesKey() cache.Key {
	return cache.NewKey(DomainHealth, ExerciseTypes)
}

// WaterLogsByDate is (health, waterLogs, byDate, date).
func WaterLogsByDate(date string) cache.Key {
	return cache.NewKey(DomainHealth, WaterLogs, ByDate, date)
}

// MessagesKey is (chat, messages, conversationId).
func MessagesKey(conversationID string) cache.Key {
	return cache.NewKey(DomainChat, Messages, conversationID)
}

// Kind identifies which catalogue entry a key belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindDashboard
	KindFoodByDate
	KindFoodByMealType
	KindExerciseByDate
	KindExerciseTypes
	KindWaterByDate
	KindMessages
)

func (k Kind) String() string {
	switch k {
	case KindDashboard:
		return "dashboard"
	case KindFoodByDate:
		return "foodLogs.byDate"
	case KindFoodByMealType:
		return "foodLogs.mealType"
	case KindExerciseByDate:
		return "exerciseLogs.byDate"
	case KindExerciseTypes:
		return "exerciseTypes"
	case KindWaterByDate:
		return "waterLogs.byDate"
	case KindMessages:
		return "messages"
	}
	return "unknown"
}

// Parsed is a key decoded back into its parameters.
type Parsed struct {
	Kind           Kind
	Date           string
	MealType       models.MealType
	ConversationID string
}

// Parse decodes a catalogue key. Unknown shapes return core.ErrUnknownKey.
func Parse(k cache.Key) (Parsed, error) {
	s := k.Segments()
	switch {
	case len(s) == 3 && s[0] == DomainHealth && s[1] == Dashboard:
		return Parsed{Kind: KindDashboard, Date: s[2]}, nil
	case len(s) == 4 && s[0] == DomainHealth && s[1] == FoodLogs && s[2] == ByDate:
		return Parsed{Kind: KindFoodByDate, Date: s[3]}, nil
	case len(s) == 5 && s[0] == DomainHealth && s[1] == FoodLogs && s[2] == ByMealType:
		return Parsed{Kind: KindFoodByMealType, MealType: models.MealType(s[3]), Date: s[4]}, nil
	case len(s) == 4 && s[0] == DomainHealth && s[1] == ExerciseLogs && s[2] == ByDate:
		return Parsed{Kind: KindExerciseByDate, Date: s[3]}, nil
	case len(s) == 2 && s[0] == DomainHealth && s[1] == ExerciseTypes:
		return Parsed{Kind: KindExerciseTypes}, nil
	case len(s) == 4 && s[0] == DomainHealth && s[1] == WaterLogs && s[2] == ByDate:
		return Parsed{Kind: KindWaterByDate, Date: s[3]}, nil
	case len(s) == 3 && s[0] == DomainChat && s[1] == Messages:
		return Parsed{Kind: KindMessages, ConversationID: s[2]}, nil
	}
	return Parsed{}, fmt.Errorf("%w: %s", core.ErrUnknownKey, k)
}

// Staleness holds the freshness window per domain.
type Staleness struct {
	Dashboard     time.Duration `mapstructure:"dashboard"`
	FoodLogs      time.Duration `mapstructure:"foodLogs"`
	WaterLogs     time.Duration `mapstructure:"waterLogs"`
	ExerciseLogs  time.Duration `mapstructure:"exerciseLogs"`
	ExerciseTypes time.Duration `mapstructure:"exerciseTypes"`
	Messages      time.Duration `mapstructure:"messages"`
}

// DefaultStaleness returns the built-in windows.
func DefaultStaleness() Staleness {
	return Staleness{
		Dashboard:     core.DashboardStaleTime,
		FoodLogs:      core.FoodLogsStaleTime,
		WaterLogs:     core.WaterLogsStaleTime,
		ExerciseLogs:  core.ExerciseLogsStaleTime,
		ExerciseTypes: core.ExerciseTypesStaleTime,
		Messages:      core.MessagesStaleTime,
	}
}

// StaleTime picks the window for k. It plugs into cache.WithStaleTime.
func (s Staleness) StaleTime(k cache.Key) time.Duration {
	p, err := Parse(k)
	if err != nil {
		return 0
	}
	switch p.Kind {
	case KindDashboard:
		return s.Dashboard
	case KindFoodByDate, KindFoodByMealType:
		return s.FoodLogs
	case KindExerciseByDate:
		return s.ExerciseLogs
	case KindExerciseTypes:
		return s.ExerciseTypes
	case KindWaterByDate:
		return s.WaterLogs
	case KindMessages:
		return s.Messages
	}
	return 0
}
