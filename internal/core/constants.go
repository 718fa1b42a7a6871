// Package core provides shared constants, date helpers and the error taxonomy
// for the nutrisync client.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// API configuration
const (
	APIBaseURL  = "http://localhost:8080"
	TokenEnvVar = "NUTRISYNC_TOKEN"
	EnvPrefix   = "NUTRISYNC"
	AppName     = "nutrisync"
	DefaultTZ   = "UTC"
)

// APIDateFmt is the calendar date layout used on the wire and in cache keys.
const APIDateFmt = "2006-01-02"

// Staleness windows per cache key domain.
const (
	DashboardStaleTime     = 5 * time.Minute
	FoodLogsStaleTime      = 2 * time.Minute
	WaterLogsStaleTime     = 2 * time.Minute
	ExerciseLogsStaleTime  = 5 * time.Minute
	ExerciseTypesStaleTime = time.Hour
	MessagesStaleTime      = 30 * time.Second
)

// Body and date-range defaults
const (
	DefaultWeightKg      = 70.0
	DefaultMaxFutureDays = 365
	MaxWaterMl           = 5000
	MaxExerciseMinutes   = 24 * 60
	MaxMessageLength     = 4000
)

// EarliestDataDate is the lower bound used when the account creation date is unknown.
var EarliestDataDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Range fetch defaults
const (
	RangeMaxWorkers = 3 // Max parallel day loads for range views
)

// DataRoot returns the default data directory path.
func DataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "."+AppName)
}

// Version is the current CLI version.
const Version = "0.3.0"
