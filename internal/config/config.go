// Package config loads nutrisync settings from a config file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
)

// APIConfig points the client at the backend.
type APIConfig struct {
	BaseURL    string        `mapstructure:"baseURL"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
}

// ProfileConfig holds the body metrics used by estimates.
type ProfileConfig struct {
	WeightKg float64 `mapstructure:"weightKg"`
}

// AccountConfig bounds the dates that can hold data.
type AccountConfig struct {
	CreatedAt string `mapstructure:"createdAt"`
}

// DashboardConfig tunes date navigation.
type DashboardConfig struct {
	MaxFutureDays int `mapstructure:"maxFutureDays"`
}

// CredentialsConfig selects the token store.
type CredentialsConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MockServerConfig configures the local fake backend.
type MockServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	Token       string   `mapstructure:"token"`
	CORSOrigins []string `mapstructure:"corsOrigins"`
}

// Config is the full settings tree.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Timezone    string            `mapstructure:"timezone"`
	Profile     ProfileConfig     `mapstructure:"profile"`
	Account     AccountConfig     `mapstructure:"account"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Staleness   keys.Staleness    `mapstructure:"staleness"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Log         LogConfig         `mapstructure:"log"`
	DataDir     string            `mapstructure:"dataDir"`
	MockServer  MockServerConfig  `mapstructure:"mockServer"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// Configure sets search paths, the env prefix and defaults on v.
func Configure(v *viper.Viper) {
	name := core.AppName
	v.SetConfigName("." + name)
	v.AddConfigPath("$HOME")
	v.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", name))
	v.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", name))
	v.SetEnvPrefix(core.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
}

func setDefaults(v *viper.Viper) {
	st := keys.DefaultStaleness()
	dataDir := core.DataRoot()

	v.SetDefault("api.baseURL", core.APIBaseURL)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.maxRetries", 3)
	v.SetDefault("timezone", core.DefaultTZ)
	v.SetDefault("profile.weightKg", core.DefaultWeightKg)
	v.SetDefault("account.createdAt", core.FormatDate(core.EarliestDataDate))
	v.SetDefault("dashboard.maxFutureDays", core.DefaultMaxFutureDays)
	v.SetDefault("staleness.dashboard", st.Dashboard)
	v.SetDefault("staleness.foodLogs", st.FoodLogs)
	v.SetDefault("staleness.waterLogs", st.WaterLogs)
	v.SetDefault("staleness.exerciseLogs", st.ExerciseLogs)
	v.SetDefault("staleness.exerciseTypes", st.ExerciseTypes)
	v.SetDefault("staleness.messages", st.Messages)
	v.SetDefault("credentials.backend", "file")
	v.SetDefault("credentials.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("dataDir", dataDir)
	v.SetDefault("mockServer.addr", "127.0.0.1:8080")
	v.SetDefault("mockServer.token", "")
	v.SetDefault("mockServer.corsOrigins", []string{"http://localhost:*"})
}

// Load reads the config file (an explicit path or the search paths) and
// decodes everything into a Config. A missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	Configure(v)
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.Credentials.Path == "" && cfg.Credentials.Backend != "memory" {
		cfg.Credentials.Path = filepath.Join(cfg.DataDir, defaultCredentialsFile(cfg.Credentials.Backend))
	}
	return cfg, cfg.Validate()
}

func defaultCredentialsFile(backend string) string {
	if strings.EqualFold(backend, "sqlite") {
		return "nutrisync.db"
	}
	return "credentials.json"
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return core.Invalid("api.baseURL", "is required")
	}
	if c.Profile.WeightKg < 0 {
		return core.Invalid("profile.weightKg", "must not be negative")
	}
	if c.Dashboard.MaxFutureDays < 0 {
		return core.Invalid("dashboard.maxFutureDays", "must not be negative")
	}
	if _, err := c.AccountCreated(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured timezone, UTC when unknown.
func (c *Config) Location() *time.Location {
	return core.GetTZ(c.Timezone)
}

// AccountCreated parses account.createdAt.
func (c *Config) AccountCreated() (time.Time, error) {
	if c.Account.CreatedAt == "" {
		return core.EarliestDataDate, nil
	}
	t, err := core.ParseDate(c.Account.CreatedAt)
	if err != nil {
		return time.Time{}, core.Invalid("account.createdAt", "%v", err)
	}
	return t, nil
}
