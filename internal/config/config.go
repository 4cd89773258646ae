// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// Duration parses yaml values like "5s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// OverrideBehavior controls what a date override with is_available=true but no
// start/end times means during window resolution.
type OverrideBehavior string

const (
	// OverrideFallsBackToWeekly treats the override as "no change": the
	// weekday's weekly hours apply.
	OverrideFallsBackToWeekly OverrideBehavior = "weekly_hours"
	// OverrideOpensFullDay treats the override as opening the whole day.
	OverrideOpensFullDay OverrideBehavior = "full_day"
)

type AvailabilityConfig struct {
	// MaxOccurrences caps the number of occurrences a single recurring
	// booking request may carry.
	MaxOccurrences int `yaml:"max_occurrences"`
	// MaxSuggestions caps the alternative slots proposed per conflicting
	// occurrence.
	MaxSuggestions int `yaml:"max_suggestions"`
	// AdjacentDaySpan is how many days before/after the requested date the
	// suggestion search may wander once the requested day is exhausted.
	AdjacentDaySpan int `yaml:"adjacent_day_span"`
	// CalendarTimeout bounds the external busy-time lookup. Exceeding it
	// fails open, it never fails the availability pipeline.
	CalendarTimeout Duration `yaml:"calendar_timeout"`
	// HoldExpiryMinutes is the default lifetime of a slot invitation.
	HoldExpiryMinutes int `yaml:"hold_expiry_minutes"`
	// OpenOverrideBehavior resolves the "available override with no times"
	// case explicitly instead of guessing.
	OpenOverrideBehavior OverrideBehavior `yaml:"open_override_behavior"`
}

type SweepConfig struct {
	// Cron is the schedule for the storage-hygiene sweep that marks expired
	// invitations and completes finished series. Correctness never depends
	// on it running.
	Cron    string `yaml:"cron"`
	Enabled bool   `yaml:"enabled"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"` // Loaded from environment
	RedirectURL  string `yaml:"redirect_url"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
	} `yaml:"app"`

	Database     DatabaseConfig     `yaml:"database"`
	Availability AvailabilityConfig `yaml:"availability"`
	Sweep        SweepConfig        `yaml:"sweep"`
	Google       GoogleConfig       `yaml:"google"`
}

// Load loads both .env and yaml configuration.
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Sensitive values come from the environment only.
	cfg.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with working availability defaults. Values set in
// the yaml file override them.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "meetlr"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.Database.Driver = "sqlite"
	cfg.Database.Filename = "data/meetlr.db"
	cfg.Availability = AvailabilityConfig{
		MaxOccurrences:       20,
		MaxSuggestions:       3,
		AdjacentDaySpan:      2,
		CalendarTimeout:      Duration(5 * time.Second),
		HoldExpiryMinutes:    30,
		OpenOverrideBehavior: OverrideFallsBackToWeekly,
	}
	cfg.Sweep = SweepConfig{
		Cron:    "*/10 * * * *",
		Enabled: true,
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Filename == "" {
		return fmt.Errorf("database filename is required for sqlite")
	}
	if c.Availability.MaxOccurrences <= 0 {
		return fmt.Errorf("availability max_occurrences must be positive")
	}
	if c.Availability.MaxSuggestions < 0 {
		return fmt.Errorf("availability max_suggestions must be 0 or greater")
	}
	if c.Availability.CalendarTimeout <= 0 {
		return fmt.Errorf("availability calendar_timeout must be positive")
	}
	if c.Availability.HoldExpiryMinutes <= 0 {
		return fmt.Errorf("availability hold_expiry_minutes must be positive")
	}
	switch c.Availability.OpenOverrideBehavior {
	case OverrideFallsBackToWeekly, OverrideOpensFullDay:
	default:
		return fmt.Errorf("unknown open_override_behavior: %s", c.Availability.OpenOverrideBehavior)
	}
	if c.Sweep.Enabled && c.Sweep.Cron == "" {
		return fmt.Errorf("sweep cron is required when the sweep is enabled")
	}
	return nil
}
