// Package config loads stockdb settings from YAML, a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stockdb/internal/manager"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for stockdb.
type Config struct {
	Database Database `yaml:"database"`
	Source   Source   `yaml:"source"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Update   Update   `yaml:"update"`
	Health   Health   `yaml:"health"`
	Schedule Schedule `yaml:"schedule"`
	Logging  Logging  `yaml:"logging"`
}

// Database holds paths for data persistence.
type Database struct {
	Path            string `yaml:"path" validate:"required"`
	IntervalMinutes int    `yaml:"interval_minutes" validate:"oneof=1 5 15 30 60"`
	BlacklistFile   string `yaml:"blacklist_file"`
	JournalPath     string `yaml:"journal_path"`
	ParquetDir      string `yaml:"parquet_dir"`
	LegacyDir       string `yaml:"legacy_dir"`
}

// Source selects and configures the third-party data sources.
type Source struct {
	Price      string     `yaml:"price" validate:"oneof=worldtrade alpaca"`
	WorldTrade WorldTrade `yaml:"worldtrade"`
	Zacks      Zacks      `yaml:"zacks"`
}

// WorldTrade configures the intraday price API.
type WorldTrade struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url" validate:"omitempty,url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" validate:"gte=0"`
}

// Zacks configures the fundamentals quote page scraper.
type Zacks struct {
	BaseURL         string `yaml:"base_url" validate:"omitempty,url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" validate:"gte=0"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url" validate:"omitempty,url"`
	DataURL         string `yaml:"data_url" validate:"omitempty,url"`
	Feed            string `yaml:"feed" validate:"omitempty,oneof=iex sip"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" validate:"gte=0"`
}

// Update controls database updates and incomplete-data remediation.
type Update struct {
	Tolerance      float64  `yaml:"tolerance" validate:"gte=0,lte=1"`
	Workers        int      `yaml:"workers" validate:"gte=0"`
	ParallelMode   string   `yaml:"parallel_mode" validate:"oneof=thread process multithread multiprocess"`
	IncompleteMode string   `yaml:"incomplete_mode" validate:"oneof=delete blacklist move ignore raise none"`
	MoveTo         string   `yaml:"move_to" validate:"required_if=IncompleteMode move"`
	RangeDays      int      `yaml:"range_days" validate:"gte=1,lte=30"`
	SampleTickers  []string `yaml:"sample_tickers" validate:"dive,required"`
	TickerList     string   `yaml:"ticker_list"`
}

// Health controls data-quality checks.
type Health struct {
	NaNAllowed     float64 `yaml:"nan_allowed" validate:"gte=0,lte=1"`
	MissingAllowed float64 `yaml:"missing_allowed" validate:"gte=0,lte=1"`
	StaleDays      int     `yaml:"stale_days" validate:"gte=0"`
	Calendar       string  `yaml:"calendar" validate:"oneof=rules alpaca"`
	Workers        int     `yaml:"workers" validate:"gte=0"`
	ReportPath     string  `yaml:"report_path"`
}

// Schedule holds cron specs for the daemon. Empty disables a job.
type Schedule struct {
	Update   string `yaml:"update"`
	Health   string `yaml:"health"`
	Timezone string `yaml:"timezone"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Database: Database{
			Path:            "data/stocks",
			IntervalMinutes: 15,
			BlacklistFile:   "data/blacklist.txt",
			JournalPath:     "data/journal.db",
			ParquetDir:      "data/parquet",
			LegacyDir:       "data/legacy",
		},
		Source: Source{
			Price:      "worldtrade",
			WorldTrade: WorldTrade{RateLimitPerMin: 60},
			Zacks:      Zacks{RateLimitPerMin: 30},
		},
		Alpaca: Alpaca{Feed: "iex", RateLimitPerMin: 200},
		Update: Update{
			ParallelMode:   "thread",
			IncompleteMode: "ignore",
			RangeDays:      30,
			SampleTickers:  append([]string(nil), manager.DefaultSampleTickers...),
		},
		Health: Health{
			NaNAllowed:     0.1,
			MissingAllowed: 0.1,
			StaleDays:      5,
			Calendar:       "rules",
			ReportPath:     "data/health.json",
		},
		Schedule: Schedule{
			Update:   "30 20 * * 1-5",
			Health:   "0 22 * * 1-5",
			Timezone: "America/New_York",
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

var validate = validator.New()

// Load reads the YAML configuration file at the given path over the
// defaults, loads a .env file from the working directory if present, applies
// environment variable overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKDB_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STOCKDB_PRICE_SOURCE"); v != "" {
		cfg.Source.Price = v
	}
	if v := os.Getenv("STOCKDB_API_KEY"); v != "" {
		cfg.Source.WorldTrade.APIKey = v
	}
	if v := os.Getenv("WORLDTRADE_API_KEY"); v != "" {
		cfg.Source.WorldTrade.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, the names the SDK uses).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Interval returns the database bar interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Database.IntervalMinutes) * time.Minute
}

// ManagerConfig converts the update section into a manager.Config. The
// blacklist seed is supplied by the caller.
func (c *Config) ManagerConfig(blacklist []string) manager.Config {
	return manager.Config{
		Tolerance:      c.Update.Tolerance,
		Workers:        c.Update.Workers,
		ParallelMode:   manager.ParallelMode(c.Update.ParallelMode),
		IncompleteMode: manager.IncompleteMode(c.Update.IncompleteMode),
		MoveTo:         c.Update.MoveTo,
		RangeDays:      c.Update.RangeDays,
		SampleTickers:  c.Update.SampleTickers,
		Blacklist:      blacklist,
	}
}
