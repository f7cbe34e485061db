package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"travel-monitor/models"
)

// ScheduleMode selects how the continuous scheduler fires ticks
type ScheduleMode string

const (
	ScheduleDaily  ScheduleMode = "daily"  // once a day at DailyAt
	ScheduleHourly ScheduleMode = "hourly" // top of every hour
	ScheduleHours  ScheduleMode = "hours"  // at the listed hours, minute 0
)

// FetchConfig holds timing knobs for the fetcher and the retry policy
type FetchConfig struct {
	WaitTimeoutSec   int     `mapstructure:"wait_timeout_sec"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffFactor    float64 `mapstructure:"backoff_factor"`
	MaxConcurrency   int     `mapstructure:"max_concurrency"`
	RateLimitDelayMs int     `mapstructure:"rate_limit_delay_ms"`
	TickTimeoutSec   int     `mapstructure:"tick_timeout_sec"`
}

// ScheduleConfig selects the cadence for run-forever mode
type ScheduleConfig struct {
	Mode    ScheduleMode `mapstructure:"mode"`
	DailyAt string       `mapstructure:"daily_at"` // HH:MM
	Hours   []int        `mapstructure:"hours"`
}

// AlertConfig holds the significant-change thresholds
type AlertConfig struct {
	MinPriceDrop    float64 `mapstructure:"min_price_drop"`     // absolute, PLN
	MinPriceDropPct float64 `mapstructure:"min_price_drop_pct"` // percent
	PriceFloor      float64 `mapstructure:"price_floor"`        // alert when min price falls below
}

// NotifyConfig configures the notification sinks
type NotifyConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	WebhookURL       string `mapstructure:"webhook_url"`
}

// StorageConfig locates the persistent history
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	HistoryFile string `mapstructure:"history_file"`
	PostgresDSN string `mapstructure:"postgres_dsn"` // optional mirror
}

// SearchConfig describes the recurring search
type SearchConfig struct {
	Destination string  `mapstructure:"destination"`
	DateFrom    string  `mapstructure:"date_from"`
	DateTo      string  `mapstructure:"date_to"`
	Adults      int     `mapstructure:"adults"`
	Children    int     `mapstructure:"children"`
	PriceMin    float64 `mapstructure:"price_min"`
	PriceMax    float64 `mapstructure:"price_max"`
	MaxOffers   int     `mapstructure:"max_offers"`
	URL         string  `mapstructure:"url"`
}

// Config holds all application-level configuration
type Config struct {
	Search   SearchConfig   `mapstructure:"search"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Alerts   AlertConfig    `mapstructure:"alerts"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Storage  StorageConfig  `mapstructure:"storage"`
	LogLevel string         `mapstructure:"log_level"`
}

// Load reads the config file (default: config.yaml in the working
// directory) and applies TRAVEL_MONITOR_* environment overrides. A missing
// file is not an error: defaults cover every knob except the search URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("TRAVEL_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Search.URL == "" {
		return errors.New("search.url is required")
	}
	if c.Fetch.MaxRetries < 1 {
		return errors.New("fetch.max_retries must be at least 1")
	}
	if c.Fetch.BackoffFactor < 1 {
		return errors.New("fetch.backoff_factor must be at least 1")
	}
	switch c.Schedule.Mode {
	case ScheduleDaily:
		if _, _, err := parseDailyAt(c.Schedule.DailyAt); err != nil {
			return err
		}
	case ScheduleHourly:
	case ScheduleHours:
		if len(c.Schedule.Hours) == 0 {
			return errors.New("schedule.hours is empty")
		}
		for _, h := range c.Schedule.Hours {
			if h < 0 || h > 23 {
				return fmt.Errorf("schedule.hours contains invalid hour %d", h)
			}
		}
	default:
		return fmt.Errorf("schedule.mode %q is not one of daily, hourly, hours", c.Schedule.Mode)
	}
	return nil
}

// DailyTime returns the parsed daily_at hour and minute
func (s ScheduleConfig) DailyTime() (hour, minute int, err error) {
	return parseDailyAt(s.DailyAt)
}

func parseDailyAt(s string) (hour, minute int, err error) {
	if _, err = fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule.daily_at %q is not HH:MM", s)
	}
	return hour, minute, nil
}

// Query returns the configured search as pipeline query parameters
func (c *Config) Query() models.QueryParams {
	return models.QueryParams{
		Destination: c.Search.Destination,
		DateFrom:    c.Search.DateFrom,
		DateTo:      c.Search.DateTo,
		Adults:      c.Search.Adults,
		Children:    c.Search.Children,
		PriceMin:    c.Search.PriceMin,
		PriceMax:    c.Search.PriceMax,
		MaxOffers:   c.Search.MaxOffers,
		SearchURL:   c.Search.URL,
	}
}

func setDefaults(v *viper.Viper) {
	// keys need a registered default for environment overrides to bind
	v.SetDefault("search.destination", "")
	v.SetDefault("search.date_from", "")
	v.SetDefault("search.date_to", "")
	v.SetDefault("search.url", "")
	v.SetDefault("search.adults", 2)
	v.SetDefault("search.children", 0)
	v.SetDefault("search.max_offers", 20)

	v.SetDefault("fetch.wait_timeout_sec", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_factor", 2.0)
	v.SetDefault("fetch.max_concurrency", 3)
	v.SetDefault("fetch.rate_limit_delay_ms", 2000)
	v.SetDefault("fetch.tick_timeout_sec", 300)

	v.SetDefault("schedule.mode", string(ScheduleDaily))
	v.SetDefault("schedule.daily_at", "09:00")

	v.SetDefault("alerts.min_price_drop", 100)
	v.SetDefault("alerts.min_price_drop_pct", 5.0)
	v.SetDefault("alerts.price_floor", 0)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.telegram_bot_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.webhook_url", "")

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.history_file", "travel_prices.csv")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("log_level", "info")
}
