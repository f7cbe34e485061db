package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRAVEL_MONITOR_SEARCH_URL", "https://fly.pl/szukaj")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Search.Adults)
	assert.Equal(t, 20, cfg.Search.MaxOffers)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 2.0, cfg.Fetch.BackoffFactor)
	assert.Equal(t, ScheduleDaily, cfg.Schedule.Mode)
	assert.Equal(t, "09:00", cfg.Schedule.DailyAt)
	assert.Equal(t, 100.0, cfg.Alerts.MinPriceDrop)
	assert.Equal(t, "travel_prices.csv", cfg.Storage.HistoryFile)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  destination: Turcja
  date_from: "2025-09-20"
  date_to: "2025-10-05"
  url: https://fly.pl/szukaj
schedule:
  mode: hours
  hours: [9, 15, 21]
alerts:
  min_price_drop: 250
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Turcja", cfg.Search.Destination)
	assert.Equal(t, ScheduleHours, cfg.Schedule.Mode)
	assert.Equal(t, []int{9, 15, 21}, cfg.Schedule.Hours)
	assert.Equal(t, 250.0, cfg.Alerts.MinPriceDrop)
	// unset knobs keep their defaults
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Search:   SearchConfig{URL: "https://fly.pl/szukaj"},
			Fetch:    FetchConfig{MaxRetries: 3, BackoffFactor: 2},
			Schedule: ScheduleConfig{Mode: ScheduleDaily, DailyAt: "09:00"},
		}
	}

	assert.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Search.URL = "" }},
		{"zero retries", func(c *Config) { c.Fetch.MaxRetries = 0 }},
		{"backoff below one", func(c *Config) { c.Fetch.BackoffFactor = 0.5 }},
		{"bad daily_at", func(c *Config) { c.Schedule.DailyAt = "9am" }},
		{"daily_at out of range", func(c *Config) { c.Schedule.DailyAt = "25:00" }},
		{"unknown mode", func(c *Config) { c.Schedule.Mode = "weekly" }},
		{"hours mode without hours", func(c *Config) {
			c.Schedule.Mode = ScheduleHours
			c.Schedule.Hours = nil
		}},
		{"hour out of range", func(c *Config) {
			c.Schedule.Mode = ScheduleHours
			c.Schedule.Hours = []int{9, 24}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDailyTime(t *testing.T) {
	h, m, err := ScheduleConfig{DailyAt: "07:45"}.DailyTime()
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)

	_, _, err = ScheduleConfig{DailyAt: "9am"}.DailyTime()
	assert.Error(t, err)
}
