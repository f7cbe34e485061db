package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-monitor/config"
	"travel-monitor/models"
)

const testFingerprint = "abc123"

var reportAt = time.Date(2025, 8, 2, 10, 0, 0, 0, time.UTC)

func observed(hotel string, price int64, day int) models.Offer {
	return models.Offer{
		HotelName:        hotel,
		Price:            decimal.NewFromInt(price),
		PriceIsTotal:     true,
		QueryFingerprint: testFingerprint,
		ScrapedAt:        time.Date(2025, 8, day, 9, 0, 0, 0, time.UTC),
	}
}

func defaultThresholds() config.AlertConfig {
	return config.AlertConfig{MinPriceDrop: 100, MinPriceDropPct: 5}
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	report := NewAnalyzer(defaultThresholds()).Analyze(nil, testFingerprint, reportAt)
	assert.Zero(t, report.TotalRows)
	assert.Empty(t, report.Alerts)
}

func TestAnalyzeCurrentStats(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 6354, 2),
		observed("Hotel B", 4200, 2),
		observed("Hotel C", 5100, 2),
		observed("Hotel A", 7000, 1), // previous run, not in current stats
	}

	report := NewAnalyzer(defaultThresholds()).Analyze(history, testFingerprint, reportAt)
	stats := report.CurrentStats

	assert.Equal(t, 3, stats.OfferCount)
	assert.Equal(t, 3, stats.UniqueHotels)
	assert.Equal(t, "4200", stats.MinPrice.String())
	assert.Equal(t, "5100", stats.MedianPrice.String())
	assert.Equal(t, "6354", stats.MaxPrice.String())
	assert.Equal(t, 2, report.RunCount)
	assert.Equal(t, 4, report.TotalRows)
}

func TestAnalyzeMedianOfEvenCohort(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 4000, 1),
		observed("Hotel B", 5000, 1),
		observed("Hotel C", 6000, 1),
		observed("Hotel D", 7000, 1),
	}
	report := NewAnalyzer(defaultThresholds()).Analyze(history, testFingerprint, reportAt)
	assert.Equal(t, "5500", report.CurrentStats.MedianPrice.String())
}

func TestAnalyzeTrendDeltaForPriceDrop(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 6354, 1),
		observed("Hotel A", 5990, 2),
	}

	report := NewAnalyzer(defaultThresholds()).Analyze(history, testFingerprint, reportAt)

	require.Len(t, report.TrendDeltas, 2) // Hotel A + overall
	hotelDelta := report.TrendDeltas[0]
	assert.Equal(t, "Hotel A", hotelDelta.HotelName)
	assert.Equal(t, "-364", hotelDelta.Change.String())

	overall := report.TrendDeltas[1]
	assert.Empty(t, overall.HotelName)
	assert.Equal(t, "-364", overall.Change.String())
}

func TestAnalyzeAlertFiresAtThreshold(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 6354, 1),
		observed("Hotel A", 5990, 2),
	}

	// drop of 364 meets a threshold of 364
	analyzer := NewAnalyzer(config.AlertConfig{MinPriceDrop: 364})
	report := analyzer.Analyze(history, testFingerprint, reportAt)
	require.NotEmpty(t, report.Alerts)
	assert.Equal(t, models.AlertPriceDropAmount, report.Alerts[0].Condition)
	assert.Equal(t, "364", report.Alerts[0].Magnitude.String())

	// a higher threshold stays silent
	analyzer = NewAnalyzer(config.AlertConfig{MinPriceDrop: 365})
	report = analyzer.Analyze(history, testFingerprint, reportAt)
	assert.Empty(t, report.Alerts)
}

func TestAnalyzePercentAlert(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 1000, 1),
		observed("Hotel A", 940, 2), // -6%
	}

	analyzer := NewAnalyzer(config.AlertConfig{MinPriceDropPct: 5})
	report := analyzer.Analyze(history, testFingerprint, reportAt)
	require.NotEmpty(t, report.Alerts)
	assert.Equal(t, models.AlertPriceDropPercent, report.Alerts[0].Condition)
}

func TestAnalyzePriceIncreaseDoesNotAlert(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 5990, 1),
		observed("Hotel A", 6354, 2),
	}
	report := NewAnalyzer(defaultThresholds()).Analyze(history, testFingerprint, reportAt)
	assert.Empty(t, report.Alerts)
}

func TestAnalyzeBelowFloorAlert(t *testing.T) {
	history := []models.Offer{observed("Hotel A", 2999, 1)}

	analyzer := NewAnalyzer(config.AlertConfig{PriceFloor: 3000})
	report := analyzer.Analyze(history, testFingerprint, reportAt)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, models.AlertBelowMinimum, report.Alerts[0].Condition)
}

func TestAnalyzeIgnoresOtherFingerprints(t *testing.T) {
	other := observed("Hotel Z", 100, 2)
	other.QueryFingerprint = "different"
	history := []models.Offer{observed("Hotel A", 6354, 2), other}

	report := NewAnalyzer(defaultThresholds()).Analyze(history, testFingerprint, reportAt)
	assert.Equal(t, 1, report.TotalRows)
	assert.Equal(t, "6354", report.CurrentStats.MinPrice.String())
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	history := []models.Offer{
		observed("Hotel A", 6354, 1),
		observed("Hotel B", 4200, 1),
		observed("Hotel A", 5990, 2),
		observed("Hotel B", 4100, 2),
	}
	analyzer := NewAnalyzer(defaultThresholds())

	first := analyzer.Analyze(history, testFingerprint, reportAt)
	second := analyzer.Analyze(history, testFingerprint, reportAt)

	assert.Equal(t, first, second)
}
