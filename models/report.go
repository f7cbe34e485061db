package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStats aggregates the most recent run's cohort of offers
type RunStats struct {
	RunAt        time.Time
	OfferCount   int
	UniqueHotels int
	MinPrice     decimal.Decimal
	MedianPrice  decimal.Decimal
	MaxPrice     decimal.Decimal
}

// TrendDelta is the min-price movement of one hotel (or the whole cohort,
// when HotelName is empty) between the two most recent distinct runs
type TrendDelta struct {
	HotelName     string
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	Change        decimal.Decimal
	ChangePct     float64
}

// AlertCondition names the rule that fired
type AlertCondition string

const (
	AlertPriceDropAmount  AlertCondition = "price_drop_amount"
	AlertPriceDropPercent AlertCondition = "price_drop_percent"
	AlertBelowMinimum     AlertCondition = "below_minimum"
)

// Alert is one significant change flagged by the analyzer
type Alert struct {
	Condition AlertCondition
	HotelName string
	Magnitude decimal.Decimal
	Delta     TrendDelta
}

// Report is the analyzer output: deterministic given identical history
// and thresholds
type Report struct {
	GeneratedAt  time.Time
	Fingerprint  string
	CurrentStats RunStats
	TrendDeltas  []TrendDelta
	Alerts       []Alert
	TopCheapest  []Offer
	FirstRunAt   time.Time
	RunCount     int
	TotalRows    int
}
