package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"travel-monitor/config"
	"travel-monitor/models"
)

const topCheapestCount = 5

// Analyzer derives aggregate statistics, trend deltas and alerts from the
// persisted history. It is a pure function of its input and thresholds:
// identical history always yields an identical report.
type Analyzer struct {
	thresholds config.AlertConfig
}

// NewAnalyzer creates an Analyzer with the configured alert thresholds
func NewAnalyzer(thresholds config.AlertConfig) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Analyze builds a report for one query fingerprint cohort, generated at
// now. Rows are grouped into runs by their merge stamp: every merge stamps
// its batch with a single scraped_at, so distinct stamps are distinct runs.
func (a *Analyzer) Analyze(history []models.Offer, fingerprint string, now time.Time) *models.Report {
	report := &models.Report{
		GeneratedAt: now,
		Fingerprint: fingerprint,
	}

	var cohort []models.Offer
	for _, o := range history {
		if o.QueryFingerprint == fingerprint {
			cohort = append(cohort, o)
		}
	}
	if len(cohort) == 0 {
		return report
	}
	report.TotalRows = len(cohort)

	runs := groupRuns(cohort)
	report.RunCount = len(runs)
	report.FirstRunAt = runs[0].at

	latest := runs[len(runs)-1]
	report.CurrentStats = runStats(latest)

	if len(runs) > 1 {
		previous := runs[len(runs)-2]
		report.TrendDeltas = trendDeltas(previous, latest)
		report.Alerts = a.alerts(report.TrendDeltas, report.CurrentStats)
	} else if a.thresholds.PriceFloor > 0 {
		report.Alerts = a.alerts(nil, report.CurrentStats)
	}

	report.TopCheapest = topCheapest(cohort, topCheapestCount)
	return report
}

type run struct {
	at     time.Time
	offers []models.Offer
}

func groupRuns(cohort []models.Offer) []run {
	byStamp := make(map[time.Time][]models.Offer)
	for _, o := range cohort {
		byStamp[o.ScrapedAt] = append(byStamp[o.ScrapedAt], o)
	}
	runs := make([]run, 0, len(byStamp))
	for at, offers := range byStamp {
		runs = append(runs, run{at: at, offers: offers})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].at.Before(runs[j].at) })
	return runs
}

func runStats(r run) models.RunStats {
	stats := models.RunStats{
		RunAt:      r.at,
		OfferCount: len(r.offers),
	}

	prices := make([]decimal.Decimal, 0, len(r.offers))
	hotels := make(map[string]struct{})
	for _, o := range r.offers {
		prices = append(prices, o.Price)
		hotels[o.HotelName] = struct{}{}
	}
	stats.UniqueHotels = len(hotels)

	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	stats.MinPrice = prices[0]
	stats.MaxPrice = prices[len(prices)-1]
	if n := len(prices); n%2 == 1 {
		stats.MedianPrice = prices[n/2]
	} else {
		stats.MedianPrice = prices[n/2-1].Add(prices[n/2]).DivRound(decimal.NewFromInt(2), 2)
	}
	return stats
}

// trendDeltas compares per-hotel minimum prices between two consecutive
// runs, plus the overall cohort minimum (empty hotel name). Hotels absent
// from either run produce no delta.
func trendDeltas(previous, latest run) []models.TrendDelta {
	prevMin := minByHotel(previous.offers)
	currMin := minByHotel(latest.offers)

	var deltas []models.TrendDelta
	hotels := make([]string, 0, len(currMin))
	for hotel := range currMin {
		if _, ok := prevMin[hotel]; ok {
			hotels = append(hotels, hotel)
		}
	}
	sort.Strings(hotels)
	for _, hotel := range hotels {
		deltas = append(deltas, newDelta(hotel, prevMin[hotel], currMin[hotel]))
	}

	deltas = append(deltas, newDelta("",
		overallMin(previous.offers), overallMin(latest.offers)))
	return deltas
}

func newDelta(hotel string, previous, current decimal.Decimal) models.TrendDelta {
	change := current.Sub(previous)
	pct := 0.0
	if previous.IsPositive() {
		pct, _ = change.Div(previous).Mul(decimal.NewFromInt(100)).Float64()
	}
	return models.TrendDelta{
		HotelName:     hotel,
		PreviousPrice: previous,
		CurrentPrice:  current,
		Change:        change,
		ChangePct:     pct,
	}
}

func minByHotel(offers []models.Offer) map[string]decimal.Decimal {
	mins := make(map[string]decimal.Decimal)
	for _, o := range offers {
		if current, ok := mins[o.HotelName]; !ok || o.Price.LessThan(current) {
			mins[o.HotelName] = o.Price
		}
	}
	return mins
}

func overallMin(offers []models.Offer) decimal.Decimal {
	min := offers[0].Price
	for _, o := range offers[1:] {
		if o.Price.LessThan(min) {
			min = o.Price
		}
	}
	return min
}

// alerts applies the configured thresholds to the computed deltas
func (a *Analyzer) alerts(deltas []models.TrendDelta, stats models.RunStats) []models.Alert {
	var alerts []models.Alert

	dropAmount := decimal.NewFromFloat(a.thresholds.MinPriceDrop)
	for _, d := range deltas {
		if !d.Change.IsNegative() {
			continue
		}
		drop := d.Change.Neg()
		if a.thresholds.MinPriceDrop > 0 && drop.GreaterThanOrEqual(dropAmount) {
			alerts = append(alerts, models.Alert{
				Condition: models.AlertPriceDropAmount,
				HotelName: d.HotelName,
				Magnitude: drop,
				Delta:     d,
			})
			continue
		}
		if a.thresholds.MinPriceDropPct > 0 && -d.ChangePct >= a.thresholds.MinPriceDropPct {
			alerts = append(alerts, models.Alert{
				Condition: models.AlertPriceDropPercent,
				HotelName: d.HotelName,
				Magnitude: drop,
				Delta:     d,
			})
		}
	}

	if floor := a.thresholds.PriceFloor; floor > 0 {
		floorDec := decimal.NewFromFloat(floor)
		if stats.MinPrice.IsPositive() && stats.MinPrice.LessThan(floorDec) {
			alerts = append(alerts, models.Alert{
				Condition: models.AlertBelowMinimum,
				Magnitude: floorDec.Sub(stats.MinPrice),
				Delta: models.TrendDelta{
					CurrentPrice: stats.MinPrice,
				},
			})
		}
	}
	return alerts
}

func topCheapest(cohort []models.Offer, n int) []models.Offer {
	sorted := make([]models.Offer, len(cohort))
	copy(sorted, cohort)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
