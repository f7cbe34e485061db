package services

import (
	"fmt"
	"strings"

	"travel-monitor/models"
)

const maxAlertsPerMessage = 10

// RenderAlertMessage formats flagged changes as the plain-text message the
// notification sink receives
func RenderAlertMessage(report *models.Report) string {
	if len(report.Alerts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("SIGNIFICANT PRICE CHANGES\n\n")

	count := 0
	for _, alert := range report.Alerts {
		if count >= maxAlertsPerMessage {
			b.WriteString(fmt.Sprintf("... and %d more\n", len(report.Alerts)-count))
			break
		}
		count++

		switch alert.Condition {
		case models.AlertBelowMinimum:
			b.WriteString(fmt.Sprintf("Minimum price %s PLN is below the configured floor\n\n",
				alert.Delta.CurrentPrice.StringFixed(0)))
		default:
			name := alert.HotelName
			if name == "" {
				name = "Cheapest offer overall"
			}
			b.WriteString(fmt.Sprintf("%s\n   %s PLN -> %s PLN (%s PLN, %+.1f%%)\n\n",
				truncate(name, 40),
				alert.Delta.PreviousPrice.StringFixed(0),
				alert.Delta.CurrentPrice.StringFixed(0),
				alert.Delta.Change.StringFixed(0),
				alert.Delta.ChangePct))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderTextReport formats the full analysis as the plain-text report file
func RenderTextReport(report *models.Report) string {
	var b strings.Builder
	b.WriteString("=== TRAVEL PRICE MONITORING REPORT ===\n\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Query: %s\n\n", report.Fingerprint))

	b.WriteString("=== STATISTICS ===\n")
	b.WriteString(fmt.Sprintf("Total observations: %d\n", report.TotalRows))
	b.WriteString(fmt.Sprintf("Collection runs: %d\n", report.RunCount))
	if report.RunCount > 0 {
		b.WriteString(fmt.Sprintf("Collecting since: %s\n", report.FirstRunAt.Format("2006-01-02")))
	}
	stats := report.CurrentStats
	if stats.OfferCount > 0 {
		b.WriteString(fmt.Sprintf("Latest run: %s (%d offers, %d hotels)\n",
			stats.RunAt.Format("2006-01-02 15:04"), stats.OfferCount, stats.UniqueHotels))
		b.WriteString(fmt.Sprintf("Minimum price: %s PLN\n", stats.MinPrice.StringFixed(2)))
		b.WriteString(fmt.Sprintf("Median price:  %s PLN\n", stats.MedianPrice.StringFixed(2)))
		b.WriteString(fmt.Sprintf("Maximum price: %s PLN\n", stats.MaxPrice.StringFixed(2)))
	}

	if len(report.TopCheapest) > 0 {
		b.WriteString("\n=== CHEAPEST OBSERVED OFFERS ===\n")
		for i, offer := range report.TopCheapest {
			b.WriteString(fmt.Sprintf("%d. %s - %s PLN\n",
				i+1, truncate(offer.HotelName, 50), offer.Price.StringFixed(2)))
			if offer.DateRange != nil {
				b.WriteString(fmt.Sprintf("   Dates: %s - %s\n",
					offer.DateRange.Start.Format("2006-01-02"),
					offer.DateRange.End.Format("2006-01-02")))
			}
			b.WriteString(fmt.Sprintf("   Observed: %s\n", offer.ScrapedAt.Format("2006-01-02 15:04")))
		}
	}

	if msg := RenderAlertMessage(report); msg != "" {
		b.WriteString("\n=== ALERTS ===\n")
		b.WriteString(msg)
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
