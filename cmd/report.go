package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"travel-monitor/models"
	"travel-monitor/services"
	"travel-monitor/storage"
)

var (
	reportDropThreshold float64
	reportWriteFile     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Analyze the collected history and print a trend report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.closer()

		if reportDropThreshold > 0 {
			d.cfg.Alerts.MinPriceDrop = reportDropThreshold
		}

		fingerprint := d.cfg.Query().Fingerprint()
		var history []models.Offer
		err = d.store.ReadHistory(cmd.Context(), storage.Filter{Fingerprint: fingerprint},
			func(o models.Offer) error {
				history = append(history, o)
				return nil
			})
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		if len(history) == 0 {
			d.logger.Warn("No history collected yet for this query")
			return nil
		}

		report := services.NewAnalyzer(d.cfg.Alerts).Analyze(history, fingerprint, time.Now())
		printReport(report)

		if reportWriteFile {
			path := filepath.Join(d.cfg.Storage.DataDir, "price_report.txt")
			if err := os.WriteFile(path, []byte(services.RenderTextReport(report)), 0o644); err != nil {
				return fmt.Errorf("failed to write report file: %w", err)
			}
			d.logger.Info("Report written to %s", path)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().Float64Var(&reportDropThreshold, "threshold", 0, "override the absolute price-drop alert threshold (PLN)")
	reportCmd.Flags().BoolVar(&reportWriteFile, "write", false, "also write the plain-text report file to the data directory")
}

func printReport(report *models.Report) {
	stats := report.CurrentStats

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Latest run %s", stats.RunAt.Format("2006-01-02 15:04"))
	t.AppendRows([]table.Row{
		{"Offers", stats.OfferCount},
		{"Unique hotels", stats.UniqueHotels},
		{"Min price", stats.MinPrice.StringFixed(2) + " PLN"},
		{"Median price", stats.MedianPrice.StringFixed(2) + " PLN"},
		{"Max price", stats.MaxPrice.StringFixed(2) + " PLN"},
		{"Runs collected", report.RunCount},
		{"Total observations", report.TotalRows},
	})
	t.Render()

	if len(report.TrendDeltas) > 0 {
		t = table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Change vs previous run")
		t.AppendHeader(table.Row{"Hotel", "Previous", "Current", "Change", "%"})
		for _, d := range report.TrendDeltas {
			name := d.HotelName
			if name == "" {
				name = "(overall minimum)"
			}
			t.AppendRow(table.Row{
				name,
				d.PreviousPrice.StringFixed(0),
				d.CurrentPrice.StringFixed(0),
				d.Change.StringFixed(0),
				fmt.Sprintf("%+.1f", d.ChangePct),
			})
		}
		t.Render()
	}

	if len(report.TopCheapest) > 0 {
		t = table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Cheapest observed offers")
		t.AppendHeader(table.Row{"#", "Hotel", "Price", "Observed"})
		for i, o := range report.TopCheapest {
			t.AppendRow(table.Row{
				i + 1, o.HotelName, o.Price.StringFixed(2) + " PLN",
				o.ScrapedAt.Format("2006-01-02"),
			})
		}
		t.Render()
	}

	if msg := services.RenderAlertMessage(report); msg != "" {
		fmt.Println()
		fmt.Println(msg)
	}
}
