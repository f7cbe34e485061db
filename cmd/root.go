// Package cmd wires the collect, report and schedule commands.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"travel-monitor/config"
	"travel-monitor/fetcher/flypl"
	"travel-monitor/notify"
	"travel-monitor/scheduler"
	"travel-monitor/storage"
	"travel-monitor/utils"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "travel-monitor",
	Short: "Collects travel offers on a schedule and tracks price history",
	Long: `travel-monitor repeatedly collects travel-offer listings from a
configured search, accumulates them into an append-only price history and
derives trend reports and alerts from that history.`,
	SilenceUsage: true,
}

// Execute runs the CLI; the returned error maps to the process exit code
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml)")
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// deps is everything a command needs, built once per invocation
type deps struct {
	cfg    *config.Config
	logger *utils.Logger
	store  *storage.CSVStore
	sched  *scheduler.Scheduler
	closer func()
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(cfg.LogLevel)

	store, err := storage.NewCSVStore(historyPath(cfg), logger)
	if err != nil {
		return nil, err
	}

	var mirror scheduler.Mirror
	var closeMirror func()
	if cfg.Storage.PostgresDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.Storage.PostgresDSN, logger)
		if err != nil {
			// the CSV history is the source of truth; run without the mirror
			logger.Warn("PostgreSQL mirror unavailable: %v", err)
		} else {
			mirror = pg
			closeMirror = func() { _ = pg.Close() }
		}
	}

	sched := scheduler.New(
		cfg,
		logger,
		flypl.NewFetcher(cfg.Fetch, logger),
		store,
		mirror,
		notify.NewMulti(cfg.Notify, logger),
		scheduler.NewRealClock(),
	)

	return &deps{
		cfg:    cfg,
		logger: logger,
		store:  store,
		sched:  sched,
		closer: func() {
			if closeMirror != nil {
				closeMirror()
			}
			logger.Sync()
		},
	}, nil
}

func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, cfg.Storage.HistoryFile)
}

func runStatusError(status string, err error) error {
	if err != nil {
		return fmt.Errorf("run %s: %w", status, err)
	}
	return fmt.Errorf("run %s", status)
}
