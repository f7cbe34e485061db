package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the collection loop on the configured cadence",
	Long: `Run continuously, firing a collection cycle on the configured
cadence (daily at a fixed time, hourly, or at an explicit list of hours)
until interrupted. A failed cycle is logged; the loop keeps running.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.closer()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return d.sched.RunForever(ctx)
	},
}
