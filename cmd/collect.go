package cmd

import (
	"github.com/spf13/cobra"

	"travel-monitor/models"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle",
	Long: `Run a single fetch-extract-merge-analyze cycle and exit. The exit
code reflects the run status: zero on success or partial, non-zero when
the run failed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.closer()

		run := d.sched.Tick(cmd.Context())
		if run.Status == models.RunFailed {
			return runStatusError(string(run.Status), run.Err)
		}
		return nil
	},
}
