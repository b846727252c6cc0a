package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"viewflow/internal/tracker"
	"viewflow/internal/ui"
	"viewflow/pkg/errors"
	"viewflow/pkg/models"
)

var (
	historyLimit int
	historyEnv   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past deployment runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := tracker.New(tracker.DefaultOutputDir)
		if err != nil {
			return err
		}

		summaries, err := tr.History(historyLimit)
		if err != nil {
			return err
		}
		if historyEnv != "" {
			filtered := summaries[:0]
			for _, s := range summaries {
				if s.TargetEnvironment == historyEnv {
					filtered = append(filtered, s)
				}
			}
			summaries = filtered
		}

		if len(summaries) == 0 {
			ui.ShowInfo("No deployment history found")
			return nil
		}
		fmt.Print(ui.HistoryTable(summaries))
		return nil
	},
}

var historyReportCmd = &cobra.Command{
	Use:   "report [deployment-id]",
	Short: "Show the full report for one deployment run",
	Long:  "Show the full report for a deployment run, defaulting to the most recent one.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := tracker.New(tracker.DefaultOutputDir)
		if err != nil {
			return err
		}

		var summary *models.DeploymentSummary
		if len(args) == 1 {
			summary, err = tr.Get(args[0])
		} else {
			summary, err = tr.Latest()
		}
		if err != nil {
			return err
		}
		if summary == nil {
			return errors.New(errors.ErrCodeFileNotFound, "no deployment runs recorded yet")
		}

		fmt.Println(tracker.Report(summary))
		return nil
	},
}

var historyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the most recent deployment run",
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := tracker.New(tracker.DefaultOutputDir)
		if err != nil {
			return err
		}
		summary, err := tr.Latest()
		if err != nil {
			return err
		}
		if summary == nil {
			ui.ShowInfo("No deployment runs recorded yet")
			return nil
		}

		line := fmt.Sprintf("%s: %d/%d succeeded (%.0f%%) in %s",
			summary.DeploymentID, summary.SuccessfulDeployments, summary.TotalFiles,
			summary.SuccessRate()*100, summary.TargetEnvironment)
		if summary.FailedDeployments > 0 {
			ui.ShowWarning(line)
		} else {
			ui.ShowSuccess(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyReportCmd)
	historyCmd.AddCommand(historyStatusCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum number of runs to show")
	historyCmd.Flags().StringVarP(&historyEnv, "environment", "e", "", "Only show runs for this environment")
}
