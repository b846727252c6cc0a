package cmd

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"viewflow/internal/executor"
	"viewflow/internal/ui"
	"viewflow/internal/verify"
	"viewflow/pkg/errors"
)

var (
	testEnv         string
	testCatalog     string
	testSchema      string
	testWarehouseID string
	testViews       []string
	testTestsDir    string
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run assertion suites against deployed metric views",
	Long: `Run the declarative test suites for deployed metric views.

Each view pairs tests/test_<view>.sql with
tests/expected_results/test_<view>.json. Probe queries run through the
configured statement backend and every expected condition is checked
against the first result row.`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVarP(&testEnv, "environment", "e", "", "Target environment (required)")
	addTargetFlags(testCmd.Flags(), &testCatalog, &testSchema, &testWarehouseID)
	testCmd.Flags().StringSliceVar(&testViews, "views", nil, "Specific views to test (default: all discovered)")
	testCmd.Flags().StringVar(&testTestsDir, "tests-dir", verify.DefaultTestsDir, "Directory containing test suites")

	_ = testCmd.MarkFlagRequired("environment")
}

func runTest(cmd *cobra.Command, args []string) error {
	envs := newEnvManager()

	settings, err := resolveTarget(envs, testEnv, testCatalog, testSchema, testWarehouseID)
	if err != nil {
		ui.ShowError(err)
		return err
	}

	ui.ShowHeader("Running Metric View Tests")
	ui.ShowInfo(fmt.Sprintf("Environment: %s", testEnv))
	ui.ShowInfo(fmt.Sprintf("Target: %s.%s", settings.Catalog, settings.Schema))

	exec, cleanup, err := newExecutor(settings)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	defer cleanup()

	engine := verify.NewEngine(exec, envs,
		executor.Namespace{Catalog: settings.Catalog, Schema: settings.Schema},
		settings.WarehouseID)
	engine.SetTestsDir(testTestsDir)
	engine.Warn = ui.ShowWarning

	var spinner *ui.Spinner
	if ui.IsInteractive() {
		spinner = ui.NewSpinner("Running test suites...")
		spinner.Start()
	}
	all, summary, err := engine.RunAll(cmd.Context(), testEnv, testViews)
	if spinner != nil {
		spinner.Stop(err == nil && summary.Failed == 0, "Test suites finished")
	}
	if err != nil {
		ui.ShowError(err)
		return err
	}
	if summary.Total == 0 {
		ui.ShowWarning("No test suites found")
		return nil
	}

	views := make([]string, 0, len(all))
	for view := range all {
		views = append(views, view)
	}
	sort.Strings(views)

	for _, view := range views {
		fmt.Printf("\nView: %s\n", view)
		for _, result := range all[view] {
			status := color.GreenString("PASS")
			if !result.Passed {
				status = color.RedString("FAIL")
			}
			fmt.Printf("  %s %s (%.2fs)\n", status, result.TestName, result.ExecutionTime)
			if !result.Passed && result.ErrorMessage != "" {
				fmt.Printf("       %s\n", result.ErrorMessage)
			}
		}
	}

	fmt.Println()
	fmt.Printf("Passed: %d/%d  Failed: %d/%d  Success rate: %.1f%%\n",
		summary.Passed, summary.Total, summary.Failed, summary.Total, summary.SuccessRate()*100)

	if summary.Failed > 0 {
		return errors.New(errors.ErrCodeTestFailed,
			fmt.Sprintf("%d of %d tests failed", summary.Failed, summary.Total))
	}
	ui.ShowSuccess("All tests passed")
	return nil
}
