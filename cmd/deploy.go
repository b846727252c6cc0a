package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"viewflow/internal/ddl"
	"viewflow/internal/executor"
	"viewflow/internal/render"
	"viewflow/internal/tracker"
	"viewflow/internal/ui"
	"viewflow/internal/validate"
	"viewflow/pkg/errors"
	"viewflow/pkg/models"
)

var (
	deployEnv         string
	deployYamlDir     string
	deployCatalog     string
	deploySchema      string
	deployWarehouseID string
	deployDryRun      bool
	deployStrict      bool
	deployYes         bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy metric view definitions to the target environment",
	Long: `Deploy all metric view definitions from the definitions directory.

Each definition is rendered against the environment configuration,
validated, converted to DDL and executed. Successfully deployed views
are tagged as certified. A per-view failure does not stop the run; the
command exits nonzero if any view failed.`,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVarP(&deployEnv, "environment", "e", "", "Target environment (required)")
	deployCmd.Flags().StringVar(&deployYamlDir, "yaml-dir", "view_definitions", "Directory containing view definitions")
	addTargetFlags(deployCmd.Flags(), &deployCatalog, &deploySchema, &deployWarehouseID)
	deployCmd.Flags().BoolVarP(&deployDryRun, "dry-run", "d", false, "Show generated DDL without executing")
	deployCmd.Flags().BoolVar(&deployStrict, "strict", false, "Treat validation warnings as errors")
	deployCmd.Flags().BoolVarP(&deployYes, "yes", "y", false, "Skip the confirmation prompt")

	_ = deployCmd.MarkFlagRequired("environment")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	envs := newEnvManager()

	settings, err := resolveTarget(envs, deployEnv, deployCatalog, deploySchema, deployWarehouseID)
	if err != nil {
		ui.ShowError(err)
		return err
	}

	ui.ShowHeader(fmt.Sprintf("ViewFlow - Deploying to %s", deployEnv))
	ui.ShowInfo(fmt.Sprintf("Target: %s.%s (warehouse: %s)", settings.Catalog, settings.Schema, settings.WarehouseID))
	ui.ShowInfo(fmt.Sprintf("Definitions directory: %s", deployYamlDir))

	if issues := envs.Validate(deployEnv); len(issues) > 0 {
		for _, issue := range issues {
			ui.ShowWarning(issue)
		}
	}

	files, err := discoverDefinitions(deployYamlDir)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	if len(files) == 0 {
		err := errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("No YAML files found in %s", deployYamlDir))
		ui.ShowError(err)
		return err
	}
	ui.ShowInfo(fmt.Sprintf("Found %d metric view definitions to deploy", len(files)))

	if deployDryRun {
		ui.ShowWarning("Running in dry-run mode - no changes will be applied")
	}

	if isProductionLike(deployEnv) && !deployYes && !deployDryRun {
		if !ui.IsInteractive() {
			err := errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("refusing to deploy to %s without confirmation; pass --yes", deployEnv))
			ui.ShowError(err)
			return err
		}
		confirm, err := ui.Confirm(fmt.Sprintf("Deploy %d views to %s?", len(files), deployEnv), false)
		if err != nil {
			return err
		}
		if !confirm {
			ui.ShowWarning("Deployment cancelled")
			return nil
		}
	}

	tr, err := tracker.New(tracker.DefaultOutputDir)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	deploymentID := tr.Start(deployEnv, len(files))
	if sha := headCommit(); sha != "" {
		tr.SetGitCommit(sha)
	}
	ui.ShowInfo(fmt.Sprintf("Deployment ID: %s", deploymentID))

	var exec executor.Executor
	if !deployDryRun {
		backend, cleanup, err := newExecutor(settings)
		if err != nil {
			ui.ShowError(err)
			return err
		}
		defer cleanup()
		exec = backend
	}

	renderer := render.NewRenderer(envs)
	validator := validate.New()
	defaults := ddl.Target{Catalog: settings.Catalog, Schema: settings.Schema}

	type deployed struct {
		view   string
		target ddl.Target
	}
	var tagged []deployed
	failures := 0

	for _, file := range files {
		viewName := viewNameFromPath(file)
		fmt.Printf("\n--- Deploying %s ---\n", viewName)
		start := time.Now()

		record := func(status, errMsg, sql string) {
			_ = tr.Record(viewName, file, status, time.Since(start), errMsg, sql)
		}

		rendered, doc, err := renderer.ProcessDefinition(file, deployEnv)
		if err != nil {
			ui.ShowError(fmt.Errorf("failed to render %s: %w", viewName, err))
			record(models.StatusFailed, err.Error(), "")
			failures++
			continue
		}

		result := validator.ValidateDocument(doc, file)
		for _, warning := range result.Warnings {
			ui.ShowWarning(warning)
		}
		if !result.OK(deployStrict) {
			message := strings.Join(append(result.Errors, warningsIfStrict(result)...), "; ")
			ui.ShowError(errors.ValidationError(viewName, file, message))
			record(models.StatusFailed, message, "")
			failures++
			continue
		}

		target := ddl.ResolveTarget(doc, defaults)
		stripped, err := ddl.StripDeployment(rendered)
		if err != nil {
			ui.ShowError(fmt.Errorf("failed to prepare %s: %w", viewName, err))
			record(models.StatusFailed, err.Error(), "")
			failures++
			continue
		}
		viewDDL := ddl.GenerateViewDDL(viewName, stripped, ddl.ColumnNames(doc), target)

		if deployDryRun {
			fmt.Println(viewDDL)
			record(models.StatusPending, "", viewDDL)
			continue
		}

		if err := executeStatement(cmd, exec, settings, viewDDL, fmt.Sprintf("Deploy %s", viewName)); err != nil {
			record(models.StatusFailed, err.Error(), viewDDL)
			failures++
			continue
		}
		record(models.StatusSuccess, "", viewDDL)
		tagged = append(tagged, deployed{view: viewName, target: target})
	}

	if len(tagged) > 0 && !deployDryRun {
		fmt.Println("\n--- Applying System Tags ---")
		for _, d := range tagged {
			tagDDL := ddl.GenerateTagDDL(d.view, d.target, ddl.SystemTag)
			if err := executeStatement(cmd, exec, settings, tagDDL, fmt.Sprintf("Apply system tag to %s", d.view)); err != nil {
				// Tagging is best effort, the view itself deployed.
				ui.ShowWarning(fmt.Sprintf("Failed to apply tag to %s: %v", d.view, err))
			}
		}
	}

	summary, err := tr.Finish()
	if err != nil {
		ui.ShowError(err)
		return err
	}
	fmt.Println()
	fmt.Println(tracker.Report(summary))

	if failures > 0 {
		return errors.New(errors.ErrCodeStatementFailed,
			fmt.Sprintf("deployment finished with %d failed views", failures))
	}
	if !deployDryRun {
		ui.ShowSuccess(fmt.Sprintf("Successfully deployed %d metric views", len(tagged)))
	}
	return nil
}

func executeStatement(cmd *cobra.Command, exec executor.Executor, settings targetSettings, statement, description string) error {
	ui.ShowInfo(fmt.Sprintf("Executing: %s", description))

	resp, err := exec.Execute(cmd.Context(), executor.StatementRequest{
		Statement:   statement,
		Namespace:   executor.Namespace{Catalog: settings.Catalog, Schema: settings.Schema},
		WarehouseID: settings.WarehouseID,
	})
	if err != nil {
		ui.ShowError(fmt.Errorf("%s failed: %w", description, err))
		return err
	}
	if resp.State != executor.StateSucceeded {
		err := errors.StatementError(
			fmt.Sprintf("%s failed: %s", description, resp.Error), statement, nil)
		ui.ShowError(err)
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("%s completed successfully", description))
	return nil
}

// discoverDefinitions lists deployable definition files in dir, sorted
// by name.
func discoverDefinitions(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml", "*.tmpl"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
				fmt.Sprintf("failed to scan %s", dir))
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// viewNameFromPath derives the view name from a definition file name,
// e.g. orders.yml and orders.yml.tmpl both map to orders.
func viewNameFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, render.TemplateExt)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return name
}

func isProductionLike(environment string) bool {
	return strings.Contains(strings.ToLower(environment), "prod")
}

func warningsIfStrict(result validate.Result) []string {
	if deployStrict {
		return result.Warnings
	}
	return nil
}

// headCommit returns the current git commit SHA, empty when not in a
// repository.
func headCommit() string {
	repo, err := git.PlainOpenWithOptions(".", &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
