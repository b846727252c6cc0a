package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"viewflow/internal/validate"
	"viewflow/pkg/errors"
)

var (
	validateYamlDir string
	validateStrict  bool
	validateFormat  string
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate metric view definitions without deploying",
	Long: `Validate metric view definitions against the expected structure.

With no arguments every definition in the definitions directory is
checked. Warnings are advisory unless --strict promotes them to
errors.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateYamlDir, "yaml-dir", "view_definitions", "Directory containing view definitions")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Treat warnings as errors")
	validateCmd.Flags().StringVar(&validateFormat, "format", "text", "Output format: text or json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	files := args
	if len(files) == 0 {
		discovered, err := discoverDefinitions(validateYamlDir)
		if err != nil {
			return err
		}
		files = discovered
	}
	if len(files) == 0 {
		return errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("No YAML files found in %s", validateYamlDir))
	}

	validator := validate.New()
	results := make([]validate.Result, 0, len(files))
	failed := 0
	for _, file := range files {
		result := validator.ValidateFile(file)
		results = append(results, result)
		if !result.OK(validateStrict) {
			failed++
		}
	}

	switch validateFormat {
	case "json":
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "text":
		printValidationResults(results)
	default:
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown format %q: expected text or json", validateFormat))
	}

	if failed > 0 {
		return errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("%d of %d files failed validation", failed, len(results)))
	}
	return nil
}

func printValidationResults(results []validate.Result) {
	passed := 0
	for _, result := range results {
		if result.OK(validateStrict) {
			fmt.Printf("%s %s\n", color.GreenString("PASS"), result.FilePath)
			passed++
		} else {
			fmt.Printf("%s %s\n", color.RedString("FAIL"), result.FilePath)
		}
		for _, e := range result.Errors {
			fmt.Printf("  %s %s\n", color.RedString("error:"), e)
		}
		for _, w := range result.Warnings {
			fmt.Printf("  %s %s\n", color.YellowString("warning:"), w)
		}
	}
	fmt.Printf("\n%d/%d files valid\n", passed, len(results))
}
