package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"viewflow/internal/render"
	"viewflow/internal/ui"
	"viewflow/pkg/errors"
)

var (
	envShowFormat string
	envRenderEnv  string
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Inspect environment configuration",
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured environments",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := newEnvManager().ListEnvironments()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var envShowCmd = &cobra.Command{
	Use:   "show [environment]",
	Short: "Show the resolved configuration for an environment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envs := newEnvManager()

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			if !ui.IsInteractive() {
				return errors.New(errors.ErrCodeInvalidInput, "environment name required")
			}
			available, err := envs.ListEnvironments()
			if err != nil {
				return err
			}
			name, err = ui.SelectOption("Environment:", available)
			if err != nil {
				return err
			}
		}

		config, err := envs.Resolve(name)
		if err != nil {
			return err
		}

		var out []byte
		switch envShowFormat {
		case "yaml":
			out, err = yaml.Marshal(config)
		case "json":
			out, err = json.MarshalIndent(config, "", "  ")
		default:
			return errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("unknown format %q: expected yaml or json", envShowFormat))
		}
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		if !strings.HasSuffix(string(out), "\n") {
			fmt.Println()
		}
		return nil
	},
}

var envValidateCmd = &cobra.Command{
	Use:   "validate [environment...]",
	Short: "Check environments for missing or malformed settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		envs := newEnvManager()

		names := args
		if len(names) == 0 {
			all, err := envs.ListEnvironments()
			if err != nil {
				return err
			}
			names = all
		}

		bad := 0
		for _, name := range names {
			issues := envs.Validate(name)
			if len(issues) == 0 {
				fmt.Printf("%s %s\n", color.GreenString("OK"), name)
				continue
			}
			bad++
			fmt.Printf("%s %s\n", color.RedString("BAD"), name)
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
		}

		if bad > 0 {
			return errors.New(errors.ErrCodeValidationFailed,
				fmt.Sprintf("%d of %d environments have issues", bad, len(names)))
		}
		return nil
	},
}

var envRenderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a definition for an environment and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		renderer := render.NewRenderer(newEnvManager())
		rendered, _, err := renderer.ProcessDefinition(args[0], envRenderEnv)
		if err != nil {
			return err
		}
		fmt.Print(rendered)
		if !strings.HasSuffix(rendered, "\n") {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envListCmd)
	envCmd.AddCommand(envShowCmd)
	envCmd.AddCommand(envValidateCmd)
	envCmd.AddCommand(envRenderCmd)

	envShowCmd.Flags().StringVar(&envShowFormat, "format", "yaml", "Output format: yaml or json")
	envRenderCmd.Flags().StringVarP(&envRenderEnv, "environment", "e", "", "Target environment (required)")
	_ = envRenderCmd.MarkFlagRequired("environment")
}
