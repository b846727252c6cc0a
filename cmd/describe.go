package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"viewflow/internal/render"
	"viewflow/pkg/errors"
	"viewflow/pkg/models"
)

var describeEnv string

var describeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Show the columns a metric view definition exposes",
	Long: `Parse a metric view definition and show its source, dimensions and
measures. Templated definitions need --environment to render first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		var text string
		if describeEnv != "" {
			rendered, _, err := render.NewRenderer(newEnvManager()).ProcessDefinition(path, describeEnv)
			if err != nil {
				return err
			}
			text = rendered
		} else {
			if render.IsTemplate(path) {
				return errors.New(errors.ErrCodeInvalidInput,
					fmt.Sprintf("%s is a template: pass --environment to render it", path))
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeFileOperation,
					fmt.Sprintf("failed to read %s", path))
			}
			text = string(raw)
		}

		var view models.MetricView
		if err := yaml.Unmarshal([]byte(text), &view); err != nil {
			return errors.Wrap(err, errors.ErrCodeParseFailed,
				fmt.Sprintf("invalid metric view definition in %s", path))
		}

		fmt.Printf("View: %s\n", viewNameFromPath(path))
		fmt.Printf("Source: %s\n", view.Source)
		if view.Filter != "" {
			fmt.Printf("Filter: %s\n", view.Filter)
		}
		fmt.Println()

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Column", "Kind", "Expression"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, d := range view.Dimensions {
			table.Append([]string{d.Name, "dimension", d.Expr})
		}
		for _, m := range view.Measures {
			table.Append([]string{m.Name, "measure", m.Expr})
		}
		table.Render()

		fmt.Printf("\nColumn order: %s\n", strings.Join(view.ColumnNames(), ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)

	describeCmd.Flags().StringVarP(&describeEnv, "environment", "e", "", "Environment used to render templated definitions")
}
