package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"viewflow/internal/secrets"
	"viewflow/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage statement API tokens",
	Long: `Manage the access tokens used to authenticate against the SQL
statement service. Tokens are stored in the system keyring when one is
available, otherwise in an encrypted file under ~/.viewflow.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <host>",
	Short: "Store a token for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		prompt := &survey.Password{Message: fmt.Sprintf("Token for %s:", args[0])}
		if err := survey.AskOne(prompt, &token, survey.WithValidator(survey.Required)); err != nil {
			return err
		}

		store, err := secrets.NewStore()
		if err != nil {
			return err
		}
		if err := store.Set(args[0], token); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Token stored for %s", args[0]))
		return nil
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete <host>",
	Short: "Remove the stored token for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Token removed for %s", args[0]))
		return nil
	},
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts with stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return err
		}
		names, err := store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			ui.ShowInfo("No tokens stored")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authDeleteCmd)
	authCmd.AddCommand(authListCmd)
}
