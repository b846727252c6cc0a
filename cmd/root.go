package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"viewflow/internal/env"
	"viewflow/internal/executor"
	"viewflow/internal/secrets"
	"viewflow/pkg/errors"
)

var (
	envConfigPath string

	rootCmd = &cobra.Command{
		Use:   "viewflow",
		Short: "Deploy declarative metric views to a warehouse",
		Long: `ViewFlow - A CLI tool for deploying YAML metric view definitions to a
SQL warehouse with per-environment configuration, validation, automated
testing and deployment tracking.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&envConfigPath, "env-config", env.DefaultConfigPath,
		"Path to the environment configuration file")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home + "/.viewflow")
	}

	viper.SetEnvPrefix("viewflow")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional
	}
}

func newEnvManager() *env.Manager {
	return env.NewManager(envConfigPath)
}

// addTargetFlags registers the per-command overrides for the deploy
// target shared by deploy and test.
func addTargetFlags(fs *pflag.FlagSet, catalog, schema, warehouseID *string) {
	fs.StringVar(catalog, "catalog", "", "Override catalog from environment config")
	fs.StringVar(schema, "schema", "", "Override schema from environment config")
	fs.StringVar(warehouseID, "warehouse-id", "", "Override warehouse ID from environment config")
}

// targetSettings is the effective deploy/test target after layering
// environment config beneath command-line overrides.
type targetSettings struct {
	Catalog     string
	Schema      string
	WarehouseID string
	Host        string
}

func resolveTarget(envs *env.Manager, environment, catalog, schema, warehouseID string) (targetSettings, error) {
	config, err := envs.Resolve(environment)
	if err != nil {
		return targetSettings{}, err
	}

	settings := targetSettings{
		Catalog:     stringValue(config, "catalog"),
		Schema:      stringValue(config, "schema"),
		WarehouseID: stringValue(config, "warehouse_id"),
		Host:        stringValue(config, "host"),
	}
	if catalog != "" {
		settings.Catalog = catalog
	}
	if schema != "" {
		settings.Schema = schema
	}
	if warehouseID != "" {
		settings.WarehouseID = warehouseID
	}
	if host := viper.GetString("host"); host != "" {
		settings.Host = host
	}

	if settings.Catalog == "" || settings.Schema == "" {
		return targetSettings{}, errors.ConfigError(
			fmt.Sprintf("environment %q does not define catalog and schema", environment),
			"catalog/schema")
	}
	return settings, nil
}

// newExecutor picks the statement backend: a direct database/sql
// connection when direct.driver/direct.dsn are configured, otherwise
// the REST statement API on the target host.
func newExecutor(settings targetSettings) (executor.Executor, func(), error) {
	driver := viper.GetString("direct.driver")
	dsn := viper.GetString("direct.dsn")
	if driver != "" && dsn != "" {
		direct, err := executor.OpenDirect(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return direct, func() { _ = direct.Close() }, nil
	}

	if settings.Host == "" {
		return nil, nil, errors.New(errors.ErrCodeRequiredField,
			"no statement backend configured: set host in the environment config or direct.driver/direct.dsn")
	}

	token, err := secrets.ResolveToken(settings.Host)
	if err != nil {
		return nil, nil, err
	}
	return executor.NewClient(settings.Host, token), func() {}, nil
}

func stringValue(config map[string]interface{}, key string) string {
	if v, ok := config[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
