package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/config"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/diagnostics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logLevel        string
	timeout         int
	traceSafe       bool
	webhookURL      string
	webhookUsername string
	webhookPassword string
	driverOptions   map[string]string
	envFile         string
)

var rootCommand = &cobra.Command{
	Use:     "callguard",
	Aliases: []string{"bigquery-callguard"},
	Short:   "CallGuard: credential-aware retry core for the BigQuery driver",
	Long: `CallGuard wraps BigQuery driver calls with failure classification,
coordinated token refresh and bounded retry. The commands here exercise
the core against a real project: probe a connection, classify a status
code, or keep a connection's credentials warm in daemon mode.

Connection options are read from the ADBC_BIGQUERY_* environment variables
and may be overridden with --option key=value. A .env file in the working
directory (or the one named by --env-file) is loaded first.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvironment,
}

func Execute() error {
	return rootCommand.Execute()
}

// connectionOptions merges environment options with --option overrides.
func connectionOptions() map[string]string {
	return config.Merge(config.FromEnv(), driverOptions)
}

func webhook() *diagnostics.Webhook {
	return &diagnostics.Webhook{
		URL:      webhookURL,
		Username: webhookUsername,
		Password: webhookPassword,
	}
}

func init() {
	rootCommand.AddGroup(&cobra.Group{ID: "callguard", Title: "CallGuard"})

	// Global Persistent Flags with env vars support
	rootCommand.PersistentFlags().IntVar(&timeout, "timeout", 0, "Global execution timeout in seconds (0 = run indefinitely)")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCommand.PersistentFlags().BoolVar(&traceSafe, "trace-safe", false, "Confirm that the diagnostics sink is private and attempt events may be written")
	rootCommand.PersistentFlags().StringVar(&webhookURL, "webhook-url", "", "Webhook URL for alerting")
	rootCommand.PersistentFlags().StringVar(&webhookUsername, "webhook-username", "", "Webhook username for alerting")
	rootCommand.PersistentFlags().StringVar(&webhookPassword, "webhook-password", "", "Webhook password for alerting")
	rootCommand.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to load before reading the environment (default .env if present)")
	rootCommand.PersistentFlags().StringToStringVar(&driverOptions, "option", nil, "Driver option override, e.g. --option adbc.bigquery.sql.project_id=my-project")

	// Bind to env vars
	_ = viper.BindPFlag("timeout", rootCommand.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log-level", rootCommand.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("trace-safe", rootCommand.PersistentFlags().Lookup("trace-safe"))
	_ = viper.BindPFlag("webhook-url", rootCommand.PersistentFlags().Lookup("webhook-url"))

	viper.SetEnvPrefix("CALLGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

}

// loadEnvironment loads the dotenv file and then reads back the flag values,
// so CALLGUARD_* variables from the file apply like real environment variables.
func loadEnvironment(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// Flags win; fall back to CALLGUARD_* environment variables.
	timeout = viper.GetInt("timeout")
	logLevel = viper.GetString("log-level")
	traceSafe = viper.GetBool("trace-safe")
	webhookURL = viper.GetString("webhook-url")
	return nil
}
