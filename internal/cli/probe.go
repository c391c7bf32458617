package cli

import (
	"fmt"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/config"
	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/workflow"
	"github.com/spf13/cobra"
)

var probeCommand = &cobra.Command{
	Use:     "probe",
	GroupID: "callguard",
	Short:   "Probe a BigQuery connection through the retry core",
	Long:    `Authenticates with the configured credentials and lists the project's datasets (or fetches the configured dataset). Expired credentials are refreshed once, transient errors are retried, and a failed probe is reported to the webhook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render("CallGuard - Connection Probe"))

		options := connectionOptions()
		logger := workflow.SetupLogger(logLevel, options[config.OptionProjectID])

		stack, err := workflow.BuildStack(options, workflow.StackSettings{
			Logger:    logger,
			TraceSafe: traceSafe,
		})
		if err != nil {
			logger.Error("Connection setup failed", "error", err)
			return fmt.Errorf("connection setup failed: %w", err)
		}

		_, err = workflow.RunProbe(cmd.Context(), stack, timeout, webhook(), logger)
		return err
	},
}

func init() {
	rootCommand.AddCommand(probeCommand)
}
