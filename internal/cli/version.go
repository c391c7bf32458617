package cli

import (
	"fmt"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/buildinfo"
	"github.com/spf13/cobra"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display version, commit hash, build date and the user agent sent to BigQuery",
	Run: func(cmd *cobra.Command, args []string) {
		info := buildinfo.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", info.Name, info.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", info.Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", info.Date)
		fmt.Fprintf(cmd.OutOrStdout(), "User agent: %s\n", buildinfo.UserAgent())
	},
}

func init() {
	rootCommand.AddCommand(versionCommand)
}
