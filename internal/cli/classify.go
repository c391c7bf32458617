package cli

import (
	"fmt"
	"strconv"

	"github.com/aravindh-murugesan/bigquery-callguard-go/internal/retry"
	"github.com/spf13/cobra"
)

var classifyReason string

var classifyCommand = &cobra.Command{
	Use:     "classify <status-code>...",
	GroupID: "callguard",
	Short:   "Show how remote status codes are classified",
	Long:    `Prints the retry classification (fatal, retriable_immediately, retriable_after_reauth) for each HTTP status code. Use --reason to include a remote error reason such as "rateLimitExceeded".`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			code, err := strconv.Atoi(arg)
			if err != nil || code < 100 || code > 599 {
				return fmt.Errorf("invalid status code %q", arg)
			}

			failure := retry.NewFailure(code, "")
			failure.Reason = classifyReason
			class := retry.Classify(failure)

			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", code, renderClassification(class.String()))
		}
		return nil
	},
}

func init() {
	classifyCommand.Flags().StringVar(&classifyReason, "reason", "", "Remote error reason to classify with the status")
	rootCommand.AddCommand(classifyCommand)
}
