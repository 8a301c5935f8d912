package cli

import (
	"github.com/spf13/cobra"

	"github.com/anstrom/portrisk/internal/risk"
)

var portsOutput string

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:     "ports",
	Aliases: []string{"risk-table"},
	Short:   "Show the port risk table",
	Long:    `List every well-known port portrisk classifies, with its service name and risk level.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := validateOutputFormat(portsOutput); err != nil {
			return err
		}
		return renderTable(cmd.OutOrStdout(), portsOutput, risk.Table())
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().StringVarP(&portsOutput, "output", "o", outputTable, "output format: table or json")
}
