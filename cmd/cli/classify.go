package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

var classifyOutput string

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify PORT [PORT...]",
	Short: "Assess the risk of a list of open ports",
	Long: `Classify a list of ports against the risk table without scanning.
Ports that are not in the table are ignored. The overall risk is High when
three or more ports are above Low risk, Medium when at least one is, and Low
otherwise.`,
	Example: `  portrisk classify 22 80 443
  portrisk classify 21,23,3389 --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutputFormat(classifyOutput); err != nil {
			return err
		}
		ports, err := parsePortArgs(args)
		if err != nil {
			return err
		}
		return renderAssessment(cmd.OutOrStdout(), classifyOutput, risk.Classify(ports))
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVarP(&classifyOutput, "output", "o", outputTable, "output format: table or json")
}

// parsePortArgs accepts ports as separate arguments or comma-separated lists
// and returns them ascending with repeats dropped.
func parsePortArgs(args []string) ([]int, error) {
	var ports []int
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			port, err := strconv.Atoi(field)
			if err != nil {
				return nil, errors.WrapScanError(errors.CodeValidation,
					fmt.Sprintf("invalid port %q", field), err)
			}
			if port < scanning.MinPort || port > scanning.MaxPort {
				return nil, errors.ErrInvalidRange(port, port)
			}
			ports = append(ports, port)
		}
	}
	if len(ports) == 0 {
		return nil, errors.NewScanError(errors.CodeValidation, "at least one port is required")
	}
	return scanning.SortUnique(ports), nil
}
