package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgr198213-ui/Agent00/internal/rules"
)

// errInvalidCondition makes validate exit non-zero after printing the
// syntax error itself.
var errInvalidCondition = errors.New("invalid condition")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <condition>",
		Short: "Check the syntax of a rule condition",
		Example: `  agent00 validate "action.type == 'delete' and file.size > 5MB"`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			condition := strings.Join(args, " ")
			res := rules.NewEngine().ValidateCondition(condition)
			if !res.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", res.Error)
				return errInvalidCondition
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}
