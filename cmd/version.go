package cmd

import (
	"fmt"

	"github.com/kdeps/embedmongo/pkg/version"
	"github.com/spf13/cobra"
)

// NewVersionCommand prints the build version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the embedmongo version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "embedmongo %s\n", version.String())
		},
	}
}
