package cmd

import (
	"fmt"

	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/spf13/cobra"
)

// NewVersionsCommand lists the MongoDB versions known by name.
func NewVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List known MongoDB versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, v := range mongoversion.Known() {
				marker := ""
				if v == mongoversion.Production {
					marker = " (default)"
				}
				fmt.Fprintf(out, "%-10s %s%s\n", v.Name, v.Release, marker)
			}
		},
	}
}
