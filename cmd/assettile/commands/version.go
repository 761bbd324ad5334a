package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/assettile"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "assettile %s\n", Version)
		fmt.Fprintf(out, "  library: %s\n", assettile.Version)
		fmt.Fprintf(out, "  commit:  %s\n", Commit)
		fmt.Fprintf(out, "  built:   %s\n", Date)
	},
}
