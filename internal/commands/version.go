package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagepass/passctl/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			if !version.IsDev() {
				fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\nbuilt:  %s\n", version.Commit, version.Date)
			}
		},
	}
}
