package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trivia-board-service/internal/buildinfo"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trivia-board-service v%s\n", buildinfo.Version)
		},
	}
}
