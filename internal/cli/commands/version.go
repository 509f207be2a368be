package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display attendchain version and the pinned toolchain.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "attendchain v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Attendance records on an EVM development chain (solc %s)\n", getConfig().Compilers.Solc.Version)
		},
	}
}
