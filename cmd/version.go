package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spinkelben/MarketDash/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		fmt.Fprintf(cmd.OutOrStdout(), "marketdash %s (%s, branch %s)\n", info.Version, info.Build, info.Branch)
		fmt.Fprintf(cmd.OutOrStdout(), "built %s with %s on %s\n", info.BuildTime, info.GoVersion, info.Platform)

		if info.GoTag != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "tags %s\n", info.GoTag)
		}

		return nil
	},
}
