package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups the generators for files that ship alongside the binary.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for marketdash",
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
