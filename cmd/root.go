package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Spinkelben/MarketDash/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "marketdash",
	Short: "Market food dashboard backend",
	Long: `Market food dashboard backend

Serves the vendors, menus and pickup timeslots of the canteen market to the
dashboard front-end, backed by the realtime database and short lived caches.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
