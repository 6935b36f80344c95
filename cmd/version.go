package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.BuildInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
