package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of brewing",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "brewing version %s\n", brewing.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
