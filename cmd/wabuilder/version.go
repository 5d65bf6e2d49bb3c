package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/wabuilder"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of wabuilder",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wabuilder version %s\n", strings.TrimSpace(wabuilder.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
