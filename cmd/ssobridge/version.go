package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otiai10/ssobridge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and commit hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "ssobridge %s (commit: %s)\n", version.Version, version.CommitHash)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
