// Package cli implements the applockd command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "applockd",
	Short: "applockd decides when an application must be locked",
	Long: `applockd tracks the lifecycle of a host application, user activity and the lock state of
the desktop session, and tells the host when it has to show its lock screen.

The host talks to applockd over stdin and stdout, one JSON message per line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
