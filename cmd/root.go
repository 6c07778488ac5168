package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Bt1QDJ/server"
)

var rootCmd = &cobra.Command{
	Use:   "1qdj_server",
	Short: "1QDJ is a guild-scoped music playback node.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
