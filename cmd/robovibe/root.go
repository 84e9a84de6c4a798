package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "robovibe",
	Short: "RoboVibe turns chat requests into Roblox Studio edits",
	Long: `RoboVibe is the backend of the Roblox Studio assistant. It streams model
answers to the UI and runs the requested edits through the Studio automation server.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("mcp-url", "", "Studio automation server URL (overrides MCP_URL)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides ROBOVIBE_LOG_LEVEL)")
}
