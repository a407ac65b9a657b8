package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lobbyisup",
		Short: "Mirror the aoe2.net lobby feed and serve it over HTTP and WebSocket",
		Long: `lobbyisup keeps a live copy of the aoe2.net lobby list.

It holds one upstream connection to the lobby feed, keeps the current
lobbies in memory, and lets clients look a lobby up or watch it for
changes over a WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), statusCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lobbyisup %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
