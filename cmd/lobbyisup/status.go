package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lobbyisup/lobbyisup/internal/config"
	"github.com/lobbyisup/lobbyisup/internal/status"
)

func statusCmd() *cobra.Command {
	var (
		url       string
		header    string
		keyEnv    string
		namespace string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize a running instance from its /metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := ""
			if keyEnv != "" {
				key = os.Getenv(keyEnv)
			}
			report, err := status.Fetch(cmd.Context(), status.NewClient(header, key), url, namespace)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/metrics", "metrics endpoint of the instance")
	cmd.Flags().StringVar(&header, "header", config.DefaultAuthHeader, "header carrying the API key")
	cmd.Flags().StringVar(&keyEnv, "key-env", "", "environment variable holding the API key")
	cmd.Flags().StringVar(&namespace, "namespace", "", "metric namespace (default lobbyisup)")
	return cmd
}
